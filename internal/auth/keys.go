package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Doctor0Evil/WordMath/internal/store"
)

// KeyRecord is what a KeyStore knows about an active key.
type KeyRecord struct {
	Prefix  string
	Name    string
	Hash    string // bcrypt
	Profile string
}

// KeyStore looks up active keys by their clear-text prefix. Implementations
// return ErrInvalidAPIKey when no key matches.
type KeyStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*KeyRecord, error)
}

// NewSQLKeyStore serves keys from the api_keys table.
func NewSQLKeyStore(s *store.Store) KeyStore {
	return &sqlKeyStore{store: s}
}

type sqlKeyStore struct {
	store *store.Store
}

func (s *sqlKeyStore) LookupByPrefix(ctx context.Context, prefix string) (*KeyRecord, error) {
	k, err := s.store.LookupAPIKey(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlKeyStore.LookupByPrefix: %w", err)
	}
	if k == nil {
		return nil, ErrInvalidAPIKey
	}
	return &KeyRecord{Prefix: k.KeyPrefix, Name: k.Name, Hash: k.KeyHash, Profile: k.Profile}, nil
}

// StaticKeyStore holds keys supplied at startup, e.g. from an environment
// variable, for deployments without Postgres.
type StaticKeyStore map[string]*KeyRecord

// ParseStaticKeys parses "prefix:bcrypthash[:profile],..." entries.
func ParseStaticKeys(spec string) (StaticKeyStore, error) {
	keys := StaticKeyStore{}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		// bcrypt hashes contain '$' but never ':'.
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("ParseStaticKeys: malformed entry %q", entry)
		}
		rec := &KeyRecord{Prefix: parts[0], Name: parts[0], Hash: parts[1]}
		if len(parts) == 3 {
			rec.Profile = parts[2]
		}
		keys[rec.Prefix] = rec
	}
	return keys, nil
}

func (s StaticKeyStore) LookupByPrefix(_ context.Context, prefix string) (*KeyRecord, error) {
	rec, ok := s[prefix]
	if !ok {
		return nil, ErrInvalidAPIKey
	}
	return rec, nil
}

// ChainKeyStore asks each store in order and returns the first match.
// Store errors other than ErrInvalidAPIKey stop the chain.
type ChainKeyStore []KeyStore

func (c ChainKeyStore) LookupByPrefix(ctx context.Context, prefix string) (*KeyRecord, error) {
	for _, s := range c {
		rec, err := s.LookupByPrefix(ctx, prefix)
		if errors.Is(err, ErrInvalidAPIKey) {
			continue
		}
		return rec, err
	}
	return nil, ErrInvalidAPIKey
}

// KeyAuthenticator validates wmk_ keys against a KeyStore with a
// stale-while-revalidate cache in front.
type KeyAuthenticator struct {
	store  KeyStore
	cache  *KeyCache
	logger *zap.Logger
}

// KeyAuthConfig configures the KeyAuthenticator.
type KeyAuthConfig struct {
	Store    KeyStore
	CacheTTL time.Duration // Default: 30s
	Logger   *zap.Logger
}

// NewKeyAuthenticator creates an authenticator over cfg.Store.
func NewKeyAuthenticator(cfg KeyAuthConfig) *KeyAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyAuthenticator{
		store:  cfg.Store,
		cache:  NewKeyCache(ttl),
		logger: logger,
	}
}

// Authenticate verifies token. Fresh cache hits return immediately, stale
// hits return the cached principal and refresh in the background, and misses
// do the full lookup synchronously.
func (a *KeyAuthenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrMissingAPIKey
	}

	result := a.cache.Get(token)
	if result.Hit {
		if result.NeedsRefresh {
			go a.backgroundRefresh(token)
		}
		return result.Principal, nil
	}

	p, err := a.lookupAndVerify(ctx, token)
	if err != nil {
		return nil, a.handleLookupError(err)
	}

	a.cache.Set(token, p)
	return p, nil
}

// backgroundRefresh re-verifies a stale key. On failure the entry is dropped
// so the next request does a synchronous lookup.
func (a *KeyAuthenticator) backgroundRefresh(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := a.lookupAndVerify(ctx, token)
	if err != nil {
		a.logger.Warn("background key refresh failed", zap.Error(err))
		a.cache.Delete(token)
		return
	}
	a.cache.Set(token, p)
}

func (a *KeyAuthenticator) lookupAndVerify(ctx context.Context, token string) (*Principal, error) {
	if len(token) < store.KeyPrefixLen || !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrInvalidAPIKey
	}
	prefix := token[:store.KeyPrefixLen]

	rec, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.Hash), []byte(token)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	return &Principal{KeyPrefix: rec.Prefix, Name: rec.Name, Profile: rec.Profile}, nil
}

// handleLookupError maps store failures to ErrAuthUnavailable. Requests are
// never served on an auth failure.
func (a *KeyAuthenticator) handleLookupError(err error) error {
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrInvalidAPIKey
	}
	a.logger.Warn("key store unreachable", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
}
