package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix starts every API key.
	KeyPrefix = "wmk_"
	// KeyPrefixLen is how many leading characters are stored in clear for lookup.
	KeyPrefixLen = 12
)

// APIKey is a row in the api_keys table. The plaintext key is never stored.
type APIKey struct {
	ID        string
	Name      string
	KeyHash   string
	KeyPrefix string
	Profile   string // profile used when a request names none
	CreatedAt time.Time
	RevokedAt *time.Time
}

// GenerateAPIKey creates a new wmk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := KeyPrefix + hex.EncodeToString(raw)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	return fullKey, string(hashBytes), fullKey[:KeyPrefixLen], nil
}

// CreateAPIKey stores a new key bound to profile and returns it with the
// plaintext key (shown once).
func (s *Store) CreateAPIKey(ctx context.Context, name, profile string) (*APIKey, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateAPIKey: %w", err)
	}

	var k APIKey
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (name, key_hash, key_prefix, profile)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, key_hash, key_prefix, profile, created_at, revoked_at`,
		name, keyHash, keyPrefix, profile,
	).Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Profile, &k.CreatedAt, &k.RevokedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateAPIKey: %w", err)
	}
	return &k, fullKey, nil
}

// LookupAPIKey finds an active key by its stored prefix, or nil if none.
func (s *Store) LookupAPIKey(ctx context.Context, prefix string) (*APIKey, error) {
	var k APIKey
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, key_hash, key_prefix, profile, created_at, revoked_at
		FROM api_keys
		WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix,
	).Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Profile, &k.CreatedAt, &k.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupAPIKey: %w", err)
	}
	return &k, nil
}

// RevokeAPIKey marks a key revoked. Returns sql.ErrNoRows if no active key
// has that prefix.
func (s *Store) RevokeAPIKey(ctx context.Context, prefix string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = now()
		WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
	if err != nil {
		return fmt.Errorf("RevokeAPIKey: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
