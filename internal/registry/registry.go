// Package registry resolves profile names to ready-to-use guards.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Doctor0Evil/WordMath/internal/config"
	"github.com/Doctor0Evil/WordMath/internal/guard"
	"github.com/Doctor0Evil/WordMath/internal/store"
)

// DefaultProfile names the guard built from the server's own config file.
const DefaultProfile = "default"

var ErrProfileNotFound = errors.New("profile not found")

// ProfileSource loads stored profiles. *store.Store satisfies it.
type ProfileSource interface {
	GetProfile(ctx context.Context, name string) (*store.Profile, error)
}

// Builder turns a profile config into a guard.
type Builder func(name string, cfg config.Config) (*guard.Guard, error)

// Registry caches one guard per profile. Entries older than the TTL are
// still served while a single background load replaces them.
type Registry struct {
	def     atomic.Pointer[guard.Guard]
	source  ProfileSource
	build   Builder
	ttl     time.Duration
	entries sync.Map // map[string]*entry
	group   singleflight.Group
	logger  *zap.Logger

	// gens counts invalidations per name. A load caches its guard only if
	// the count did not move while it ran.
	mu   sync.Mutex
	gens map[string]uint64
}

type entry struct {
	guard      *guard.Guard
	expiresAt  time.Time
	refreshing atomic.Bool
}

// Options configures a Registry.
type Options struct {
	Source ProfileSource // nil disables named profiles
	Build  Builder
	TTL    time.Duration // Default: 30s
	Logger *zap.Logger
}

// New creates a registry serving def for the default profile.
func New(def *guard.Guard, opts Options) *Registry {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		source: opts.Source,
		build:  opts.Build,
		ttl:    ttl,
		logger: logger,
		gens:   make(map[string]uint64),
	}
	r.def.Store(def)
	return r
}

// Default returns the current default guard.
func (r *Registry) Default() *guard.Guard { return r.def.Load() }

// SetDefault swaps the default guard, e.g. after a config reload. In-flight
// assessments keep the guard they started with.
func (r *Registry) SetDefault(g *guard.Guard) { r.def.Store(g) }

// Get returns the guard for name. An empty name or "default" selects the
// default guard.
func (r *Registry) Get(ctx context.Context, name string) (*guard.Guard, error) {
	if name == "" || name == DefaultProfile {
		return r.Default(), nil
	}
	if r.source == nil {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}

	if val, ok := r.entries.Load(name); ok {
		e := val.(*entry)
		if time.Now().Before(e.expiresAt) {
			return e.guard, nil
		}
		if e.refreshing.CompareAndSwap(false, true) {
			go r.backgroundRefresh(name)
		}
		return e.guard, nil
	}

	return r.load(ctx, name)
}

// Invalidate drops the cached guard for name so the next Get reloads it.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	r.gens[name]++
	r.entries.Delete(name)
	r.mu.Unlock()
	r.group.Forget(name)
}

func (r *Registry) generation(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[name]
}

// storeIfCurrent caches g unless name was invalidated after gen was read.
func (r *Registry) storeIfCurrent(name string, gen uint64, g *guard.Guard) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[name] != gen {
		return false
	}
	r.entries.Store(name, &entry{guard: g, expiresAt: time.Now().Add(r.ttl)})
	return true
}

func (r *Registry) load(ctx context.Context, name string) (*guard.Guard, error) {
	v, err, _ := r.group.Do(name, func() (any, error) {
		gen := r.generation(name)
		p, err := r.source.GetProfile(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load profile %q: %w", name, err)
		}
		if p == nil {
			return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
		}
		g, err := r.build(name, p.Config)
		if err != nil {
			return nil, fmt.Errorf("build profile %q: %w", name, err)
		}
		if !r.storeIfCurrent(name, gen, g) {
			r.logger.Debug("profile changed during load, not caching", zap.String("profile", name))
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*guard.Guard), nil
}

// backgroundRefresh reloads a stale profile. A deleted profile is evicted;
// other failures keep serving the stale guard until the next attempt.
func (r *Registry) backgroundRefresh(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := r.load(ctx, name); err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			r.entries.Delete(name)
			return
		}
		r.logger.Warn("profile refresh failed", zap.String("profile", name), zap.Error(err))
		if val, ok := r.entries.Load(name); ok {
			val.(*entry).refreshing.Store(false)
		}
	}
}
