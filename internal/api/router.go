package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Doctor0Evil/WordMath/internal/auth"
	"github.com/Doctor0Evil/WordMath/internal/chread"
	"github.com/Doctor0Evil/WordMath/internal/config"
	"github.com/Doctor0Evil/WordMath/internal/registry"
	"github.com/Doctor0Evil/WordMath/internal/store"
)

// ProfileStore is the profile and key CRUD the admin routes need.
// *store.Store satisfies it.
type ProfileStore interface {
	GetProfile(ctx context.Context, name string) (*store.Profile, error)
	ListProfiles(ctx context.Context) ([]*store.Profile, error)
	PutProfile(ctx context.Context, name string, cfg *config.Config) (*store.Profile, error)
	DeleteProfile(ctx context.Context, name string) error
	CreateAPIKey(ctx context.Context, name, profile string) (*store.APIKey, string, error)
	RevokeAPIKey(ctx context.Context, prefix string) error
}

// DecisionReader queries stored decisions. *chread.Reader satisfies it.
type DecisionReader interface {
	ListDecisions(ctx context.Context, params chread.ListParams) ([]chread.DecisionRow, int, error)
	GetDecision(ctx context.Context, traceID string) (*chread.DecisionRow, error)
	GetAnalytics(ctx context.Context, profile *string, days int) (*chread.AnalyticsResult, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Registry *registry.Registry
	Profiles ProfileStore       // nil if Postgres unavailable
	Reader   DecisionReader     // nil if ClickHouse unavailable
	Auth     auth.Authenticator // nil disables API key auth
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger

	// RateLimit caps requests per second across the server; zero disables it.
	RateLimit rate.Limit
	Burst     int
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	// Assessment (Bearer wmk_ token when auth is configured)
	mux.HandleFunc("POST /v1/assess", deps.authMiddleware(deps.handleAssess))

	// Profile CRUD
	mux.HandleFunc("GET /api/wordmath/profiles", deps.authMiddleware(deps.handleListProfiles))
	mux.HandleFunc("GET /api/wordmath/profiles/{name}", deps.authMiddleware(deps.handleGetProfile))
	mux.HandleFunc("PUT /api/wordmath/profiles/{name}", deps.authMiddleware(deps.handlePutProfile))
	mux.HandleFunc("DELETE /api/wordmath/profiles/{name}", deps.authMiddleware(deps.handleDeleteProfile))

	// API keys
	mux.HandleFunc("POST /api/wordmath/keys", deps.authMiddleware(deps.handleCreateKey))
	mux.HandleFunc("DELETE /api/wordmath/keys/{prefix}", deps.authMiddleware(deps.handleRevokeKey))

	// Decisions & analytics
	mux.HandleFunc("GET /api/wordmath/decisions", deps.authMiddleware(deps.handleListDecisions))
	mux.HandleFunc("GET /api/wordmath/decisions/{trace_id}", deps.authMiddleware(deps.handleGetDecision))
	mux.HandleFunc("GET /api/wordmath/analytics", deps.authMiddleware(deps.handleGetAnalytics))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	var h http.Handler = mux
	if deps.RateLimit > 0 {
		h = rateLimit(h, rate.NewLimiter(deps.RateLimit, max(deps.Burst, 1)))
	}
	return corsMiddleware(requestLogging(h, deps.Logger))
}
