package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/Doctor0Evil/WordMath/internal/api"
	"github.com/Doctor0Evil/WordMath/internal/auth"
	"github.com/Doctor0Evil/WordMath/internal/chread"
	"github.com/Doctor0Evil/WordMath/internal/config"
	"github.com/Doctor0Evil/WordMath/internal/guard"
	"github.com/Doctor0Evil/WordMath/internal/metrics"
	"github.com/Doctor0Evil/WordMath/internal/registry"
	"github.com/Doctor0Evil/WordMath/internal/server"
	"github.com/Doctor0Evil/WordMath/internal/storage"
	"github.com/Doctor0Evil/WordMath/internal/store"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	httpAddr       string
	grpcAddr       string
	reloadDebounce time.Duration
	noReload       bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC assessment API",
		Long: `Run the HTTP and gRPC assessment API.

Environment:
  WORDMATH_HTTP_PORT, WORDMATH_GRPC_PORT   listen ports (8080, 50051)
  WORDMATH_LOG_LEVEL                       overrides logging.level
  WORDMATH_API_KEY_HASHES                  prefix:bcrypt_hash[:profile],...
  WORDMATH_RATE_LIMIT_RPS, _BURST          global token bucket (off by default)
  WORDMATH_SQLITE_PATH                     local decision store
  POSTGRES_DSN                             profiles and API keys
  CLICKHOUSE_DSN                           decision analytics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", ":"+envOrDefault("WORDMATH_HTTP_PORT", "8080"), "HTTP listen address")
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc-addr", ":"+envOrDefault("WORDMATH_GRPC_PORT", "50051"), "gRPC listen address")
	cmd.Flags().DurationVar(&opts.reloadDebounce, "reload-debounce", defaultReloadDebounce, "quiet period before a changed config file is reloaded")
	cmd.Flags().BoolVar(&opts.noReload, "no-reload", false, "do not watch the config file")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	cfg, cfgPath, err := root.load()
	if err != nil {
		return err
	}

	logger := mustBuildLogger(envOrDefault("WORDMATH_LOG_LEVEL", cfg.Logging.Level), cfg.Logging.Format)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting wordmath server",
		zap.String("config", cfgPath),
		zap.String("http_addr", opts.httpAddr),
		zap.String("grpc_addr", opts.grpcAddr),
		zap.String("variant", cfg.Scoring.Variant),
	)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(promReg)

	writer, err := openSinks(ctx, *cfg, logger)
	if err != nil {
		return err
	}
	defer writer.Close()

	// Postgres pool (profiles and API keys)
	var pgStore *store.Store
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		db, err := store.Open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer func() { _ = db.Close() }()
		pgStore = store.NewStore(db)
		if err := pgStore.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		logger.Info("postgres connected")
	} else {
		logger.Info("no POSTGRES_DSN set, named profiles and key management disabled")
	}

	authenticator, err := buildAuthenticator(pgStore, logger)
	if err != nil {
		return err
	}
	if authenticator == nil {
		logger.Warn("no API keys configured, assessment endpoints are open")
	}

	build := func(name string, c config.Config) (*guard.Guard, error) {
		return guard.New(c,
			guard.WithWriter(writer),
			guard.WithLogger(logger),
			guard.WithMetrics(recorder),
			guard.WithProfile(name),
		)
	}
	def, err := build("", *cfg)
	if err != nil {
		return err
	}
	regOpts := registry.Options{
		Build:  build,
		TTL:    time.Duration(envOrDefaultInt("WORDMATH_PROFILE_CACHE_TTL_S", 30)) * time.Second,
		Logger: logger,
	}
	if pgStore != nil {
		regOpts.Source = pgStore
	}
	reg := registry.New(def, regOpts)

	deps := &api.Dependencies{
		Registry:  reg,
		Auth:      authenticator,
		Gatherer:  promReg,
		Logger:    logger,
		RateLimit: rate.Limit(envOrDefaultFloat("WORDMATH_RATE_LIMIT_RPS", 0)),
		Burst:     envOrDefaultInt("WORDMATH_RATE_LIMIT_BURST", 0),
	}
	if pgStore != nil {
		deps.Profiles = pgStore
	}

	// ClickHouse reader (decisions and analytics endpoints)
	if dsn := os.Getenv("CLICKHOUSE_DSN"); dsn != "" {
		reader, err := chread.NewReader(ctx, dsn, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = reader.Close() }()
			deps.Reader = reader
			logger.Info("clickhouse reader connected")
		}
	}

	httpServer := &http.Server{
		Addr:         opts.httpAddr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	server.RegisterGuardServiceServer(grpcServer, server.NewGuardServer(reg, authenticator, logger))
	lis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	if cfgPath != "" && !opts.noReload {
		rl, err := newReloader(cfgPath, opts.reloadDebounce, reloadDefault(root, cfgPath, *cfg, build, reg, logger), logger)
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			g.Go(func() error { return rl.Run(gctx) })
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()
	logger.Info("wordmath server stopped")
	return err
}

// openSinks builds the decision writer shared by every guard in the process.
// ClickHouse failures fall back to the remaining sinks; with no sink at all
// records go to the process log.
func openSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.DecisionWriter, error) {
	var sinks []storage.DecisionWriter
	closeAll := func() {
		_ = storage.NewMultiWriter(sinks...).Close()
	}

	if cfg.ShouldLog() {
		w, err := storage.OpenJSONL(cfg.Experiment.OutputPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
		logger.Info("jsonl decision log enabled", zap.String("path", w.Path()))
	}

	if dsn := os.Getenv("CLICKHOUSE_DSN"); dsn != "" {
		w, err := storage.NewClickHouseWriter(ctx, dsn, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, skipping sink", zap.Error(err))
		} else {
			sinks = append(sinks, w)
			logger.Info("clickhouse writer connected")
		}
	}

	if path := os.Getenv("WORDMATH_SQLITE_PATH"); path != "" {
		w, err := storage.OpenSQLite(ctx, path)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, w)
		logger.Info("sqlite decision store enabled", zap.String("path", path))
	}

	if len(sinks) == 0 {
		logger.Info("no decision sinks configured, using log writer")
		return storage.NewLogWriter(logger), nil
	}
	return storage.NewMultiWriter(sinks...), nil
}

// buildAuthenticator chains env keys ahead of Postgres keys. It returns a nil
// Authenticator when neither source is configured.
func buildAuthenticator(pgStore *store.Store, logger *zap.Logger) (auth.Authenticator, error) {
	var chain auth.ChainKeyStore
	if spec := os.Getenv("WORDMATH_API_KEY_HASHES"); spec != "" {
		static, err := auth.ParseStaticKeys(spec)
		if err != nil {
			return nil, fmt.Errorf("WORDMATH_API_KEY_HASHES: %w", err)
		}
		chain = append(chain, static)
	}
	if pgStore != nil {
		chain = append(chain, auth.NewSQLKeyStore(pgStore))
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return auth.NewKeyAuthenticator(auth.KeyAuthConfig{
		Store:    chain,
		CacheTTL: time.Duration(envOrDefaultInt("WORDMATH_AUTH_CACHE_TTL_S", 30)) * time.Second,
		Logger:   logger,
	}), nil
}

// reloadDefault rebuilds the default guard from the config file. Sinks stay
// as opened at startup.
func reloadDefault(root *rootOptions, path string, initial config.Config, build registry.Builder, reg *registry.Registry, logger *zap.Logger) func() error {
	fixed := *root
	fixed.configFile = path
	return func() error {
		next, _, err := fixed.load()
		if err != nil {
			return err
		}
		if next.ShouldLog() != initial.ShouldLog() || next.Experiment.OutputPath != initial.Experiment.OutputPath {
			logger.Warn("decision sinks are fixed at startup, restart to apply experiment changes")
		}
		g, err := build("", *next)
		if err != nil {
			return err
		}
		reg.SetDefault(g)
		return nil
	}
}
