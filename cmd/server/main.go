// Package main is the entrypoint for the ThreatLens API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/threatlens/internal/ai"
	"github.com/kiranshivaraju/threatlens/internal/api"
	"github.com/kiranshivaraju/threatlens/internal/api/handler"
	mw "github.com/kiranshivaraju/threatlens/internal/api/middleware"
	"github.com/kiranshivaraju/threatlens/internal/archive"
	"github.com/kiranshivaraju/threatlens/internal/cache"
	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/internal/detection"
	"github.com/kiranshivaraju/threatlens/internal/metrics"
	"github.com/kiranshivaraju/threatlens/internal/scorer"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	shutdownTimeout = 30 * time.Second
	adminKeyName    = "bootstrap-admin"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"store", cfg.Store.Backend,
		"scorer", cfg.Scorer.Backend,
		"ai_provider", cfg.AI.Provider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Wire dependencies
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// 3. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// app is the wired server and the resources it owns.
type app struct {
	handler http.Handler
	store   store.Store
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st, err := openStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	a.store = st

	checks := handler.HealthChecks{"store": st, "cache": nil, "archive": nil}

	var redisCache *cache.RedisCache
	if cfg.Redis.URL != "" {
		redisCache, err = cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		a.closers = append(a.closers, func() { redisCache.Close() })
		if err := redisCache.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		checks["cache"] = redisCache
		slog.Info("redis connected")
	}

	text, err := newPhishingScorer(cfg, redisCache)
	if err != nil {
		return nil, err
	}

	binary, err := scorer.NewBinaryScorer(cfg.Scorer)
	if err != nil {
		return nil, fmt.Errorf("create binary scorer: %w", err)
	}
	slog.Info("binary scorer initialized", "scorer", binary.Name())

	opts := []detection.Option{
		detection.WithFallbackOnError(cfg.Scorer.FallbackOnError),
		detection.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	}
	if cfg.Archive.Enabled() {
		archiveStore, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("create archive: %w", err)
		}
		opts = append(opts, detection.WithArchive(archiveStore))
		checks["archive"] = archiveStore
		slog.Info("upload archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}
	svc := detection.NewService(st, binary, text, opts...)

	if err := bootstrapAdminKey(ctx, st, cfg.Auth.AdminAPIKey); err != nil {
		return nil, fmt.Errorf("bootstrap admin key: %w", err)
	}

	rateLimit := mw.NewLocalRateLimit(cfg.Server.RateLimitPerMin)
	if redisCache != nil {
		rateLimit = mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin).Limit
	}

	a.handler = api.NewRouter(api.Dependencies{
		Auth:               mw.NewAuth(st, cfg.Auth.Required),
		RateLimit:          rateLimit,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,

		HealthHandler:  handler.NewHealthHandler(checks),
		MetricsHandler: metrics.Handler(),

		VoiceHandler:    handler.NewVoiceHandler(svc),
		DeepfakeHandler: handler.NewDeepfakeHandler(svc),
		PhishingHandler: handler.NewPhishingHandler(svc),

		ListHistoryHandler: handler.NewListHistoryHandler(st),
		GetHistoryHandler:  handler.NewGetHistoryHandler(st),

		CreateKeyHandler: handler.NewCreateKeyHandler(st),
		ListKeysHandler:  handler.NewListKeysHandler(st),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(st),
	})
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, a *app) (store.Store, error) {
	if cfg.Store.Backend != config.StorePostgres {
		slog.Info("using in-memory result store")
		return store.NewMemoryStore(), nil
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	return store.NewPostgresStore(pool), nil
}

// newPhishingScorer returns the LLM-backed scorer, or the keyword heuristic
// when no provider is configured.
func newPhishingScorer(cfg *config.Config, c *cache.RedisCache) (*scorer.PhishingScorer, error) {
	if cfg.AI.Provider == "" {
		slog.Info("no AI provider configured, using keyword heuristic")
		return scorer.NewPhishingScorer(nil), nil
	}

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name())

	opts := []scorer.PhishingOption{scorer.WithInferenceTimeout(cfg.AI.InferenceTimeout)}
	if c != nil {
		opts = append(opts, scorer.WithCache(c, cfg.AI.CacheTTL))
	}
	return scorer.NewPhishingScorer(provider, opts...), nil
}

// bootstrapAdminKey stores rawKey as an admin key unless it is already present.
func bootstrapAdminKey(ctx context.Context, st store.Store, rawKey string) error {
	if rawKey == "" {
		return nil
	}

	existing, err := st.GetAPIKeyByPrefix(ctx, rawKey[:mw.KeyPrefixLen])
	if err != nil {
		return err
	}
	for _, k := range existing {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			slog.Info("admin api key already present", "key_prefix", k.KeyPrefix)
			return nil
		}
	}

	key, err := handler.NewAPIKey(adminKeyName, rawKey, []string{models.ScopeAdmin}, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return err
	}
	slog.Info("admin api key created", "key_prefix", key.KeyPrefix)
	return nil
}
