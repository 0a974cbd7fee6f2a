package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/foxzi/mailjob/internal/api"
	"github.com/foxzi/mailjob/internal/cache"
	"github.com/foxzi/mailjob/internal/config"
	"github.com/foxzi/mailjob/internal/controller"
	"github.com/foxzi/mailjob/internal/metrics"
	"github.com/foxzi/mailjob/internal/runs"
	"github.com/foxzi/mailjob/internal/session"
)

// App wires the session, gateway, cache and controllers for one CLI run
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Session *session.Store
	API     *api.Client
	Cache   *cache.Store
	Runs    *runs.Viewer
	Jobs    *controller.Controller
	Metrics *metrics.Metrics
}

type options struct {
	tokens    session.TokenStore
	logOutput io.Writer
}

// Option customizes New
type Option func(*options)

// WithTokenStore replaces the keyring token store
func WithTokenStore(ts session.TokenStore) Option {
	return func(o *options) { o.tokens = ts }
}

// WithLogOutput sends logs to w instead of stderr
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// New creates the application and hydrates the session from storage
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logger := setupLogger(cfg.Logging, o.logOutput)

	m := metrics.New()
	metrics.SetGlobal(m)

	tokens := o.tokens
	if tokens == nil {
		ring, err := session.OpenKeyring(session.KeyringConfig{
			ServiceName:  cfg.Session.ServiceName,
			Backend:      cfg.Session.Backend,
			FileDir:      cfg.Session.FileDir,
			FilePassword: cfg.Session.FilePassword,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open token storage: %w", err)
		}
		tokens = session.NewKeyringStore(ring)
	}

	store := session.NewStore(tokens, logger)
	client := api.NewClient(api.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
	}, store, logger)

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Session: store,
		API:     client,
		Metrics: m,
	}

	if cfg.CacheEnabled() {
		c, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			// the cache is an optimization; run without it
			logger.Warn("local cache unavailable", "path", cfg.Cache.Path, "error", err)
		} else {
			a.Cache = c
			if n, err := c.Prune(ctx, time.Now().Add(-cfg.Cache.MaxAge)); err != nil {
				logger.Warn("failed to prune cache", "error", err)
			} else if n > 0 {
				logger.Debug("pruned cache entries", "count", n)
			}
		}
	}

	store.OnInvalidate(func() {
		a.purgeCache(context.Background())
	})

	a.Runs = runs.NewViewer(client, a.Cache, logger)
	a.Jobs = controller.New(client, a.Runs, a.Cache, logger)

	store.Hydrate(ctx)
	return a, nil
}

// RequireSession returns session.ErrNotAuthenticated when nobody is signed in
func (a *App) RequireSession() error {
	if !a.Session.IsAuthenticated() {
		return session.ErrNotAuthenticated
	}
	return nil
}

// Login signs in with credentials. Cached data of a previous user is dropped.
func (a *App) Login(ctx context.Context, email, password string) (session.Session, error) {
	sess, err := a.Session.Login(ctx, a.API, email, password)
	if err != nil {
		return sess, err
	}
	a.purgeCache(ctx)
	return sess, nil
}

// Register creates an account and signs in
func (a *App) Register(ctx context.Context, email, password, name string) (session.Session, error) {
	sess, err := a.Session.Register(ctx, a.API, email, password, name)
	if err != nil {
		return sess, err
	}
	a.purgeCache(ctx)
	return sess, nil
}

// Adopt signs in with a token delivered by the browser
func (a *App) Adopt(ctx context.Context, token string) (session.Session, error) {
	sess, err := a.Session.Adopt(ctx, token)
	if err != nil {
		return sess, err
	}
	a.purgeCache(ctx)
	return sess, nil
}

// Logout clears the session and the cache. It never fails.
func (a *App) Logout(ctx context.Context) {
	a.Session.Logout(ctx)
	a.purgeCache(ctx)
}

func (a *App) purgeCache(ctx context.Context) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.Purge(ctx); err != nil {
		a.Logger.Warn("failed to purge cache", "error", err)
	}
}

// MetricsServer returns a started metrics server, or nil when disabled
func (a *App) MetricsServer() (*metrics.Server, error) {
	if !a.Config.Metrics.Enabled {
		return nil, nil
	}
	srv := metrics.NewServer(a.Metrics, a.Config.Metrics.ListenAddr, a.Config.Metrics.Path, a.Logger)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	return srv, nil
}

// Close releases the cache
func (a *App) Close() error {
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
