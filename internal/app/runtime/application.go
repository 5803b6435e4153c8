// Package runtime builds the server process from configuration.
package runtime

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/groupfit/server/internal/app"
	"github.com/groupfit/server/internal/app/auth"
	"github.com/groupfit/server/internal/app/httpapi"
	"github.com/groupfit/server/internal/app/jobs"
	"github.com/groupfit/server/internal/app/media"
	"github.com/groupfit/server/internal/app/storage/postgres"
	"github.com/groupfit/server/internal/config"
	"github.com/groupfit/server/internal/logging"
	"github.com/groupfit/server/internal/middleware"
	"github.com/groupfit/server/internal/platform/migrations"
)

// minSecretLength is the shortest accepted JWT signing key, in bytes.
const minSecretLength = 32

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        config.Config
	log        *logging.Logger
	app        *app.Application
	httpServer *http.Server
	handler    http.Handler
	db         *sql.DB
	redis      *redis.Client
	audit      *httpapi.FileAuditSink
}

// NewApplication constructs the application described by cfg.
func NewApplication(cfg config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New("groupfit", cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, log: log}
	if err := a.build(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build() error {
	cfg := a.cfg

	secret, err := parseSigningKey(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("jwt secret: %w", err)
	}
	tokens, err := auth.NewTokens(string(secret), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("configure tokens: %w", err)
	}

	files, err := media.NewDisk(cfg.Media.Root, cfg.Media.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("configure media: %w", err)
	}

	stores, err := a.buildStores()
	if err != nil {
		return fmt.Errorf("configure stores: %w", err)
	}

	revocations, err := a.buildRevocations()
	if err != nil {
		return fmt.Errorf("configure revocations: %w", err)
	}

	application, err := app.New(stores, app.Options{
		Hasher:      auth.NewHasher(),
		Tokens:      tokens,
		Revocations: revocations,
		Media:       files,
	}, a.log)
	if err != nil {
		return err
	}
	a.app = application

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, a.log)
	}

	sink, err := httpapi.NewFileAuditSink(cfg.Server.AuditLogPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	a.audit = sink
	var auditSink httpapi.AuditSink
	if sink != nil {
		auditSink = sink
	}

	var cleaner jobs.LimiterCleaner
	if limiter != nil {
		cleaner = limiter
	}
	housekeeper, err := jobs.NewHousekeeper(cfg.Housekeeping.Schedule, revocations, cleaner, a.log)
	if err != nil {
		return err
	}
	if err := application.Attach(housekeeper); err != nil {
		return fmt.Errorf("register housekeeping: %w", err)
	}

	a.handler = httpapi.NewHandler(application, httpapi.Options{
		Logger:         a.log,
		AllowedOrigins: cfg.CORS.Origins(),
		RateLimiter:    limiter,
		AuditSink:      auditSink,
		AuditBuffer:    cfg.Server.AuditBuffer,
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
	})
	a.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return nil
}

func (a *Application) buildStores() (app.Stores, error) {
	if !strings.EqualFold(a.cfg.Database.Driver, "postgres") {
		a.log.Warn("using in-memory store; data is lost on restart")
		return app.Stores{}, nil
	}

	db, err := OpenDatabase(a.cfg.Database)
	if err != nil {
		return app.Stores{}, err
	}
	a.db = db
	if a.cfg.Database.AutoMigrate {
		if err := migrations.Apply(db); err != nil {
			return app.Stores{}, fmt.Errorf("apply migrations: %w", err)
		}
	}
	store := postgres.New(db)
	return app.Stores{Members: store, Groups: store, Friends: store, Health: store}, nil
}

func (a *Application) buildRevocations() (auth.Revocations, error) {
	if a.cfg.Redis.Addr == "" {
		return auth.NewMemoryRevocations(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.redis = client
	revocations := auth.NewRedisRevocations(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := revocations.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return revocations, nil
}

// App returns the composed services.
func (a *Application) App() *app.Application {
	return a.app
}

// Handler returns the HTTP handler with its middleware chain.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Run starts the lifecycle services and the HTTP server and blocks until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithContext(ctx).WithField("addr", a.cfg.Server.Addr).Info("HTTP server listening")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server, then the services, then
// the connections.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http: %w", err))
		}
	}
	if a.app != nil {
		if err := a.app.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	a.close()
	return errors.Join(errs...)
}

func (a *Application) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.db = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
		a.redis = nil
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.WithError(err).Warn("error closing audit log")
		}
		a.audit = nil
	}
}

// OpenDatabase opens and pings the postgres database.
func OpenDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// parseSigningKey accepts a raw, base64 or hex encoded key of at least
// minSecretLength bytes.
func parseSigningKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("missing signing key")
	}

	// hex
	if decoded, err := hex.DecodeString(value); err == nil && len(decoded) >= minSecretLength {
		return decoded, nil
	}

	// base64
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) >= minSecretLength {
		return decoded, nil
	}

	// raw bytes
	if len(value) >= minSecretLength {
		return []byte(value), nil
	}

	return nil, fmt.Errorf("must be at least %d bytes, raw or base64/hex encoded", minSecretLength)
}
