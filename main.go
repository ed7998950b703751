package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"kanflow/api"
	"kanflow/config"
	"kanflow/integrations"
	"kanflow/service"
	"kanflow/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	logger.SetLevel(cfg.Level())
	log.SetLevel(cfg.Level())

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	otel.SetTracerProvider(tp)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, closeBase, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBase()

	var rc *redis.Client
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisOpts != nil {
		rc = redis.NewClient(redisOpts)
		defer rc.Close()
	} else {
		logger.Warn("redis not configured: task cache and idempotency keys disabled")
	}
	store := storage.NewCache(base, rc, cfg.CacheTTL)

	deps := api.Deps{Logger: logger}
	var events service.Publisher
	if cfg.StorageConnStr != "" {
		queue, err := storage.NewQueue(cfg.StorageConnStr, cfg.EventsQueue, cfg.ContactQueue)
		if err != nil {
			return fmt.Errorf("queue: %w", err)
		}
		publisher := api.NewEventPublisher(queue, logger, api.PublisherOptions{
			Workers:        cfg.PublisherWorkers,
			QueueSize:      cfg.PublisherQueueSize,
			HandoffTimeout: cfg.PublisherHandoff,
		})
		defer publisher.Close()
		events = publisher
		deps.Contact = queue
	}

	var external service.ExternalSource
	if cfg.IntegrationsFile != "" {
		icfg, err := integrations.LoadConfig(cfg.IntegrationsFile)
		if err != nil {
			return fmt.Errorf("integrations: %w", err)
		}
		providers, passive := icfg.Providers(nil)
		agg := integrations.NewAggregator(providers, passive, logger)
		external = agg
		deps.Integrations = agg
	}

	deps.Tasks = service.New(store, external, events, logger)
	if rc != nil {
		deps.Deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	}

	auth, err := newAuth(cfg)
	if err != nil {
		return err
	}
	deps.Auth = auth

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(middleware.Decompress())
	e.Use(api.Observe(logger))
	api.Register(e, deps)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.ListenAddr()).Info("server.start")
		if err := e.Start(cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, logger *log.Logger) (service.TaskStore, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := storage.NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				logger.WithError(err).Warn("postgres close failed")
			}
		}, nil
	default:
		tables, err := storage.NewTables(cfg.StorageConnStr, cfg.TasksTable)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		return tables, func() {}, nil
	}
}

func newAuth(cfg config.Config) (*api.Auth, error) {
	if secret := cfg.SharedSecret(); secret != nil {
		log.Warn("using HS256 shared secret authentication")
		return api.NewSharedSecretAuth(secret, cfg.Auth0Audience, issuerFor(cfg.Auth0Domain)), nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.WithError(err).Warn("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, issuerFor(cfg.Auth0Domain), cfg.JWKSCacheTTL), nil
}

func issuerFor(domain string) string {
	if domain == "" {
		return ""
	}
	return "https://" + domain + "/"
}
