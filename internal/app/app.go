// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the serve and replay commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/clock"
	"github.com/JakeFAU/maxscroll/internal/config"
	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/hit/sinks"
	"github.com/JakeFAU/maxscroll/internal/maxscroll"
	"github.com/JakeFAU/maxscroll/internal/metrics"
	"github.com/JakeFAU/maxscroll/internal/store"
	"github.com/JakeFAU/maxscroll/internal/store/memory"
	"github.com/JakeFAU/maxscroll/internal/store/postgres"
	redisstore "github.com/JakeFAU/maxscroll/internal/store/redis"
)

// App holds all the shared, long-lived services for the application.
type App struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	provider store.Provider
	hub      *hit.Hub
	registry *Registry

	closers []func() error
}

// Options adjusts how New assembles the services.
type Options struct {
	// Clock drives sessions and idle eviction; defaults to the system clock.
	Clock clock.Clock
	// ExtraSinks receive hits alongside the configured sinks.
	ExtraSinks []hit.Sink
	// TrackerOverrides adjusts the tracker options built from config.
	TrackerOverrides func(*maxscroll.Options)
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Metrics returns the service metrics.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Provider returns the configured state store.
func (a *App) Provider() store.Provider { return a.provider }

// Hub returns the hit fan-out.
func (a *App) Hub() *hit.Hub { return a.hub }

// Registry returns the client registry.
func (a *App) Registry() *Registry { return a.registry }

// New creates and initializes an App from cfg. It fails fast if any
// configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.hub.Close(context.Background())
			_ = a.runClosers()
		}
	}()

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	a.metrics = m

	a.provider, err = a.openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	hitSinks, err := a.buildSinks(ctx, cfg)
	if err != nil {
		return nil, err
	}
	hitSinks = append(hitSinks, opts.ExtraSinks...)
	hubCfg := cfg.Hub.Settings()
	hubCfg.Logger = logger.Named("hub")
	a.hub = hit.NewHub(hubCfg, hitSinks...)

	trackerMetrics, err := maxscroll.NewMetrics(m.Registry())
	if err != nil {
		return nil, fmt.Errorf("init tracker metrics: %w", err)
	}
	trackerOpts := cfg.Tracker.Options()
	trackerOpts.Metrics = trackerMetrics
	if opts.TrackerOverrides != nil {
		opts.TrackerOverrides(&trackerOpts)
	}

	a.registry, err = NewRegistry(RegistryConfig{
		TrackingID:  cfg.Tracker.TrackingID,
		Tracker:     trackerOpts,
		Provider:    a.provider,
		Emitter:     a.hub,
		Metrics:     m,
		IdleTimeout: cfg.Registry.IdleTimeout(),
		Clock:       opts.Clock,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("sinks", len(hitSinks)),
	)
	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.StoreConfig) (store.Provider, error) {
	switch cfg.Driver {
	case config.StoreMemory, "":
		a.logger.Info("using in-memory state store; state is lost on restart")
		return memory.NewProvider(), nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.logger.Info("using redis state store", zap.String("addr", cfg.Redis.Addr))
		return redisstore.NewProvider(client, redisstore.Config{
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Redis.TTL(),
		}), nil
	case config.StorePostgres:
		p, err := postgres.NewProvider(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error { p.Close(); return nil })
		if err := p.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("using postgres state store", zap.String("table", cfg.Postgres.Table))
		return p, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func (a *App) buildSinks(ctx context.Context, cfg config.Config) ([]hit.Sink, error) {
	var out []hit.Sink
	if cfg.Hub.LogSink {
		out = append(out, sinks.NewLogSink(a.logger.Named("hits")))
	}
	if cfg.Hub.PrometheusSink {
		ps, err := sinks.NewPrometheusSink(a.metrics.Registry())
		if err != nil {
			return nil, fmt.Errorf("init prometheus sink: %w", err)
		}
		out = append(out, ps)
	}
	if cfg.PubSub.Enabled {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Info("publishing hits to pubsub", zap.String("topic", cfg.PubSub.TopicName))
		out = append(out, sinks.NewPubSubSink(client.Topic(cfg.PubSub.TopicName)))
	}
	if cfg.Archive.Enabled {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		if _, err := client.Bucket(cfg.Archive.Bucket).Attrs(ctx); err != nil {
			return nil, fmt.Errorf("archive bucket %q attributes: %w", cfg.Archive.Bucket, err)
		}
		a.logger.Info("archiving hits to cloud storage", zap.String("bucket", cfg.Archive.Bucket))
		out = append(out, sinks.NewArchiveSink(client, cfg.Archive.Bucket, cfg.Archive.Prefix, a.logger.Named("archive")))
	}
	return out, nil
}

// Close tears down clients, drains the hub, and releases backends.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	if a.registry != nil {
		a.registry.Close()
	}
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.runClosers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) runClosers() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
