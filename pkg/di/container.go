package di

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-bgg-cache/bgg"
	"github.com/goliatone/go-bgg-cache/cache"
	"github.com/goliatone/go-bgg-cache/catalog"
	"github.com/goliatone/go-bgg-cache/freshness"
	"github.com/goliatone/go-bgg-cache/internal/config"
	"github.com/goliatone/go-bgg-cache/internal/httpapi"
	"github.com/goliatone/go-bgg-cache/internal/logging"
	"github.com/goliatone/go-bgg-cache/internal/telemetry"
	"github.com/goliatone/go-bgg-cache/refresh"
	"github.com/goliatone/go-bgg-cache/repositorycache"
	"github.com/goliatone/go-bgg-cache/store"
)

// Container wires the application from a config.Config. Every component is
// built once in NewContainer and shared.
type Container struct {
	config        config.Config
	logger        *slog.Logger
	db            *bun.DB
	store         *store.Store
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	finder        *repositorycache.CachedFinder
	classifier    *freshness.Classifier
	gateway       refresh.Gateway
	refresher     *refresh.Refresher
	catalog       *catalog.Service

	closers           []io.Closer
	shutdownTelemetry telemetry.ShutdownFunc
}

type options struct {
	logger      *slog.Logger
	gateway     refresh.Gateway
	collections catalog.CollectionSource
	now         func() time.Time
	sleep       refresh.SleepFunc
	httpClient  *http.Client
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

// WithLogger replaces the logger built from the log section.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithGateway replaces the BGG client used for refreshes. When gw also
// resolves collections it serves those too.
func WithGateway(gw refresh.Gateway) Option {
	return func(o *options) { o.gateway = gw }
}

// WithCollectionSource replaces the collection resolver.
func WithCollectionSource(src catalog.CollectionSource) Option {
	return func(o *options) { o.collections = src }
}

// WithClock sets the time source for freshness and write timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSleep sets the pause used between refresh batches.
func WithSleep(sleep refresh.SleepFunc) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithHTTPClient sets the HTTP client of the BGG gateway.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// NewContainer validates cfg and builds every component. On failure anything
// already opened is closed.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (c *Container, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c = &Container{config: cfg, keySerializer: cache.NewDefaultKeySerializer()}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
			c = nil
		}
	}()

	c.logger = o.logger
	if c.logger == nil {
		logger, closer := logging.New(logConfig(cfg.Log))
		c.logger = logger
		c.closers = append(c.closers, closer)
	}

	c.shutdownTelemetry, err = telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, err
	}

	c.db, err = store.Open(ctx, store.Config{
		Driver:        cfg.Database.Driver,
		DSN:           cfg.Database.DSN,
		MaxOpenConns:  cfg.Database.MaxOpenConns,
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
		Debug:         cfg.Database.Debug,
		Logger:        c.logger,
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.db)
	if err = store.EnsureSchema(ctx, c.db); err != nil {
		return nil, err
	}
	c.store = store.New(c.db, store.WithClock(o.now), store.WithLogger(c.logger))

	var reader catalog.Reader = c.store
	var catalogOpts []catalog.Option
	if cfg.ReadCache.Enabled {
		c.cacheService, err = cache.NewCacheService(cacheConfig(cfg.ReadCache))
		if err != nil {
			return nil, err
		}
		c.finder = repositorycache.New(c.store, c.cacheService, c.keySerializer, repositorycache.WithLogger(c.logger))
		reader = c.finder
		catalogOpts = append(catalogOpts, catalog.WithInvalidator(c.finder))
	}

	c.classifier = freshness.New(c.store, freshness.Config{
		Window:           cfg.Freshness.Window,
		MinSchemaVersion: cfg.Freshness.MinSchemaVersion,
		Now:              o.now,
		Logger:           c.logger,
	})

	c.gateway = o.gateway
	collections := o.collections
	if c.gateway == nil {
		client, err := bgg.New(bgg.Config{
			BaseURL:     cfg.BGG.BaseURL,
			Token:       cfg.BGG.Token,
			UserAgent:   cfg.BGG.UserAgent,
			Timeout:     cfg.BGG.Timeout,
			MaxAttempts: cfg.BGG.MaxAttempts,
			BatchSize:   cfg.Refresh.BatchSize,
			Logger:      c.logger,
			HTTPClient:  o.httpClient,
		})
		if err != nil {
			return nil, err
		}
		c.gateway = client
	}
	if collections == nil {
		if src, ok := c.gateway.(catalog.CollectionSource); ok {
			collections = src
		}
	}
	if collections != nil {
		catalogOpts = append(catalogOpts, catalog.WithCollections(collections))
	}

	c.refresher = refresh.New(c.gateway, c.store, refresh.Config{
		BatchSize:     cfg.Refresh.BatchSize,
		Delay:         refreshDelay(cfg.Refresh.Delay),
		SchemaVersion: cfg.Freshness.WriteSchemaVersion,
		Sleep:         o.sleep,
		Logger:        c.logger,
	})

	c.catalog = catalog.New(c.classifier, c.refresher, reader, catalog.Config{
		RefreshTimeout: cfg.Refresh.Timeout,
		Logger:         c.logger,
	}, catalogOpts...)

	c.logger.Debug("container ready",
		"driver", cfg.Database.Driver,
		"read_cache", cfg.ReadCache.Enabled,
		"batch_size", c.refresher.BatchSize(),
	)
	return c, nil
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

func (c *Container) Logger() *slog.Logger {
	return c.logger
}

func (c *Container) DB() *bun.DB {
	return c.db
}

func (c *Container) Store() *store.Store {
	return c.store
}

// CacheService returns the read cache, or nil when it is disabled.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Finder returns the cached reader, or nil when the read cache is disabled.
func (c *Container) Finder() *repositorycache.CachedFinder {
	return c.finder
}

func (c *Container) Classifier() *freshness.Classifier {
	return c.classifier
}

func (c *Container) Refresher() *refresh.Refresher {
	return c.refresher
}

func (c *Container) Catalog() *catalog.Service {
	return c.catalog
}

// HTTPHandler returns the instrumented HTTP API.
func (c *Container) HTTPHandler() http.Handler {
	return httpapi.New(c.catalog, c.logger).Handler()
}

// Close flushes telemetry and releases the database and log file.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.shutdownTelemetry != nil {
		if err := c.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, err)
		}
		c.shutdownTelemetry = nil
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func logConfig(cfg config.LogConfig) logging.Config {
	return logging.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

func cacheConfig(cfg config.ReadCacheConfig) cache.Config {
	return cache.Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.Shards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
	}
}

// refreshDelay maps a configured zero delay to "no pause"; the refresher
// reads zero as its default.
func refreshDelay(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
