package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/freewebtopdf/redirector/internal/analytics"
	"github.com/freewebtopdf/redirector/internal/api"
	"github.com/freewebtopdf/redirector/internal/cache"
	"github.com/freewebtopdf/redirector/internal/config"
	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/health"
	"github.com/freewebtopdf/redirector/internal/lifecycle"
	"github.com/freewebtopdf/redirector/internal/loader"
	"github.com/freewebtopdf/redirector/internal/resolver"
	"github.com/freewebtopdf/redirector/internal/rules"
	"github.com/freewebtopdf/redirector/internal/storage"
)

// application holds the wired service and everything that needs stopping
type application struct {
	db       *gorm.DB
	store    *storage.Store
	cache    domain.CacheManager
	rules    *rules.Service
	recorder *analytics.AsyncRecorder
	trimmer  *analytics.Trimmer
	router   *api.RouterResult
	closers  []func() error
}

// newApplication connects storage and cache and wires the HTTP surface
func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	db, err := storage.Open(ctx, storage.Options{
		Driver:        cfg.Storage.Driver,
		DSN:           cfg.Storage.DSN,
		MaxOpenConns:  cfg.Storage.MaxOpenConns,
		SlowThreshold: cfg.Storage.SlowQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a := &application{db: db}
	a.closers = append(a.closers, func() error { return storage.Close(db) })

	if a.store, err = storage.NewStore(db); err != nil {
		a.close()
		return nil, err
	}
	registry, err := storage.NewURIRegistry(db)
	if err != nil {
		a.close()
		return nil, err
	}

	if a.cache, err = a.buildCache(ctx, cfg); err != nil {
		a.close()
		return nil, err
	}

	var recorder domain.AnalyticsRecorder = analytics.NopRecorder{}
	var stats api.StatsReader
	if cfg.Analytics.Enabled {
		ips, err := analytics.NewIPProcessor(cfg.Analytics.HashIPs, cfg.Analytics.IPSalt)
		if err != nil {
			// IP capture is disabled; the rest of analytics keeps running
			log.Error().Err(err).Msg("Analytics IP handling misconfigured")
		}
		sink, err := analytics.NewGormSink(db, ips)
		if err != nil {
			a.close()
			return nil, err
		}
		a.recorder = analytics.NewAsyncRecorder(sink, cfg.Analytics.BufferSize)
		recorder = a.recorder
		stats = sink
		if cfg.Analytics.StatsLimit > 0 {
			a.trimmer = analytics.NewTrimmer(sink, cfg.Analytics.StatsLimit, cfg.Analytics.TrimInterval)
		}
	}

	validator := domain.NewValidator()
	a.rules = rules.NewService(a.store, a.cache, validator)

	redirectResolver := resolver.New(a.store, a.cache, recorder, resolver.Options{
		ExcludePatterns:     cfg.Redirects.ExcludePatterns,
		ExtraHeaders:        cfg.RedirectHeaders(),
		PreserveQueryString: cfg.Redirects.PreserveQueryString,
		NoCacheHeaders:      cfg.Redirects.NoCacheHeaders,
		BaseURL:             cfg.Redirects.BaseURL,
		CacheTTL:            cfg.Cache.TTL,
	})

	manager := lifecycle.NewManager(registry, registry, a.store, a.rules, recorder, lifecycle.Options{
		Enabled:    cfg.Lifecycle.Enabled,
		UndoWindow: cfg.Lifecycle.UndoWindow,
	})

	healthChecker := health.NewSystemHealthChecker(a.store, a.cache)
	if a.recorder != nil {
		healthChecker.Register("analytics", a.recorder)
	}

	a.router = api.SetupRouter(api.RouterDependencies{
		Rules:         a.rules,
		Resolver:      redirectResolver,
		Lifecycle:     manager,
		Stats:         stats,
		Repository:    a.store,
		Cache:         a.cache,
		Validator:     validator,
		HealthChecker: healthChecker,
	}, api.RouterConfig{
		CORSOrigins:    cfg.Security.CORSOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		RateLimitRPS:   cfg.Security.RateLimit,
		RateLimitBurst: cfg.Security.RateLimit * 2,
		DefaultSiteID:  cfg.Redirects.DefaultSiteID,
		Fallthrough:    true,
	})
	a.router.App.Server().ReadTimeout = cfg.Server.ReadTimeout
	a.router.App.Server().WriteTimeout = cfg.Server.WriteTimeout

	return a, nil
}

// buildCache picks the cache driver; an unreachable redis falls back to memory
func (a *application) buildCache(ctx context.Context, cfg *config.Config) (domain.CacheManager, error) {
	switch cfg.Cache.Driver {
	case "none":
		return cache.NewNoopCache(), nil
	case "redis":
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:       cfg.Cache.RedisAddr,
			Password:   cfg.Cache.RedisPassword,
			DB:         cfg.Cache.RedisDB,
			KeyPrefix:  cfg.Cache.RedisPrefix,
			DefaultTTL: cfg.Cache.TTL,
			Timeout:    cfg.Cache.RedisTimeout,
		})
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("Redis unavailable, using in-memory cache")
			return cache.NewLRUCache(cfg.Cache.MaxSize, cfg.Cache.TTL), nil
		}
		a.closers = append(a.closers, redisCache.Close)
		return redisCache, nil
	default:
		return cache.NewLRUCache(cfg.Cache.MaxSize, cfg.Cache.TTL), nil
	}
}

// start launches the background workers
func (a *application) start(ctx context.Context) {
	if a.recorder != nil {
		a.recorder.Start(ctx)
	}
	if a.trimmer != nil {
		a.trimmer.Start(ctx)
	}
}

// seed imports the redirect files found under dir. Existing sources are skipped.
func (a *application) seed(ctx context.Context, dir string) (rules.ImportResult, error) {
	ruleList, loadErrors, err := loader.LoadDir(ctx, dir)
	if err != nil {
		return rules.ImportResult{}, fmt.Errorf("failed to scan import directory: %w", err)
	}
	for _, le := range loadErrors {
		log.Warn().Str("file", le.FilePath).Int("line", le.Line).Str("error", le.Error).Msg("Skipping unreadable redirect file")
	}
	return a.rules.Import(ctx, ruleList), nil
}

// shutdown stops workers in dependency order: HTTP first, then analytics, then storage
func (a *application) shutdown(ctx context.Context) error {
	var errs []error
	if a.router != nil {
		if err := a.router.App.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		a.router.Cleanup()
	}
	if a.trimmer != nil {
		a.trimmer.Stop()
	}
	if a.recorder != nil {
		a.recorder.Stop()
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// close releases connections in reverse order of acquisition
func (a *application) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
