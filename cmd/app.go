package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"beatvault/cache"
	"beatvault/catalog"
	"beatvault/config"
	"beatvault/core/extractor"
	"beatvault/core/utils"
	"beatvault/db"
	"beatvault/ingest"
	"beatvault/logger"
	"beatvault/metrics"
	"beatvault/model"
	"beatvault/repair"
	"beatvault/repository"
	"beatvault/scheduler"
	"beatvault/server"
	"beatvault/state"
	"beatvault/storage"
)

// app holds the collaborators every command shares. Each is built once.
type app struct {
	cfg       *config.Config
	bucket    storage.Bucket
	store     *state.Store
	index     *catalog.Index
	rebuilder *catalog.Rebuilder
	repairer  *repair.Engine // nil without CDN_ORIGIN
	pipeline  *ingest.Pipeline
	ledger    repository.ImportLedger
	scheduler *scheduler.Scheduler
	cache     *cache.IndexCache // nil without Redis
	metrics   *metrics.Metrics
	registry  *prometheus.Registry

	redis *redis.Client
	gdb   *gorm.DB
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a := &app{cfg: cfg}

	bucket, err := storage.OpenForBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.bucket = bucket
	a.store = state.New(cfg.StateBackend, bucket)

	var invalidator catalog.Invalidator
	if cfg.RedisEnabled {
		a.redis, err = db.ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.cache = cache.NewIndexCache(a.redis, 0)
		invalidator = a.cache
		logger.Info("Successfully connected to Redis", logger.String("host", cfg.RedisHost))
	}

	a.index = catalog.NewIndex(bucket, invalidator)
	a.rebuilder = catalog.NewRebuilder(bucket, a.index, cfg.AudioPrefixes)

	if cfg.CDNOrigin != "" {
		a.repairer, err = repair.NewEngine(bucket, cfg.CDNOrigin, cfg.StaleDomains)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	switch cfg.LedgerBackend {
	case config.LedgerMySQL:
		a.gdb, err = db.ConnectGormDB(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.ledger = repository.NewGormLedger(a.gdb)
	default:
		a.ledger = repository.NewStateLedger(a.store)
	}

	license, err := model.ParseLicenseType(cfg.DefaultLicense)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = ingest.NewPipeline(bucket, a.index, a.ledger,
		extractor.NewYTDLP(cfg.YTDLPPath, cfg.ExtractTimeout),
		ingest.Options{
			WorkDir: cfg.WorkDir,
			Price:   cfg.DefaultPrice,
			License: license,
			Retry:   utils.DefaultRetry,
		})

	opts := scheduler.Options{
		Interval:      cfg.SchedulerInterval,
		CollectionMax: cfg.CollectionMax,
	}
	if a.redis != nil {
		opts.Guard = scheduler.NewRedisLease(a.redis, scheduler.DefaultLeaseKey, cfg.TickTimeout+5*time.Minute)
	}
	a.scheduler = scheduler.New(a.store, a.pipeline, opts)

	a.registry = metrics.NewRegistry()
	a.metrics = metrics.New(a.registry)

	logger.Info("beatvault initialised",
		logger.String("backend", string(cfg.StateBackend)),
		logger.String("ledger", cfg.LedgerBackend),
		logger.Bool("redis", a.redis != nil))
	return a, nil
}

// serverDeps adapts the app to the HTTP layer.
func (a *app) serverDeps() server.Deps {
	d := server.Deps{
		Config:    a.cfg,
		Bucket:    a.bucket,
		Index:     a.index,
		Rebuilder: a.rebuilder,
		Repairer:  a.repairer,
		Pipeline:  a.pipeline,
		Ledger:    a.ledger,
		Scheduler: a.scheduler,
		Metrics:   a.metrics,
	}
	if a.cache != nil {
		d.Cache = a.cache
	}
	return d
}

// Close releases the optional connections.
func (a *app) Close() {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.gdb != nil {
		errs = append(errs, db.CloseGormDB(a.gdb))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("error while closing connections", logger.ErrorField(err))
	}
}
