package container

import (
	"context"

	"chatintent/adapters/cache"
	"chatintent/adapters/sqlstore"
	"chatintent/app"
	"chatintent/internal"
	"chatintent/internal/artifact"
	"chatintent/internal/config"
	"chatintent/internal/errors"
	"chatintent/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB    *sqlx.DB
	Redis *cache.RedisCache

	// Repositories and caches
	RunRepo ports.RunRepository
	Cache   ports.PredictionCache

	// Services
	Training       *app.TrainingService
	Classification *app.ClassificationService
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.Configuration("config cannot be nil")
	}
	return &Container{
		Config: cfg,
		Logger: internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)),
	}, nil
}

// InitWithDatabase opens the run registry unless storage.driver is none.
func (c *Container) InitWithDatabase(ctx context.Context) error {
	if c.Config.Storage.Driver == "none" {
		c.Logger.Info("run registry disabled")
		return nil
	}
	db, err := sqlstore.Open(ctx, c.Config.Storage)
	if err != nil {
		return err
	}
	c.DB = db
	c.RunRepo = sqlstore.NewRunRepository(db)
	c.Logger.Info("run registry ready (%s)", c.Config.Storage.Driver)
	return nil
}

// InitTraining wires the training pipeline
func (c *Container) InitTraining() {
	c.Training = app.NewTrainingService(c.Config, c.RunRepo, c.Logger)
}

// InitClassification loads the bundle and wires the prediction cache: redis
// when cache.redis_addr is set, in-memory otherwise.
func (c *Container) InitClassification(ctx context.Context, bundleDir string) error {
	bundle, err := artifact.Load(bundleDir)
	if err != nil {
		return errors.Wrapf(err, "failed to load model bundle %s", bundleDir)
	}

	if c.Config.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, c.Config.Cache.RedisAddr, c.Config.Cache.RedisDB)
		if err != nil {
			return err
		}
		c.Redis, c.Cache = rc, rc
	} else {
		c.Cache = cache.NewMemoryCache(10000)
	}

	c.Classification, err = app.NewClassificationService(bundle, c.Config.Inference, c.Cache, c.Config.Cache.TTL, c.Logger)
	if err != nil {
		return err
	}
	c.Logger.Info("serving bundle %s (fingerprint %s)", bundleDir, bundle.Fingerprint()[:12])
	return nil
}

// Close releases infrastructure connections
func (c *Container) Close() error {
	var firstErr error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
