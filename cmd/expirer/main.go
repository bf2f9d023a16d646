package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/internal/blocks"
	"github.com/libraryops/patron-blocks/internal/config"
	"github.com/libraryops/patron-blocks/internal/db"
	"github.com/libraryops/patron-blocks/internal/db/repository"
	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/internal/service"
	"github.com/libraryops/patron-blocks/internal/validation"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Service: "patron-blocks-expirer",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Log.Info("Expired block sweeper starting",
		zap.Duration("interval", cfg.Expirer.Interval),
		zap.Int("batchSize", cfg.Expirer.BatchSize),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, &db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         "disable",
		MaxConns:        int32(cfg.Database.MaxConnections),
		MinConns:        int32(cfg.Database.MinConnections),
		MaxConnLifetime: cfg.Database.MaxLifetime,
		MaxConnIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close(pool)

	var active service.ActiveRecords
	redisClient, err := service.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Log.Warn("Redis unavailable, active records will not be tracked", zap.Error(err))
	} else {
		defer redisClient.Close()
		active = service.NewActiveRecordStore(redisClient, cfg.Redis.ActiveRecordTTL)
	}

	expirerOpts := []blocks.ExpirerOption{
		blocks.WithSource("sweeper"),
		blocks.WithConcurrency(cfg.Expirer.Concurrency),
	}
	publisher, err := service.NewMessagePublisher(&cfg.RabbitMQ)
	if err != nil {
		logger.Log.Warn("RabbitMQ unavailable, expired blocks will not be announced", zap.Error(err))
	} else {
		defer publisher.Close()
		expirerOpts = append(expirerOpts, blocks.WithNotifier(service.NewExpiryNotifier(publisher)))
	}

	repo := repository.NewManualBlockRepository(pool)
	store := service.NewRecordStore(repo, nil, active, validation.New(nil))

	sweeper := &Sweeper{
		repo:      repo,
		expirer:   blocks.NewExpirer(store, expirerOpts...),
		batchSize: cfg.Expirer.BatchSize,
		now:       time.Now,
	}

	sweeper.Run(ctx, cfg.Expirer.Interval)
	logger.Log.Info("Expired block sweeper stopped")
}

// Sweeper retires expired manual blocks of every patron.
type Sweeper struct {
	repo      repository.ManualBlockRepository
	expirer   *blocks.Expirer
	batchSize int
	now       func() time.Time
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepExpired(ctx); err != nil {
			logger.Log.Error("Sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepExpired removes one batch of expired manual blocks.
func (s *Sweeper) SweepExpired(ctx context.Context) (blocks.Report, error) {
	rows, err := s.repo.ListExpired(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		return blocks.Report{}, fmt.Errorf("failed to list expired blocks: %w", err)
	}

	if len(rows) == 0 {
		logger.Log.Debug("No expired blocks")
		return blocks.Report{}, nil
	}

	expired := make([]models.Block, 0, len(rows))
	for _, r := range rows {
		expired = append(expired, models.FromManual(*r))
	}

	report := s.expirer.Expire(ctx, expired)

	logger.Log.Info("Sweep completed",
		zap.Int("total", len(expired)),
		zap.Int("removed", len(report.Removed)),
		zap.Int("failed", len(report.Failed)),
	)

	return report, report.Err()
}
