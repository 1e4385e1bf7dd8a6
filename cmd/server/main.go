package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kidledger/internal/config"
	"kidledger/internal/handler"
	"kidledger/internal/infrastructure/cache"
	"kidledger/internal/infrastructure/database"
	"kidledger/internal/infrastructure/lock"
	"kidledger/internal/infrastructure/mq"
	"kidledger/internal/job"
	"kidledger/internal/logging"
	"kidledger/internal/service"
	"kidledger/pkg/idgen"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	workerID := flag.Int64("worker-id", 1, "snowflake worker id, unique per instance")
	flag.Parse()

	if err := run(*configPath, *workerID); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, workerID int64) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logging.SetDefault(logger)

	if err := idgen.Init(workerID); err != nil {
		return err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var locker lock.Locker
	if cfg.Redis.Enabled() {
		client, err := cache.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, cfg.Business.LockTTL(), cfg.Business.LockRetryInterval(), cfg.Business.LockMaxRetries)
		logger.Info("wallet locks backed by redis", "host", cfg.Redis.Host)
	} else {
		locker = lock.NewLocalLocker(cfg.Business.LockRetryInterval() * time.Duration(cfg.Business.LockMaxRetries))
		logger.Info("wallet locks are in-process")
	}

	publisher, err := mq.NewPublisher(&cfg.Broker)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	if publisher != nil {
		defer publisher.Close()
	}

	ledger := service.NewLedgerService(db, locker, cfg, logger)
	missions := service.NewMissionService(db, locker, ledger, cfg, logger)
	allowances := service.NewAllowanceService(db, ledger, cfg, logger)
	outbox := service.NewOutboxService(db, logger)
	if backlog, err := outbox.Backlog(ctx); err != nil {
		logger.Warn("read outbox backlog failed", logging.FieldError, err)
	} else if backlog.Pending > 0 || backlog.Failed > 0 {
		logger.Info("outbox backlog at startup", "pending", backlog.Pending, "failed", backlog.Failed)
	}
	h := handler.NewHandler(handler.Services{
		Ledger:     ledger,
		Missions:   missions,
		Users:      service.NewUserService(db, cfg, logger),
		Allowances: allowances,
		Dashboard:  service.NewDashboardService(db, ledger, missions),
		Outbox:     outbox,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.SetupRouter(h, logger, cfg.Server.Mode),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if publisher != nil {
		sender := job.NewOutboxSender(db, publisher, cfg, logger)
		g.Go(func() error { sender.Start(gctx); return nil })
	} else {
		logger.Warn("broker.kind is none, outbox events stay pending")
	}

	expiry := job.NewMissionExpiryJob(cfg.Business.MissionSweepInterval(), missions.ExpireStaleMissions, logger)
	g.Go(func() error { expiry.Start(gctx); return nil })

	payroll := job.NewAllowanceJob(cfg.Business.AllowanceInterval(), func(ctx context.Context) (int, error) {
		return allowances.PayDue(ctx, cfg.Business.AllowanceBatchSize)
	}, logger)
	g.Go(func() error { payroll.Start(gctx); return nil })

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
