package job

import (
	"context"
	"time"

	"kidledger/internal/logging"
)

// Sweeper runs one batch of scheduled work and reports how many items it handled.
type Sweeper func(ctx context.Context) (int, error)

// Ticker runs a Sweeper on a fixed interval until stopped.
type Ticker struct {
	name     string
	sweep    Sweeper
	logger   *logging.Logger
	stopCh   chan struct{}
	interval time.Duration
}

func NewTicker(name string, interval time.Duration, sweep Sweeper, logger *logging.Logger) *Ticker {
	return &Ticker{
		name:     name,
		sweep:    sweep,
		logger:   logger.WithComponent(logging.ComponentJob).With("job", name),
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

// NewMissionExpiryJob moves overdue active mission instances to expired.
func NewMissionExpiryJob(interval time.Duration, expire Sweeper, logger *logging.Logger) *Ticker {
	return NewTicker("mission_expiry", interval, expire, logger)
}

// NewAllowanceJob pays every allowance whose next payment date has passed.
func NewAllowanceJob(interval time.Duration, pay Sweeper, logger *logging.Logger) *Ticker {
	return NewTicker("allowance", interval, pay, logger)
}

func (j *Ticker) Start(ctx context.Context) {
	j.logger.Info("job started", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("job exiting on context")
			return
		case <-j.stopCh:
			j.logger.Info("job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Ticker) Stop() {
	close(j.stopCh)
}

func (j *Ticker) runOnce(ctx context.Context) int {
	n, err := j.sweep(ctx)
	if err != nil {
		j.logger.Error("sweep finished with errors", logging.FieldCount, n, logging.FieldError, err)
		return n
	}
	if n > 0 {
		j.logger.Info("sweep finished", logging.FieldCount, n)
	}
	return n
}
