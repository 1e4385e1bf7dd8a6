package job

import (
	"context"
	"time"

	"kidledger/internal/config"
	"kidledger/internal/infrastructure/mq"
	"kidledger/internal/logging"
	"kidledger/internal/model"
	"kidledger/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender drains pending outbox rows to the broker. A row that keeps
// failing is parked as FAILED after business.max_retry_count attempts.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	logger     *logging.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.Config, logger *logging.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		logger:     logger.WithComponent(logging.ComponentOutbox),
		stopCh:     make(chan struct{}),
		interval:   cfg.Business.OutboxInterval(),
		batchSize:  cfg.Business.OutboxBatchSize,
		maxRetries: cfg.Business.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("outbox sender started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("outbox sender exiting on context")
			return
		case <-s.stopCh:
			s.logger.Info("outbox sender stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages sends one batch in creation order and reports how
// many were accepted by the broker.
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("load pending messages", logging.FieldError, err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, []byte(msg.Payload))
	if err == nil {
		if err := s.outboxRepo.MarkAsSent(ctx, msg.ID); err != nil {
			s.logger.Error("mark message sent", "id", msg.ID, logging.FieldError, err)
		}
		s.logger.Debug("message sent", "id", msg.ID, "topic", msg.Topic, "event", msg.EventType)
		return true
	}

	s.logger.Warn("publish failed", "id", msg.ID, "retry_count", msg.RetryCount, logging.FieldError, err)

	if msg.RetryCount+1 >= s.maxRetries {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			s.logger.Error("mark message failed", "id", msg.ID, logging.FieldError, err)
			return false
		}
		s.logger.Error("message parked after too many retries", "id", msg.ID, "event", msg.EventType)
		return false
	}
	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.logger.Error("increment retry count", "id", msg.ID, logging.FieldError, err)
	}
	return false
}
