package service

import (
	"context"

	"kidledger/internal/logging"
	"kidledger/internal/model"
	"kidledger/internal/repository"

	"gorm.io/gorm"
)

// OutboxBacklog counts outbox rows per delivery state.
type OutboxBacklog struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}

// OutboxService lets an operator see what the sender has not delivered and
// put parked events back in line.
type OutboxService struct {
	logger     *logging.Logger
	outboxRepo *repository.OutboxRepository
}

func NewOutboxService(db *gorm.DB, logger *logging.Logger) *OutboxService {
	return &OutboxService{
		logger:     logger.WithComponent(logging.ComponentOutbox),
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

func (s *OutboxService) Backlog(ctx context.Context) (*OutboxBacklog, error) {
	var backlog OutboxBacklog
	for status, dst := range map[model.OutboxStatus]*int64{
		model.OutboxStatusPending: &backlog.Pending,
		model.OutboxStatusSent:    &backlog.Sent,
		model.OutboxStatusFailed:  &backlog.Failed,
	} {
		n, err := s.outboxRepo.CountByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		*dst = n
	}
	return &backlog, nil
}

// RequeueFailed moves up to limit parked events, oldest first, back to
// pending with a fresh retry budget. It returns how many were moved.
func (s *OutboxService) RequeueFailed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	failed, err := s.outboxRepo.GetFailedMessages(ctx, limit)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, msg := range failed {
		moved, err := s.outboxRepo.Requeue(ctx, msg.ID)
		if err != nil {
			return requeued, err
		}
		if moved {
			requeued++
		}
	}
	if requeued > 0 {
		s.logger.Info("outbox messages requeued", logging.FieldCount, requeued)
	}
	return requeued, nil
}
