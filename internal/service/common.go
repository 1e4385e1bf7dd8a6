package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/infrastructure/lock"
	"kidledger/internal/logging"
	"kidledger/internal/model"
	"kidledger/internal/repository"
	"kidledger/pkg/idgen"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Clock supplies the current time. Services store everything in UTC.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// guard runs fn while holding the lock on key. Locks are always taken
// before a database transaction starts, never inside one.
func guard(ctx context.Context, locker lock.Locker, logger *logging.Logger, key string, fn func() error) error {
	held, err := locker.Obtain(ctx, key, uuid.NewString())
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return fmt.Errorf("%s busy: %w", key, apperr.ErrConflict)
		}
		return fmt.Errorf("obtain %s: %w", key, err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release lock failed", "key", key, logging.FieldError, err)
		}
	}()
	return fn()
}

// nextTick keeps updated_at strictly increasing on rows written twice
// within the clock's resolution.
func nextTick(now, previous time.Time) time.Time {
	if now.After(previous) {
		return now
	}
	return previous.Add(time.Millisecond)
}

// eventWriter appends domain events to the outbox in the caller's transaction.
type eventWriter struct {
	repo  *repository.OutboxRepository
	topic string
	clock Clock
}

func (w eventWriter) write(ctx context.Context, tx *gorm.DB, ev model.Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = w.clock()
	}
	msg := &model.OutboxMessage{
		MessageKey: idgen.GenerateEventKey(),
		Topic:      w.topic,
		EventType:  ev.Type,
		UserID:     ev.UserID,
		Payload:    ev.Encode(),
		Status:     model.OutboxStatusPending,
	}
	if err := w.repo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("write outbox %s: %w", ev.Type, err)
	}
	return nil
}

// authorizeParent loads the child and checks that actorID is its parent.
// An unknown actor is reported as unauthorized, an unknown child as not found.
func authorizeParent(ctx context.Context, users *repository.UserRepository, actorID, childID int64) (*model.User, error) {
	child, err := users.GetByID(ctx, nil, childID)
	if err != nil {
		return nil, err
	}
	actor, err := users.GetByID(ctx, nil, actorID)
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}
	if !actor.IsParentOf(child) {
		return nil, apperr.ErrUnauthorized
	}
	return child, nil
}
