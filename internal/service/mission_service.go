package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/config"
	"kidledger/internal/infrastructure/lock"
	"kidledger/internal/logging"
	"kidledger/internal/model"
	"kidledger/internal/repository"

	"gorm.io/gorm"
)

// MissionService owns mission templates and the per-user instance state machine.
//
//	active -> completed -> (reward claimed)
//	active -> failed
//	active -> expired
//
// Reaching 100% completes an instance but pays nothing; ClaimReward pays,
// exactly once, in the same transaction that sets reward_claimed.
type MissionService struct {
	db           *gorm.DB
	locker       lock.Locker
	cfg          *config.Config
	logger       *logging.Logger
	clock        Clock
	events       eventWriter
	ledger       *LedgerService
	userRepo     *repository.UserRepository
	missionRepo  *repository.MissionRepository
	instanceRepo *repository.UserMissionRepository
	activityRepo *repository.ActivityRepository
}

func NewMissionService(db *gorm.DB, locker lock.Locker, ledger *LedgerService, cfg *config.Config, logger *logging.Logger) *MissionService {
	s := &MissionService{
		db:           db,
		locker:       locker,
		cfg:          cfg,
		logger:       logger.WithComponent(logging.ComponentMission),
		clock:        systemClock,
		ledger:       ledger,
		userRepo:     repository.NewUserRepository(db),
		missionRepo:  repository.NewMissionRepository(db),
		instanceRepo: repository.NewUserMissionRepository(db),
		activityRepo: repository.NewActivityRepository(db),
	}
	s.events = eventWriter{
		repo:  repository.NewOutboxRepository(db),
		topic: cfg.Broker.Topic.MissionEvents,
		clock: s.now,
	}
	return s
}

func (s *MissionService) SetClock(clock Clock) {
	s.clock = clock
}

func (s *MissionService) now() time.Time {
	return s.clock()
}

type CreateMissionRequest struct {
	Title        string            `json:"title" binding:"required"`
	Description  string            `json:"description"`
	Type         model.MissionType `json:"type" binding:"required"`
	Difficulty   model.Difficulty  `json:"difficulty" binding:"required"`
	RewardCoins  int64             `json:"reward_coins"`
	TargetValue  *int64            `json:"target_value"`
	DurationDays *int              `json:"duration_days"`
	AgeMin       int               `json:"age_min"`
	AgeMax       int               `json:"age_max" binding:"required"`
}

func (r *CreateMissionRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return apperr.New(apperr.KindInvalidArgument, "title is required")
	case !r.Type.Valid():
		return apperr.New(apperr.KindInvalidArgument, fmt.Sprintf("unknown mission type %q", r.Type))
	case !r.Difficulty.Valid():
		return apperr.New(apperr.KindInvalidArgument, fmt.Sprintf("unknown difficulty %q", r.Difficulty))
	case r.RewardCoins <= 0:
		return apperr.ErrInvalidAmount
	case r.AgeMin < 0 || r.AgeMin > r.AgeMax:
		return apperr.New(apperr.KindInvalidArgument, "age range is empty")
	case r.DurationDays != nil && *r.DurationDays <= 0:
		return apperr.New(apperr.KindInvalidArgument, "duration_days must be positive")
	}
	return nil
}

// CreateMission adds an active template. Its reward never changes afterwards.
func (s *MissionService) CreateMission(ctx context.Context, req *CreateMissionRequest) (*model.Mission, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	mission := &model.Mission{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Type:         req.Type,
		Difficulty:   req.Difficulty,
		RewardCoins:  req.RewardCoins,
		TargetValue:  req.TargetValue,
		DurationDays: req.DurationDays,
		AgeMin:       req.AgeMin,
		AgeMax:       req.AgeMax,
		IsActive:     true,
	}
	if err := s.missionRepo.Create(ctx, mission); err != nil {
		return nil, fmt.Errorf("create mission: %w", err)
	}
	s.logger.Info("mission created", logging.FieldMissionID, mission.ID, "reward_coins", mission.RewardCoins)
	return mission, nil
}

func (s *MissionService) GetMission(ctx context.Context, missionID int64) (*model.Mission, error) {
	return s.missionRepo.GetByID(ctx, nil, missionID)
}

// SetMissionActive toggles whether new instances may be started.
func (s *MissionService) SetMissionActive(ctx context.Context, missionID int64, active bool) (*model.Mission, error) {
	mission, err := s.missionRepo.GetByID(ctx, nil, missionID)
	if err != nil {
		return nil, err
	}
	if err := s.missionRepo.SetActive(ctx, missionID, active); err != nil {
		return nil, fmt.Errorf("set mission active: %w", err)
	}
	mission.IsActive = active
	return mission, nil
}

func (s *MissionService) record(ctx context.Context, tx *gorm.DB, um *model.UserMission, actorID int64, action, description string, now time.Time) error {
	entry := &model.ActivityLog{
		UserID:      um.UserID,
		ActorID:     actorID,
		ActionType:  action,
		Description: description,
		Metadata:    model.Metadata{"instance_id": um.ID, "mission_id": um.MissionID},
		CreatedAt:   now,
	}
	if err := s.activityRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (s *MissionService) publish(ctx context.Context, tx *gorm.DB, eventType string, um *model.UserMission, actorID int64, now time.Time, extra map[string]any) error {
	data := map[string]any{
		"instance_id": um.ID,
		"mission_id":  um.MissionID,
		"status":      um.Status,
		"progress":    um.Progress,
	}
	for k, v := range extra {
		data[k] = v
	}
	return s.events.write(ctx, tx, model.Event{
		Type:       eventType,
		UserID:     um.UserID,
		ActorID:    actorID,
		OccurredAt: now,
		Data:       data,
	})
}

// StartMission creates an active instance at 0% for a child.
func (s *MissionService) StartMission(ctx context.Context, userID, missionID int64) (*model.UserMission, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsChild() {
		return nil, apperr.ErrUnauthorized
	}

	var instance *model.UserMission
	err = guard(ctx, s.locker, s.logger, lock.MissionKey(userID, missionID), func() error {
		mission, err := s.missionRepo.GetByID(ctx, nil, missionID)
		if err != nil {
			return err
		}
		if !mission.IsActive {
			return apperr.ErrMissionInactive
		}
		if !mission.AcceptsAge(user.AgeOr(s.cfg.Business.DefaultChildAge)) {
			return apperr.ErrAgeIneligible
		}

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			exists, err := s.instanceRepo.ExistsUnexpired(ctx, tx, userID, missionID)
			if err != nil {
				return err
			}
			if exists {
				return apperr.ErrAlreadyAssigned
			}

			now := s.clock()
			instance = &model.UserMission{
				UserID:    userID,
				MissionID: missionID,
				Status:    model.MissionStatusActive,
				Progress:  0,
				StartedAt: now,
				UpdatedAt: now,
			}
			if mission.DurationDays != nil {
				expires := now.AddDate(0, 0, *mission.DurationDays)
				instance.ExpiresAt = &expires
			}
			if err := s.instanceRepo.Create(ctx, tx, instance); err != nil {
				return fmt.Errorf("create instance: %w", err)
			}
			if err := s.record(ctx, tx, instance, userID, model.ActionMissionStarted, "Started mission: "+mission.Title, now); err != nil {
				return err
			}
			return s.publish(ctx, tx, model.EventMissionStarted, instance, userID, now, nil)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("mission started",
		logging.FieldUserID, userID,
		logging.FieldMissionID, missionID,
		logging.FieldInstanceID, instance.ID,
	)
	return instance, nil
}

// UpdateProgress moves an active instance forward. Reaching 100 completes it
// without paying out.
func (s *MissionService) UpdateProgress(ctx context.Context, instanceID int64, progress int, currentValue *int64) (*model.UserMission, error) {
	if progress < 0 || progress > model.MaxProgress {
		return nil, apperr.ErrInvalidProgress
	}
	um, err := s.instanceRepo.GetByID(ctx, nil, instanceID)
	if err != nil {
		return nil, err
	}

	var updated *model.UserMission
	err = guard(ctx, s.locker, s.logger, lock.MissionKey(um.UserID, um.MissionID), func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := s.instanceRepo.GetByID(ctx, tx, instanceID)
			if err != nil {
				return err
			}
			now := nextTick(s.clock(), current.UpdatedAt)
			if current.Status != model.MissionStatusActive || current.ExpiredAt(s.clock()) {
				return apperr.ErrMissionNotActive
			}
			if progress < current.Progress {
				return apperr.ErrInvalidProgress
			}

			if err := s.instanceRepo.UpdateProgress(ctx, tx, instanceID, progress, currentValue, now); err != nil {
				return err
			}
			updated, err = s.instanceRepo.GetByID(ctx, tx, instanceID)
			if err != nil {
				return err
			}

			action, eventType := model.ActionMissionProgress, model.EventMissionProgress
			description := fmt.Sprintf("Mission progress %d%%", progress)
			if updated.Status == model.MissionStatusCompleted {
				action, eventType = model.ActionMissionCompleted, model.EventMissionCompleted
				description = "Mission completed"
			}
			if err := s.record(ctx, tx, updated, updated.UserID, action, description, now); err != nil {
				return err
			}
			return s.publish(ctx, tx, eventType, updated, updated.UserID, now, nil)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("mission progress updated",
		logging.FieldUserID, updated.UserID,
		logging.FieldInstanceID, updated.ID,
		"progress", updated.Progress,
		"status", updated.Status,
	)
	return updated, nil
}

// ClaimReward pays the template's coins for a completed instance.
//
// The reward_claimed flip is a conditional update in the same database
// transaction as the coin credit. A second or concurrent call finds the flag
// already set and pays nothing.
func (s *MissionService) ClaimReward(ctx context.Context, instanceID int64) (*model.Transaction, error) {
	um, err := s.instanceRepo.GetByID(ctx, nil, instanceID)
	if err != nil {
		return nil, err
	}
	mission, err := s.missionRepo.GetByID(ctx, nil, um.MissionID)
	if err != nil {
		return nil, err
	}

	var trans *model.Transaction
	err = s.ledger.lockWallet(ctx, um.UserID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := s.clock()
			flipped, err := s.instanceRepo.MarkClaimed(ctx, tx, instanceID, now)
			if err != nil {
				return err
			}
			if !flipped {
				current, err := s.instanceRepo.GetByID(ctx, tx, instanceID)
				if err != nil {
					return err
				}
				if current.RewardClaimed {
					return apperr.ErrAlreadyClaimed
				}
				return apperr.ErrNotYetCompleted
			}

			p := s.ledger.reward(um.UserID, um.UserID, mission.RewardCoins, "Mission reward: "+mission.Title,
				model.Metadata{"instance_id": um.ID, "mission_id": mission.ID})
			p.action = model.ActionRewardClaimed
			p.summary = fmt.Sprintf("Claimed %d coins for %s", mission.RewardCoins, mission.Title)
			trans, err = s.ledger.post(ctx, tx, p)
			if err != nil {
				return err
			}

			um.Status = model.MissionStatusCompleted
			um.RewardClaimed = true
			return s.publish(ctx, tx, model.EventMissionClaimed, um, um.UserID, now, map[string]any{
				"reward_coins":   mission.RewardCoins,
				"transaction_no": trans.TransactionNo,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("mission reward claimed",
		logging.FieldUserID, um.UserID,
		logging.FieldInstanceID, um.ID,
		logging.FieldAmount, mission.RewardCoins,
		logging.FieldTransactionNo, trans.TransactionNo,
	)
	return trans, nil
}

// ExpireStaleMissions moves every active instance past its expiry to expired
// and returns how many it moved. Running it again moves nothing new.
func (s *MissionService) ExpireStaleMissions(ctx context.Context) (int, error) {
	now := s.clock()
	stale, err := s.instanceRepo.ListExpiredActive(ctx, now, 0)
	if err != nil {
		return 0, fmt.Errorf("list expired instances: %w", err)
	}

	expired := 0
	for _, um := range stale {
		moved := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			moved, err = s.instanceRepo.Transition(ctx, tx, um.ID, model.MissionStatusActive, model.MissionStatusExpired, now)
			if err != nil || !moved {
				return err
			}
			um.Status = model.MissionStatusExpired
			if err := s.record(ctx, tx, um, um.UserID, model.ActionMissionExpired, "Mission expired", now); err != nil {
				return err
			}
			return s.publish(ctx, tx, model.EventMissionExpired, um, 0, now, nil)
		})
		if err != nil {
			return expired, fmt.Errorf("expire instance %d: %w", um.ID, err)
		}
		if moved {
			expired++
		}
	}

	if expired > 0 {
		s.logger.Info("expired stale missions", logging.FieldCount, expired)
	}
	return expired, nil
}

// FailMission lets a parent close a child's active instance as failed.
func (s *MissionService) FailMission(ctx context.Context, actorID, instanceID int64) (*model.UserMission, error) {
	um, err := s.instanceRepo.GetByID(ctx, nil, instanceID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeParent(ctx, s.userRepo, actorID, um.UserID); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := nextTick(s.clock(), um.UpdatedAt)
		moved, err := s.instanceRepo.Transition(ctx, tx, instanceID, model.MissionStatusActive, model.MissionStatusFailed, now)
		if err != nil {
			return err
		}
		if !moved {
			return apperr.ErrMissionNotActive
		}
		um.Status = model.MissionStatusFailed
		um.UpdatedAt = now
		if err := s.record(ctx, tx, um, actorID, model.ActionMissionFailed, "Mission marked failed", now); err != nil {
			return err
		}
		return s.publish(ctx, tx, model.EventMissionFailed, um, actorID, now, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("mission failed", logging.FieldActorID, actorID, logging.FieldInstanceID, instanceID)
	return um, nil
}

// ListAvailableMissions returns active templates for the user's age that
// the user has never started, whatever became of earlier instances.
func (s *MissionService) ListAvailableMissions(ctx context.Context, userID int64) ([]*model.Mission, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsChild() {
		return nil, apperr.ErrUnauthorized
	}
	return s.missionRepo.ListAvailable(ctx, userID, user.AgeOr(s.cfg.Business.DefaultChildAge))
}

// ListUserMissions joins instances with their templates. An empty status
// returns every instance.
func (s *MissionService) ListUserMissions(ctx context.Context, userID int64, status model.MissionStatus) ([]*model.MissionWithDetails, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	instances, err := s.instanceRepo.ListByUserID(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(instances))
	for _, um := range instances {
		ids = append(ids, um.MissionID)
	}
	templates, err := s.missionRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*model.MissionWithDetails, 0, len(instances))
	for _, um := range instances {
		result = append(result, &model.MissionWithDetails{UserMission: um, Mission: templates[um.MissionID]})
	}
	return result, nil
}
