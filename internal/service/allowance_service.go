package service

import (
	"context"
	"fmt"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/config"
	"kidledger/internal/logging"
	"kidledger/internal/model"
	"kidledger/internal/repository"
	"kidledger/pkg/money"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"
)

// AllowanceService schedules recurring parent deposits and pays the due ones.
type AllowanceService struct {
	db            *gorm.DB
	cfg           *config.Config
	logger        *logging.Logger
	clock         Clock
	ledger        *LedgerService
	userRepo      *repository.UserRepository
	allowanceRepo *repository.AllowanceRepository
	activityRepo  *repository.ActivityRepository
}

func NewAllowanceService(db *gorm.DB, ledger *LedgerService, cfg *config.Config, logger *logging.Logger) *AllowanceService {
	return &AllowanceService{
		db:            db,
		cfg:           cfg,
		logger:        logger.WithComponent(logging.ComponentAllowance),
		clock:         systemClock,
		ledger:        ledger,
		userRepo:      repository.NewUserRepository(db),
		allowanceRepo: repository.NewAllowanceRepository(db),
		activityRepo:  repository.NewActivityRepository(db),
	}
}

func (s *AllowanceService) SetClock(clock Clock) {
	s.clock = clock
}

type CreateAllowanceRequest struct {
	ChildID      int64                    `json:"child_id" binding:"required"`
	Amount       int64                    `json:"amount"`
	Frequency    model.AllowanceFrequency `json:"frequency" binding:"required"`
	FirstPayment *time.Time               `json:"first_payment"`
}

// Create schedules an allowance. Without a first payment date the first
// period is due immediately.
func (s *AllowanceService) Create(ctx context.Context, parentID int64, req *CreateAllowanceRequest) (*model.Allowance, error) {
	if req.Amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	if !req.Frequency.Valid() {
		return nil, apperr.New(apperr.KindInvalidArgument, fmt.Sprintf("unknown frequency %q", req.Frequency))
	}
	if _, err := authorizeParent(ctx, s.userRepo, parentID, req.ChildID); err != nil {
		return nil, err
	}

	now := s.clock()
	first := now
	if req.FirstPayment != nil {
		first = req.FirstPayment.UTC()
	}
	allowance := &model.Allowance{
		ParentID:         parentID,
		ChildID:          req.ChildID,
		Amount:           req.Amount,
		Frequency:        req.Frequency,
		FirstPaymentDate: first,
		NextPaymentDate:  first,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.allowanceRepo.Create(ctx, tx, allowance); err != nil {
			return fmt.Errorf("create allowance: %w", err)
		}
		return s.activityRepo.Create(ctx, tx, &model.ActivityLog{
			UserID:      req.ChildID,
			ActorID:     parentID,
			ActionType:  model.ActionAllowanceCreated,
			Description: fmt.Sprintf("%s %s allowance set up", money.FormatCents(req.Amount), req.Frequency),
			Metadata:    model.Metadata{"allowance_id": allowance.ID},
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("allowance created",
		logging.FieldUserID, req.ChildID,
		logging.FieldActorID, parentID,
		logging.FieldAmount, req.Amount,
		"frequency", req.Frequency,
	)
	return allowance, nil
}

func (s *AllowanceService) Deactivate(ctx context.Context, parentID, allowanceID int64) error {
	allowance, err := s.allowanceRepo.GetByID(ctx, nil, allowanceID)
	if err != nil {
		return err
	}
	if allowance.ParentID != parentID {
		return apperr.ErrUnauthorized
	}
	return s.allowanceRepo.Deactivate(ctx, allowanceID, s.clock())
}

func (s *AllowanceService) ListForChild(ctx context.Context, childID int64) ([]*model.Allowance, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, childID); err != nil {
		return nil, err
	}
	return s.allowanceRepo.ListByChildID(ctx, childID)
}

// PayDue pays one period of every allowance that is due and moves its next
// payment date forward in the same transaction. An allowance that fell
// several periods behind catches up one period per call. Failures do not
// stop the batch; they are returned together.
func (s *AllowanceService) PayDue(ctx context.Context, limit int) (int, error) {
	now := s.clock()
	due, err := s.allowanceRepo.ListDue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due allowances: %w", err)
	}

	var result *multierror.Error
	paid := 0
	for _, a := range due {
		ok, err := s.payOne(ctx, a.ID, now)
		if err != nil {
			s.logger.Error("allowance payment failed", "allowance_id", a.ID, logging.FieldUserID, a.ChildID, logging.FieldError, err)
			result = multierror.Append(result, fmt.Errorf("allowance %d: %w", a.ID, err))
			continue
		}
		if ok {
			paid++
		}
	}

	if paid > 0 {
		s.logger.Info("allowances paid", logging.FieldCount, paid)
	}
	return paid, result.ErrorOrNil()
}

func (s *AllowanceService) payOne(ctx context.Context, allowanceID int64, now time.Time) (bool, error) {
	var paid bool
	allowance, err := s.allowanceRepo.GetByID(ctx, nil, allowanceID)
	if err != nil {
		return false, err
	}

	err = s.ledger.lockWallet(ctx, allowance.ChildID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := s.allowanceRepo.GetByID(ctx, tx, allowanceID)
			if err != nil {
				return err
			}
			if !current.IsActive || current.NextPaymentDate.After(now) {
				return nil
			}
			trans, err := s.ledger.payAllowance(ctx, tx, current)
			if err != nil {
				return err
			}
			if err := s.allowanceRepo.Advance(ctx, tx, current, current.FollowingPayment(), now); err != nil {
				return err
			}
			paid = true
			s.logger.Debug("allowance paid",
				"allowance_id", current.ID,
				logging.FieldUserID, current.ChildID,
				logging.FieldAmount, current.Amount,
				logging.FieldTransactionNo, trans.TransactionNo,
			)
			return nil
		})
	})
	return paid, err
}
