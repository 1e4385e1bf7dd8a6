package service

import (
	"context"
	"time"

	"kidledger/internal/model"
	"kidledger/internal/repository"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultSummaryDays   = 7
	maxSummaryDays       = 365
	dashboardRecentLimit = 5
)

// DashboardService assembles the read models the child and parent screens show.
type DashboardService struct {
	clock           Clock
	ledger          *LedgerService
	missions        *MissionService
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	instanceRepo    *repository.UserMissionRepository
	activityRepo    *repository.ActivityRepository
}

func NewDashboardService(db *gorm.DB, ledger *LedgerService, missions *MissionService) *DashboardService {
	return &DashboardService{
		clock:           systemClock,
		ledger:          ledger,
		missions:        missions,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		instanceRepo:    repository.NewUserMissionRepository(db),
		activityRepo:    repository.NewActivityRepository(db),
	}
}

func (s *DashboardService) SetClock(clock Clock) {
	s.clock = clock
}

type KidDashboard struct {
	User               *model.User                 `json:"user"`
	Balance            *model.Balance              `json:"balance"`
	ActiveMissions     []*model.MissionWithDetails `json:"active_missions"`
	RecentTransactions []*model.Transaction        `json:"recent_transactions"`
	Avatar             *model.Avatar               `json:"avatar,omitempty"`
}

// GetKidDashboard reads the pieces of a child's home screen concurrently.
func (s *DashboardService) GetKidDashboard(ctx context.Context, userID int64) (*KidDashboard, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	dash := &KidDashboard{User: user}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dash.Balance, err = s.ledger.GetBalance(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		dash.ActiveMissions, err = s.missions.ListUserMissions(gctx, userID, model.MissionStatusActive)
		return err
	})
	g.Go(func() error {
		var err error
		dash.RecentTransactions, err = s.transactionRepo.ListByUserID(gctx, userID, dashboardRecentLimit)
		return err
	})
	g.Go(func() error {
		var err error
		dash.Avatar, err = s.userRepo.GetAvatar(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dash, nil
}

type ActivitySummary struct {
	Days              int                  `json:"days"`
	RecentActivity    []*model.ActivityLog `json:"recent_activity"`
	MissionsCompleted int64                `json:"missions_completed"`
	CoinsEarned       int64                `json:"coins_earned"`
	ActiveDays        int                  `json:"active_days"`
}

// GetActivitySummary covers the last days days; days <= 0 means a week and
// anything beyond maxSummaryDays is cut to it.
func (s *DashboardService) GetActivitySummary(ctx context.Context, userID int64, days int) (*ActivitySummary, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	switch {
	case days <= 0:
		days = defaultSummaryDays
	case days > maxSummaryDays:
		days = maxSummaryDays
	}
	since := s.clock().AddDate(0, 0, -days)

	summary := &ActivitySummary{Days: days}
	var err error
	if summary.RecentActivity, err = s.activityRepo.ListSince(ctx, userID, since); err != nil {
		return nil, err
	}
	if summary.MissionsCompleted, err = s.instanceRepo.CountCompletedSince(ctx, userID, since); err != nil {
		return nil, err
	}
	if summary.CoinsEarned, err = s.transactionRepo.SumAmount(ctx, userID, model.TransactionTypeMissionReward, model.CurrencyVirtual, since); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, entry := range summary.RecentActivity {
		seen[entry.CreatedAt.UTC().Format(time.DateOnly)] = struct{}{}
	}
	summary.ActiveDays = len(seen)
	return summary, nil
}
