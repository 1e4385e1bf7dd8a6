package service

import (
	"context"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/config"
	"kidledger/internal/infrastructure/lock"
	"kidledger/internal/logging"
	"kidledger/internal/model"
	"kidledger/internal/testutil"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

var suiteStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// serviceSuite wires every service against a fresh database per test.
type serviceSuite struct {
	suite.Suite
	ctx    context.Context
	db     *gorm.DB
	cfg    *config.Config
	clock  *testutil.Clock
	locker lock.Locker

	ledger     *LedgerService
	missions   *MissionService
	users      *UserService
	allowances *AllowanceService
	dashboard  *DashboardService
	outbox     *OutboxService

	parent *model.User
	child  *model.User
}

func (s *serviceSuite) SetupTest() {
	s.setup(lock.NewLocalLocker(5 * time.Second))
}

// setup rebuilds the fixture around locker.
func (s *serviceSuite) setup(locker lock.Locker) {
	s.ctx = context.Background()
	s.db = testutil.NewDB(s.T())
	s.cfg = config.Default()
	s.clock = testutil.NewClock(suiteStart)
	s.locker = locker
	logger := logging.Discard()

	s.ledger = NewLedgerService(s.db, s.locker, s.cfg, logger)
	s.missions = NewMissionService(s.db, s.locker, s.ledger, s.cfg, logger)
	s.users = NewUserService(s.db, s.cfg, logger)
	s.allowances = NewAllowanceService(s.db, s.ledger, s.cfg, logger)
	s.dashboard = NewDashboardService(s.db, s.ledger, s.missions)
	s.outbox = NewOutboxService(s.db, logger)
	for _, svc := range []interface{ SetClock(Clock) }{s.ledger, s.missions, s.users, s.allowances, s.dashboard} {
		svc.SetClock(s.clock.Now)
	}

	s.parent = testutil.SeedParent(s.T(), s.db, "parent@example.com")
	s.child, _ = testutil.SeedChild(s.T(), s.db, s.parent.ID, "kid@example.com", 9, model.Wallet{
		RealMoneyBalance:    2500,
		VirtualCoinsBalance: 150,
		SavingsBalance:      1000,
		InvestmentBalance:   500,
	})
}

func (s *serviceSuite) wallet(userID int64) *model.Wallet {
	var w model.Wallet
	s.Require().NoError(s.db.Where("user_id = ?", userID).First(&w).Error)
	return &w
}

func (s *serviceSuite) countTransactions(userID int64, typ model.TransactionType) int64 {
	var n int64
	s.Require().NoError(s.db.Model(&model.Transaction{}).Where("user_id = ? AND type = ?", userID, typ).Count(&n).Error)
	return n
}

func (s *serviceSuite) requireKind(err error, kind apperr.Kind) {
	s.T().Helper()
	s.Require().Error(err)
	s.Require().Equal(kind, apperr.KindOf(err), "got %v", err)
}
