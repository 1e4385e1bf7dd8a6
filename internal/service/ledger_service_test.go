package service

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/model"
	"kidledger/internal/testutil"

	"github.com/stretchr/testify/suite"
)

type ledgerSuite struct {
	serviceSuite
}

func TestLedgerService(t *testing.T) {
	suite.Run(t, new(ledgerSuite))
}

func (s *ledgerSuite) TestDepositByParent() {
	trans, err := s.ledger.Deposit(s.ctx, s.parent.ID, s.child.ID, 1250, "birthday money")
	s.Require().NoError(err)

	s.Equal(model.TransactionTypeDeposit, trans.Type)
	s.Equal(model.TransactionStatusCompleted, trans.Status)
	s.Equal(model.CurrencyReal, trans.Currency)
	s.Equal(int64(2500), trans.BalanceBefore)
	s.Equal(int64(3750), trans.BalanceAfter)
	s.NotEmpty(trans.TransactionNo)

	w := s.wallet(s.child.ID)
	s.Equal(int64(3750), w.RealMoneyBalance)
	s.Equal(1, w.Version)

	var entry model.ActivityLog
	s.Require().NoError(s.db.Where("user_id = ? AND action_type = ?", s.child.ID, model.ActionDeposit).First(&entry).Error)
	s.Equal(s.parent.ID, entry.ActorID)
	s.Equal("Deposited $12.50", entry.Description)

	var outbox model.OutboxMessage
	s.Require().NoError(s.db.Where("user_id = ?", s.child.ID).First(&outbox).Error)
	s.Equal(model.EventWalletCredited, outbox.EventType)
	s.Equal(s.cfg.Broker.Topic.LedgerEvents, outbox.Topic)
	s.Equal(model.OutboxStatusPending, outbox.Status)
}

func (s *ledgerSuite) TestDepositFailures() {
	stranger := testutil.SeedParent(s.T(), s.db, "stranger@example.com")

	_, err := s.ledger.Deposit(s.ctx, s.parent.ID, s.child.ID, 0, "")
	s.requireKind(err, apperr.KindInvalidAmount)

	_, err = s.ledger.Deposit(s.ctx, s.parent.ID, s.child.ID, -5, "")
	s.requireKind(err, apperr.KindInvalidAmount)

	_, err = s.ledger.Deposit(s.ctx, stranger.ID, s.child.ID, 100, "")
	s.requireKind(err, apperr.KindUnauthorized)

	_, err = s.ledger.Deposit(s.ctx, s.child.ID, s.child.ID, 100, "")
	s.requireKind(err, apperr.KindUnauthorized)

	_, err = s.ledger.Deposit(s.ctx, 9999, s.child.ID, 100, "")
	s.requireKind(err, apperr.KindUnauthorized)

	_, err = s.ledger.Deposit(s.ctx, s.parent.ID, 9999, 100, "")
	s.requireKind(err, apperr.KindUserNotFound)

	s.Equal(int64(2500), s.wallet(s.child.ID).RealMoneyBalance)
	s.Zero(s.countTransactions(s.child.ID, model.TransactionTypeDeposit))
}

func (s *ledgerSuite) TestDepositWithoutWallet() {
	age := 8
	orphan := &model.User{Email: "nowallet@example.com", Name: "nowallet", Role: model.RoleChild, ParentID: &s.parent.ID, Age: &age, IsActive: true}
	s.Require().NoError(s.db.Create(orphan).Error)

	_, err := s.ledger.Deposit(s.ctx, s.parent.ID, orphan.ID, 100, "")
	s.requireKind(err, apperr.KindWalletNotFound)
	s.Zero(s.countTransactions(orphan.ID, model.TransactionTypeDeposit))
}

func (s *ledgerSuite) TestTransferToSavingsConserves() {
	before := s.wallet(s.child.ID)

	trans, err := s.ledger.TransferToSavings(s.ctx, s.child.ID, 500)
	s.Require().NoError(err)
	s.Equal(model.TransactionTypeTransferToSavings, trans.Type)
	s.Equal(int64(500), trans.Amount)

	after := s.wallet(s.child.ID)
	s.Equal(int64(2000), after.RealMoneyBalance)
	s.Equal(int64(150), after.VirtualCoinsBalance)
	s.Equal(int64(1500), after.SavingsBalance)
	s.Equal(int64(500), after.InvestmentBalance)
	s.Equal(before.TotalReal(), after.TotalReal())
	s.Equal(int64(1), s.countTransactions(s.child.ID, model.TransactionTypeTransferToSavings))
}

func (s *ledgerSuite) TestTransferToInvestment() {
	_, err := s.ledger.TransferToInvestment(s.ctx, s.child.ID, 2500)
	s.Require().NoError(err)

	w := s.wallet(s.child.ID)
	s.Zero(w.RealMoneyBalance)
	s.Equal(int64(3000), w.InvestmentBalance)
	s.Equal(int64(1000), w.SavingsBalance)
	s.Equal(int64(4000), w.TotalReal())
}

func (s *ledgerSuite) TestTransferInsufficientLeavesWalletUnchanged() {
	before := s.wallet(s.child.ID)

	_, err := s.ledger.TransferToSavings(s.ctx, s.child.ID, 99999)
	s.requireKind(err, apperr.KindInsufficientBalance)

	_, err = s.ledger.TransferToInvestment(s.ctx, s.child.ID, 2501)
	s.requireKind(err, apperr.KindInsufficientBalance)

	_, err = s.ledger.TransferToSavings(s.ctx, s.child.ID, 0)
	s.requireKind(err, apperr.KindInvalidAmount)

	after := s.wallet(s.child.ID)
	s.Equal(before.RealMoneyBalance, after.RealMoneyBalance)
	s.Equal(before.SavingsBalance, after.SavingsBalance)
	s.Equal(before.InvestmentBalance, after.InvestmentBalance)
	s.Equal(before.Version, after.Version)
	txs, err := s.ledger.ListTransactions(s.ctx, s.child.ID, 0)
	s.Require().NoError(err)
	s.Empty(txs)
}

func (s *ledgerSuite) TestVirtualCoins() {
	_, err := s.ledger.AwardVirtualCoins(s.ctx, s.parent.ID, s.child.ID, 25, "cleaned room")
	s.Require().NoError(err)
	s.Equal(int64(175), s.wallet(s.child.ID).VirtualCoinsBalance)

	trans, err := s.ledger.SpendVirtualCoins(s.ctx, s.child.ID, 175, "hat")
	s.Require().NoError(err)
	s.Equal(model.TransactionTypePurchase, trans.Type)
	s.Equal(model.CurrencyVirtual, trans.Currency)
	s.Zero(trans.BalanceAfter)

	_, err = s.ledger.SpendVirtualCoins(s.ctx, s.child.ID, 1, "gum")
	s.requireKind(err, apperr.KindInsufficientCoins)

	_, err = s.ledger.AwardVirtualCoins(s.ctx, s.child.ID, s.child.ID, 1000, "self")
	s.requireKind(err, apperr.KindUnauthorized)

	w := s.wallet(s.child.ID)
	s.Zero(w.VirtualCoinsBalance)
	// coins never touch real money
	s.Equal(int64(2500), w.RealMoneyBalance)
}

func (s *ledgerSuite) TestGetBalance() {
	balance, err := s.ledger.GetBalance(s.ctx, s.child.ID)
	s.Require().NoError(err)
	s.Equal(int64(2500), balance.RealMoney)
	s.Equal(int64(150), balance.VirtualCoins)
	s.Equal(int64(4000), balance.TotalReal)

	_, err = s.ledger.GetBalance(s.ctx, 4242)
	s.requireKind(err, apperr.KindUserNotFound)

	_, err = s.ledger.GetBalance(s.ctx, s.parent.ID)
	s.requireKind(err, apperr.KindWalletNotFound)
}

func (s *ledgerSuite) TestListTransactionsNewestFirst() {
	var numbers []string
	for i := 1; i <= 4; i++ {
		trans, err := s.ledger.Deposit(s.ctx, s.parent.ID, s.child.ID, int64(i*100), "")
		s.Require().NoError(err)
		numbers = append(numbers, trans.TransactionNo)
		s.clock.Advance(time.Minute)
	}

	all, err := s.ledger.ListTransactions(s.ctx, s.child.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	for i, trans := range all {
		s.Equal(numbers[3-i], trans.TransactionNo)
	}

	limited, err := s.ledger.ListTransactions(s.ctx, s.child.ID, 2)
	s.Require().NoError(err)
	s.Require().Len(limited, 2)
	s.Equal(numbers[3], limited[0].TransactionNo)
	s.Equal(numbers[2], limited[1].TransactionNo)
}

func (s *ledgerSuite) TestUpdatedAtAdvancesWithFrozenClock() {
	prev := s.wallet(s.child.ID).UpdatedAt
	for i := 0; i < 3; i++ {
		_, err := s.ledger.TransferToSavings(s.ctx, s.child.ID, 10)
		s.Require().NoError(err)
		now := s.wallet(s.child.ID).UpdatedAt
		s.True(now.After(prev), "updated_at %v not after %v", now, prev)
		prev = now
	}
}

func (s *ledgerSuite) TestApprovalFlow() {
	pending, err := s.ledger.RequestPurchase(s.ctx, s.child.ID, 100, "video game")
	s.Require().NoError(err)
	s.Equal(model.TransactionStatusPending, pending.Status)
	s.True(pending.ParentApprovalRequired)
	s.Equal(int64(150), s.wallet(s.child.ID).VirtualCoinsBalance)

	list, err := s.ledger.ListPendingApprovals(s.ctx, s.parent.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(pending.ID, list[0].ID)

	approved, err := s.ledger.ResolveApproval(s.ctx, s.parent.ID, pending.ID, true)
	s.Require().NoError(err)
	s.Equal(model.TransactionStatusApproved, approved.Status)
	s.Require().NotNil(approved.ApprovedBy)
	s.Equal(s.parent.ID, *approved.ApprovedBy)
	// the request row keeps the balances it was recorded with
	s.Equal(pending.BalanceAfter, approved.BalanceAfter)
	s.Equal(pending.Amount, approved.Amount)
	s.Equal(int64(50), s.wallet(s.child.ID).VirtualCoinsBalance)

	var entry model.ActivityLog
	s.Require().NoError(s.db.Where("user_id = ? AND action_type = ?", s.child.ID, model.ActionApprovalResolved).First(&entry).Error)
	s.EqualValues(50, entry.Metadata["balance_after"])

	_, err = s.ledger.ResolveApproval(s.ctx, s.parent.ID, pending.ID, false)
	s.requireKind(err, apperr.KindNotPending)

	list, err = s.ledger.ListPendingApprovals(s.ctx, s.parent.ID)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *ledgerSuite) TestApprovalShortfallAndReject() {
	pending, err := s.ledger.RequestPurchase(s.ctx, s.child.ID, 1000, "bike")
	s.Require().NoError(err)

	_, err = s.ledger.ResolveApproval(s.ctx, s.parent.ID, pending.ID, true)
	s.requireKind(err, apperr.KindInsufficientCoins)

	still, err := s.ledger.transactionRepo.GetByID(s.ctx, nil, pending.ID)
	s.Require().NoError(err)
	s.Equal(model.TransactionStatusPending, still.Status)

	stranger := testutil.SeedParent(s.T(), s.db, "other@example.com")
	_, err = s.ledger.ResolveApproval(s.ctx, stranger.ID, pending.ID, false)
	s.requireKind(err, apperr.KindUnauthorized)

	rejected, err := s.ledger.ResolveApproval(s.ctx, s.parent.ID, pending.ID, false)
	s.Require().NoError(err)
	s.Equal(model.TransactionStatusRejected, rejected.Status)
	s.Equal(int64(150), s.wallet(s.child.ID).VirtualCoinsBalance)

	_, err = s.ledger.ResolveApproval(s.ctx, s.parent.ID, 777, true)
	s.requireKind(err, apperr.KindTransactionNotFound)
}

func (s *ledgerSuite) TestBalancesNeverNegative() {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		amount := int64(rng.Intn(900) + 1)
		switch rng.Intn(5) {
		case 0:
			_, _ = s.ledger.Deposit(s.ctx, s.parent.ID, s.child.ID, amount, "")
		case 1:
			_, _ = s.ledger.TransferToSavings(s.ctx, s.child.ID, amount)
		case 2:
			_, _ = s.ledger.TransferToInvestment(s.ctx, s.child.ID, amount)
		case 3:
			_, _ = s.ledger.AwardVirtualCoins(s.ctx, s.parent.ID, s.child.ID, amount/10+1, "")
		case 4:
			_, _ = s.ledger.SpendVirtualCoins(s.ctx, s.child.ID, amount/5+1, "")
		}
		w := s.wallet(s.child.ID)
		s.Require().GreaterOrEqual(w.RealMoneyBalance, int64(0))
		s.Require().GreaterOrEqual(w.VirtualCoinsBalance, int64(0))
		s.Require().GreaterOrEqual(w.SavingsBalance, int64(0))
		s.Require().GreaterOrEqual(w.InvestmentBalance, int64(0))
	}
}

func (s *ledgerSuite) TestConcurrentTransfersSerialize() {
	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ledger.TransferToSavings(s.ctx, s.child.ID, 250)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, short := 0, 0
	for err := range errs {
		switch apperr.KindOf(err) {
		case "":
			ok++
		case apperr.KindInsufficientBalance:
			short++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(10, ok)
	s.Equal(10, short)

	w := s.wallet(s.child.ID)
	s.Zero(w.RealMoneyBalance)
	s.Equal(int64(3500), w.SavingsBalance)
	s.Equal(int64(10), s.countTransactions(s.child.ID, model.TransactionTypeTransferToSavings))
}
