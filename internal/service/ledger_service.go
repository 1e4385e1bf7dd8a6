package service

import (
	"context"
	"fmt"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/config"
	"kidledger/internal/infrastructure/lock"
	"kidledger/internal/logging"
	"kidledger/internal/model"
	"kidledger/internal/repository"
	"kidledger/pkg/idgen"
	"kidledger/pkg/money"

	"gorm.io/gorm"
)

// LedgerService is the only writer of wallet balances.
//
// Every mutation follows the same path: take the wallet lock, open one
// database transaction, update the balances under the version check, then
// append the transaction row, the activity entry and the outbox event.
// Either all of them commit or none do.
type LedgerService struct {
	db              *gorm.DB
	locker          lock.Locker
	cfg             *config.Config
	logger          *logging.Logger
	clock           Clock
	events          eventWriter
	userRepo        *repository.UserRepository
	walletRepo      *repository.WalletRepository
	transactionRepo *repository.TransactionRepository
	activityRepo    *repository.ActivityRepository
}

func NewLedgerService(db *gorm.DB, locker lock.Locker, cfg *config.Config, logger *logging.Logger) *LedgerService {
	s := &LedgerService{
		db:              db,
		locker:          locker,
		cfg:             cfg,
		logger:          logger.WithComponent(logging.ComponentLedger),
		clock:           systemClock,
		userRepo:        repository.NewUserRepository(db),
		walletRepo:      repository.NewWalletRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		activityRepo:    repository.NewActivityRepository(db),
	}
	s.events = eventWriter{
		repo:  repository.NewOutboxRepository(db),
		topic: cfg.Broker.Topic.LedgerEvents,
		clock: s.now,
	}
	return s
}

func (s *LedgerService) SetClock(clock Clock) {
	s.clock = clock
}

func (s *LedgerService) now() time.Time {
	return s.clock()
}

// posting describes one ledger entry and its effect on the wallet.
type posting struct {
	actorID     int64
	userID      int64
	txType      model.TransactionType
	currency    model.Currency
	amount      int64
	delta       model.WalletDelta
	status      model.TransactionStatus
	approval    bool
	description string
	action      string
	summary     string
	event       string
	metadata    model.Metadata
	shortfall   error
}

func zoneOf(w *model.Wallet, currency model.Currency) int64 {
	if currency == model.CurrencyVirtual {
		return w.VirtualCoinsBalance
	}
	return w.RealMoneyBalance
}

// post applies p inside tx. The caller holds the wallet lock.
func (s *LedgerService) post(ctx context.Context, tx *gorm.DB, p posting) (*model.Transaction, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, tx, p.userID)
	if err != nil {
		return nil, err
	}

	next, ok := wallet.Apply(p.delta)
	if !ok {
		return nil, p.shortfall
	}

	now := nextTick(s.clock(), wallet.UpdatedAt)
	if p.delta != (model.WalletDelta{}) {
		if err := s.walletRepo.Save(ctx, tx, wallet, &next, now); err != nil {
			return nil, err
		}
	}

	trans := &model.Transaction{
		TransactionNo:          idgen.GenerateTransactionNo(),
		UserID:                 p.userID,
		Type:                   p.txType,
		Amount:                 p.amount,
		Currency:               p.currency,
		Description:            p.description,
		Status:                 p.status,
		ParentApprovalRequired: p.approval,
		BalanceBefore:          zoneOf(wallet, p.currency),
		BalanceAfter:           zoneOf(&next, p.currency),
		Metadata:               p.metadata,
		CreatedAt:              now,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	entry := &model.ActivityLog{
		UserID:      p.userID,
		ActorID:     p.actorID,
		ActionType:  p.action,
		Description: p.summary,
		Metadata:    model.Metadata{"transaction_no": trans.TransactionNo, "amount": p.amount},
		CreatedAt:   now,
	}
	if err := s.activityRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	err = s.events.write(ctx, tx, model.Event{
		Type:       p.event,
		UserID:     p.userID,
		ActorID:    p.actorID,
		OccurredAt: now,
		Data: map[string]any{
			"transaction_no": trans.TransactionNo,
			"type":           trans.Type,
			"amount":         trans.Amount,
			"currency":       trans.Currency,
			"status":         trans.Status,
			"balance":        next.Snapshot(),
		},
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}

func (s *LedgerService) lockWallet(ctx context.Context, userID int64, fn func() error) error {
	return guard(ctx, s.locker, s.logger, lock.WalletKey(userID), fn)
}

// commit runs post under the wallet lock in its own database transaction.
func (s *LedgerService) commit(ctx context.Context, p posting) (*model.Transaction, error) {
	var trans *model.Transaction
	err := s.lockWallet(ctx, p.userID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			trans, err = s.post(ctx, tx, p)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ledger entry committed",
		logging.FieldUserID, p.userID,
		logging.FieldActorID, p.actorID,
		logging.FieldAmount, p.amount,
		logging.FieldCurrency, p.currency,
		logging.FieldTransactionNo, trans.TransactionNo,
		"type", p.txType,
	)
	return trans, nil
}

// Deposit adds real money to a child's spendable zone. actorID must be the
// child's parent.
func (s *LedgerService) Deposit(ctx context.Context, actorID, userID, amount int64, description string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	if _, err := authorizeParent(ctx, s.userRepo, actorID, userID); err != nil {
		return nil, err
	}
	if description == "" {
		description = "Deposit"
	}

	return s.commit(ctx, posting{
		actorID:     actorID,
		userID:      userID,
		txType:      model.TransactionTypeDeposit,
		currency:    model.CurrencyReal,
		amount:      amount,
		delta:       model.WalletDelta{RealMoney: amount},
		status:      model.TransactionStatusCompleted,
		description: description,
		action:      model.ActionDeposit,
		summary:     fmt.Sprintf("Deposited %s", money.FormatCents(amount)),
		event:       model.EventWalletCredited,
	})
}

func (s *LedgerService) TransferToSavings(ctx context.Context, userID, amount int64) (*model.Transaction, error) {
	return s.transfer(ctx, userID, amount, model.TransactionTypeTransferToSavings)
}

func (s *LedgerService) TransferToInvestment(ctx context.Context, userID, amount int64) (*model.Transaction, error) {
	return s.transfer(ctx, userID, amount, model.TransactionTypeTransferToInvestment)
}

// transfer moves real money out of the spendable zone. The sum of the three
// real-money zones does not change.
func (s *LedgerService) transfer(ctx context.Context, userID, amount int64, txType model.TransactionType) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}

	delta := model.WalletDelta{RealMoney: -amount}
	target := "savings"
	action := model.ActionTransferSavings
	if txType == model.TransactionTypeTransferToInvestment {
		delta.Investment = amount
		target = "investment"
		action = model.ActionTransferInvest
	} else {
		delta.Savings = amount
	}

	return s.commit(ctx, posting{
		actorID:     userID,
		userID:      userID,
		txType:      txType,
		currency:    model.CurrencyReal,
		amount:      amount,
		delta:       delta,
		status:      model.TransactionStatusCompleted,
		description: "Transfer to " + target,
		action:      action,
		summary:     fmt.Sprintf("Moved %s to %s", money.FormatCents(amount), target),
		event:       model.EventWalletTransfer,
		metadata:    model.Metadata{"target_zone": target},
		shortfall:   apperr.ErrInsufficientBalance,
	})
}

// AwardVirtualCoins is the parent-initiated coin bonus.
func (s *LedgerService) AwardVirtualCoins(ctx context.Context, actorID, userID, amount int64, reason string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	if _, err := authorizeParent(ctx, s.userRepo, actorID, userID); err != nil {
		return nil, err
	}
	return s.commit(ctx, s.reward(actorID, userID, amount, reason, model.Metadata{"source": "parent"}))
}

// reward builds a coin credit. Mission payouts post it inside their own
// transaction through awardInTx.
func (s *LedgerService) reward(actorID, userID, amount int64, reason string, metadata model.Metadata) posting {
	if reason == "" {
		reason = "Reward"
	}
	return posting{
		actorID:     actorID,
		userID:      userID,
		txType:      model.TransactionTypeMissionReward,
		currency:    model.CurrencyVirtual,
		amount:      amount,
		delta:       model.WalletDelta{VirtualCoins: amount},
		status:      model.TransactionStatusCompleted,
		description: reason,
		action:      model.ActionCoinsAwarded,
		summary:     fmt.Sprintf("Earned %d coins: %s", amount, reason),
		event:       model.EventWalletCredited,
		metadata:    metadata,
	}
}

func (s *LedgerService) awardInTx(ctx context.Context, tx *gorm.DB, userID, amount int64, reason string, metadata model.Metadata) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	return s.post(ctx, tx, s.reward(userID, userID, amount, reason, metadata))
}

func (s *LedgerService) SpendVirtualCoins(ctx context.Context, userID, amount int64, description string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	if description == "" {
		description = "Purchase"
	}

	return s.commit(ctx, posting{
		actorID:     userID,
		userID:      userID,
		txType:      model.TransactionTypePurchase,
		currency:    model.CurrencyVirtual,
		amount:      amount,
		delta:       model.WalletDelta{VirtualCoins: -amount},
		status:      model.TransactionStatusCompleted,
		description: description,
		action:      model.ActionCoinsSpent,
		summary:     fmt.Sprintf("Spent %d coins: %s", amount, description),
		event:       model.EventWalletDebited,
		shortfall:   apperr.ErrInsufficientCoins,
	})
}

// RequestPurchase records a coin purchase that waits for the parent. The
// wallet is not touched until the parent approves.
func (s *LedgerService) RequestPurchase(ctx context.Context, userID, amount int64, description string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsChild() || user.ParentID == nil {
		return nil, apperr.ErrUnauthorized
	}
	if description == "" {
		description = "Purchase"
	}

	return s.commit(ctx, posting{
		actorID:     userID,
		userID:      userID,
		txType:      model.TransactionTypePurchase,
		currency:    model.CurrencyVirtual,
		amount:      amount,
		status:      model.TransactionStatusPending,
		approval:    true,
		description: description,
		action:      model.ActionPurchaseRequest,
		summary:     fmt.Sprintf("Asked to spend %d coins: %s", amount, description),
		event:       model.EventApprovalRequest,
	})
}

// ResolveApproval approves or rejects a pending purchase. Approval deducts
// the coins in the same transaction that closes the request.
func (s *LedgerService) ResolveApproval(ctx context.Context, parentID, transactionID int64, approve bool) (*model.Transaction, error) {
	pending, err := s.transactionRepo.GetByID(ctx, nil, transactionID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeParent(ctx, s.userRepo, parentID, pending.UserID); err != nil {
		return nil, err
	}
	if pending.Status != model.TransactionStatusPending {
		return nil, apperr.ErrNotPending
	}

	status := model.TransactionStatusRejected
	if approve {
		status = model.TransactionStatusApproved
	}

	var resolved *model.Transaction
	err = s.lockWallet(ctx, pending.UserID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := s.transactionRepo.GetByID(ctx, tx, transactionID)
			if err != nil {
				return err
			}
			if current.Status != model.TransactionStatusPending {
				return apperr.ErrNotPending
			}

			wallet, err := s.walletRepo.GetByUserID(ctx, tx, current.UserID)
			if err != nil {
				return err
			}
			now := nextTick(s.clock(), wallet.UpdatedAt)
			after := wallet.VirtualCoinsBalance

			if approve {
				next, ok := wallet.Apply(model.WalletDelta{VirtualCoins: -current.Amount})
				if !ok {
					return apperr.ErrInsufficientCoins
				}
				if err := s.walletRepo.Save(ctx, tx, wallet, &next, now); err != nil {
					return err
				}
				after = next.VirtualCoinsBalance
			}

			if err := s.transactionRepo.Resolve(ctx, tx, current.ID, status, parentID, now); err != nil {
				return err
			}

			entry := &model.ActivityLog{
				UserID:      current.UserID,
				ActorID:     parentID,
				ActionType:  model.ActionApprovalResolved,
				Description: fmt.Sprintf("Purchase of %d coins %s", current.Amount, status),
				Metadata:    model.Metadata{"transaction_no": current.TransactionNo, "status": string(status), "balance_after": after},
				CreatedAt:   now,
			}
			if err := s.activityRepo.Create(ctx, tx, entry); err != nil {
				return fmt.Errorf("record activity: %w", err)
			}

			err = s.events.write(ctx, tx, model.Event{
				Type:       model.EventApprovalResolved,
				UserID:     current.UserID,
				ActorID:    parentID,
				OccurredAt: now,
				Data: map[string]any{
					"transaction_no": current.TransactionNo,
					"amount":         current.Amount,
					"status":         status,
					"balance_after":  after,
				},
			})
			if err != nil {
				return err
			}

			resolved, err = s.transactionRepo.GetByID(ctx, tx, current.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("approval resolved",
		logging.FieldUserID, resolved.UserID,
		logging.FieldActorID, parentID,
		logging.FieldTransactionNo, resolved.TransactionNo,
		"status", resolved.Status,
	)
	return resolved, nil
}

// payAllowance credits one allowance period inside tx.
func (s *LedgerService) payAllowance(ctx context.Context, tx *gorm.DB, a *model.Allowance) (*model.Transaction, error) {
	return s.post(ctx, tx, posting{
		actorID:     a.ParentID,
		userID:      a.ChildID,
		txType:      model.TransactionTypeAllowance,
		currency:    model.CurrencyReal,
		amount:      a.Amount,
		delta:       model.WalletDelta{RealMoney: a.Amount},
		status:      model.TransactionStatusCompleted,
		description: fmt.Sprintf("%s allowance", a.Frequency),
		action:      model.ActionAllowance,
		summary:     fmt.Sprintf("Received %s %s allowance", money.FormatCents(a.Amount), a.Frequency),
		event:       model.EventWalletCredited,
		metadata:    model.Metadata{"allowance_id": a.ID},
	})
}

func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	wallet, err := s.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	balance := wallet.Snapshot()
	return &balance, nil
}

// GetTransaction looks a row up by its public transaction number.
func (s *LedgerService) GetTransaction(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	return s.transactionRepo.GetByTransactionNo(ctx, transactionNo)
}

// ListTransactions returns newest first. limit <= 0 returns everything.
func (s *LedgerService) ListTransactions(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	return s.transactionRepo.ListByUserID(ctx, userID, limit)
}

// ListPendingApprovals collects the pending requests of every child of parentID.
func (s *LedgerService) ListPendingApprovals(ctx context.Context, parentID int64) ([]*model.Transaction, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, parentID); err != nil {
		return nil, err
	}
	children, err := s.userRepo.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return s.transactionRepo.ListPendingApprovals(ctx, ids)
}
