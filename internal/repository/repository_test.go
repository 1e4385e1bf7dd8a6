package repository

import (
	"context"
	"testing"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/model"
	"kidledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestWalletSaveRejectsStaleVersion(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	parent := testutil.SeedParent(t, db, "p@example.com")
	child, _ := testutil.SeedChild(t, db, parent.ID, "c@example.com", 9, model.Wallet{RealMoneyBalance: 100})

	repo := NewWalletRepository(db)
	first, err := repo.GetByUserID(ctx, nil, child.ID)
	require.NoError(t, err)
	stale := *first

	next, ok := first.Apply(model.WalletDelta{RealMoney: -40, Savings: 40})
	require.True(t, ok)
	require.NoError(t, repo.Save(ctx, nil, first, &next, now))
	assert.Equal(t, first.Version+1, next.Version)

	again, ok := stale.Apply(model.WalletDelta{RealMoney: -40})
	require.True(t, ok)
	assert.ErrorIs(t, repo.Save(ctx, nil, &stale, &again, now), apperr.ErrConflict)

	got, err := repo.GetByUserID(ctx, nil, child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.RealMoneyBalance)
	assert.Equal(t, int64(40), got.SavingsBalance)
}

func TestAllowanceAdvanceOncePerRead(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewAllowanceRepository(db)

	a := &model.Allowance{ParentID: 1, ChildID: 2, Amount: 500, Frequency: model.FrequencyWeekly, FirstPaymentDate: now, NextPaymentDate: now, IsActive: true}
	require.NoError(t, repo.Create(ctx, nil, a))

	read, err := repo.GetByID(ctx, nil, a.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Advance(ctx, nil, read, read.FollowingPayment(), now))
	assert.ErrorIs(t, repo.Advance(ctx, nil, read, read.FollowingPayment(), now), apperr.ErrConflict)

	got, err := repo.GetByID(ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PaymentsMade)
	assert.True(t, got.NextPaymentDate.Equal(now.AddDate(0, 0, 7)))

	due, err := repo.ListDue(ctx, now.AddDate(0, 0, 6), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = repo.GetByID(ctx, nil, 999)
	assert.ErrorIs(t, err, apperr.ErrAllowanceNotFound)
}

func TestMarkClaimedFlipsOnce(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewUserMissionRepository(db)

	um := &model.UserMission{UserID: 1, MissionID: 1, Status: model.MissionStatusActive, StartedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(ctx, nil, um))

	flipped, err := repo.MarkClaimed(ctx, nil, um.ID, now)
	require.NoError(t, err)
	assert.False(t, flipped, "active instance must not be claimable")

	require.NoError(t, repo.UpdateProgress(ctx, nil, um.ID, model.MaxProgress, nil, now))

	flipped, err = repo.MarkClaimed(ctx, nil, um.ID, now)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = repo.MarkClaimed(ctx, nil, um.ID, now)
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestResolveOnlyFromPending(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewTransactionRepository(db)

	trans := &model.Transaction{
		TransactionNo: "TXN1",
		UserID:        1,
		Type:          model.TransactionTypePurchase,
		Amount:        30,
		Currency:      model.CurrencyVirtual,
		Status:        model.TransactionStatusPending,
		BalanceBefore: 80,
		BalanceAfter:  80,
		CreatedAt:     now,
	}
	require.NoError(t, repo.Create(ctx, nil, trans))

	require.NoError(t, repo.Resolve(ctx, nil, trans.ID, model.TransactionStatusRejected, 7, now))
	assert.ErrorIs(t, repo.Resolve(ctx, nil, trans.ID, model.TransactionStatusApproved, 7, now), apperr.ErrNotPending)

	got, err := repo.GetByID(ctx, nil, trans.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusRejected, got.Status)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, int64(7), *got.ApprovedBy)
	assert.Equal(t, int64(80), got.BalanceAfter)
	assert.Equal(t, int64(30), got.Amount)
}
