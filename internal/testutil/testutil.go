// Package testutil builds throwaway infrastructure for package tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"kidledger/internal/config"
	"kidledger/internal/infrastructure/database"
	"kidledger/internal/infrastructure/lock"
	"kidledger/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SeedTime stamps seeded rows. It predates any clock a test starts from.
var SeedTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// NewDB opens a fresh migrated in-memory SQLite database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: ":memory:",
		LogLevel:   "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewRedisLocker returns a wallet locker backed by a private miniredis.
func NewRedisLocker(t testing.TB) *lock.RedisLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return lock.NewRedisLocker(client, 10*time.Second, time.Millisecond, 5000)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// SeedParent inserts a parent user directly.
func SeedParent(t testing.TB, db *gorm.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: email, Role: model.RoleParent, IsActive: true}
	require.NoError(t, db.Create(u).Error)
	return u
}

// SeedChild inserts a child of parentID holding balances.
func SeedChild(t testing.TB, db *gorm.DB, parentID int64, email string, age int, balances model.Wallet) (*model.User, *model.Wallet) {
	t.Helper()
	u := &model.User{Email: email, Name: email, Role: model.RoleChild, ParentID: &parentID, Age: &age, IsActive: true}
	require.NoError(t, db.Create(u).Error)

	balances.ID = 0
	balances.UserID = u.ID
	if balances.UpdatedAt.IsZero() {
		balances.CreatedAt = SeedTime
		balances.UpdatedAt = SeedTime
	}
	require.NoError(t, db.Create(&balances).Error)
	return u, &balances
}

// SeedMission inserts an active template.
func SeedMission(t testing.TB, db *gorm.DB, reward int64, ageMin, ageMax int, durationDays *int) *model.Mission {
	t.Helper()
	m := &model.Mission{
		Title:        "Save for a bike",
		Type:         model.MissionTypeSaveMoney,
		Difficulty:   model.DifficultyEasy,
		RewardCoins:  reward,
		DurationDays: durationDays,
		AgeMin:       ageMin,
		AgeMax:       ageMax,
		IsActive:     true,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}
