package lock

import (
	"context"
	"errors"
	"fmt"
)

var ErrLockFailed = errors.New("could not obtain lock")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out mutually exclusive locks by key. Obtain blocks until the
// lock is held, the retry budget is spent (ErrLockFailed) or ctx ends.
type Locker interface {
	Obtain(ctx context.Context, key, owner string) (Lock, error)
}

// WalletKey serializes every balance mutation of one user's wallet.
func WalletKey(userID int64) string {
	return fmt.Sprintf("kidledger:lock:wallet:%d", userID)
}

// MissionKey serializes mission assignment for one user and template.
func MissionKey(userID, missionID int64) string {
	return fmt.Sprintf("kidledger:lock:mission:%d:%d", userID, missionID)
}
