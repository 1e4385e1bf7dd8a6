// Package apperr holds the failure kinds the ledger and mission engine
// report to callers. Every failure path maps to exactly one Kind.
package apperr

import "errors"

type Kind string

const (
	KindUserNotFound        Kind = "UserNotFound"
	KindWalletNotFound      Kind = "WalletNotFound"
	KindInvalidAmount       Kind = "InvalidAmount"
	KindInsufficientBalance Kind = "InsufficientBalance"
	KindInsufficientCoins   Kind = "InsufficientCoins"
	KindUnauthorized        Kind = "Unauthorized"
	KindAlreadyAssigned     Kind = "AlreadyAssigned"
	KindAgeIneligible       Kind = "AgeIneligible"
	KindMissionInactive     Kind = "MissionInactive"
	KindNotYetCompleted     Kind = "NotYetCompleted"
	KindAlreadyClaimed      Kind = "AlreadyClaimed"
	KindInvalidProgress     Kind = "InvalidProgress"

	KindMissionNotFound     Kind = "MissionNotFound"
	KindMissionNotActive    Kind = "MissionNotActive"
	KindTransactionNotFound Kind = "TransactionNotFound"
	KindAllowanceNotFound   Kind = "AllowanceNotFound"
	KindNotPending          Kind = "NotPending"
	KindInvalidArgument     Kind = "InvalidArgument"
	KindConflict            Kind = "Conflict"

	KindInternal Kind = "Internal"
)

// Error is a domain failure. Sentinels below are compared with errors.Is,
// so wrapping with fmt.Errorf("...: %w") keeps the kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrUserNotFound        = New(KindUserNotFound, "user not found")
	ErrWalletNotFound      = New(KindWalletNotFound, "wallet not found")
	ErrInvalidAmount       = New(KindInvalidAmount, "amount must be positive")
	ErrInsufficientBalance = New(KindInsufficientBalance, "insufficient balance")
	ErrInsufficientCoins   = New(KindInsufficientCoins, "insufficient virtual coins")
	ErrUnauthorized        = New(KindUnauthorized, "unauthorized")
	ErrAlreadyAssigned     = New(KindAlreadyAssigned, "mission already assigned")
	ErrAgeIneligible       = New(KindAgeIneligible, "user age outside mission age range")
	ErrMissionInactive     = New(KindMissionInactive, "mission is not active")
	ErrNotYetCompleted     = New(KindNotYetCompleted, "mission not yet completed")
	ErrAlreadyClaimed      = New(KindAlreadyClaimed, "reward already claimed")
	ErrInvalidProgress     = New(KindInvalidProgress, "invalid progress")

	ErrMissionNotFound     = New(KindMissionNotFound, "mission not found")
	ErrMissionNotActive    = New(KindMissionNotActive, "mission instance is not active")
	ErrTransactionNotFound = New(KindTransactionNotFound, "transaction not found")
	ErrAllowanceNotFound   = New(KindAllowanceNotFound, "allowance not found")
	ErrNotPending          = New(KindNotPending, "transaction is not pending")
	ErrInvalidArgument     = New(KindInvalidArgument, "invalid argument")
	ErrConflict            = New(KindConflict, "concurrent update, retry")
)

// KindOf returns the kind carried by err, or KindInternal for anything that
// is not a domain failure. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
