package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidValue      = errors.New("invalid numeric value")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBelowMinNotional  = errors.New("order below minimum trade size")

	// ErrOrderVanished signals the expected race during matching: the order
	// was fully filled or cancelled by a concurrent attempt between listing
	// and locking. The current attempt stops; nothing is wrong.
	ErrOrderVanished = errors.New("order no longer pending")

	ErrLockHeld   = errors.New("lock already held")
	ErrPoolClosed = errors.New("dispatcher closed")
	ErrTaskFailed = errors.New("dispatcher task failed")
)
