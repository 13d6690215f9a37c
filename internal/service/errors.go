package service

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies business-rule failures. Callers switch on it to pick a
// response; anything that is not an *Error is an infrastructure fault.
type Kind int

const (
	KindInvalidArgument Kind = iota + 1
	KindInsufficientBalance
	KindInsufficientResources
	KindCooldownActive
	KindInvalidStateTransition
	KindNotFound
	KindUnauthorized
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindInsufficientResources:
		return "insufficient_resources"
	case KindCooldownActive:
		return "cooldown_active"
	case KindInvalidStateTransition:
		return "invalid_state_transition"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrSelfTransfer           = errors.New("self-transfer not allowed")
	ErrUnknownKind            = errors.New("unknown transaction kind")
	ErrInvalidGiftAmount      = errors.New("gift amount must be 1, 5 or 10")
	ErrInvalidReason          = errors.New("coma reason must be Choice or Quest")
	ErrMessageRequired        = errors.New("message is required")
	ErrInvalidAction          = errors.New("action must be accept or reject")
	ErrIdempotencyMismatch    = errors.New("key reuse with mismatched payload")
	ErrIdempotencyConflict    = errors.New("request in progress")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientResources  = errors.New("no coma refills and insufficient balance")
	ErrComaCooldown           = errors.New("coma re-entry cooldown active")
	ErrPostCooldown           = errors.New("post cooldown active")
	ErrAlreadyInComa          = errors.New("already in coma")
	ErrNotInComa              = errors.New("not in coma")
	ErrAlreadySelfKilled      = errors.New("account already self-killed")
	ErrSelfKillInComa         = errors.New("cannot self-kill while in coma")
	ErrAccountInactive        = errors.New("account is not active")
	ErrNotAGhost              = errors.New("target is not a ghost")
	ErrAlreadyRescued         = errors.New("already rescued this batch")
	ErrBatchIncomplete        = errors.New("batch not complete")
	ErrShrineAlreadyViewed    = errors.New("shrine link already viewed")
	ErrTargetNotInComa        = errors.New("target is not in coma")
	ErrRequestAlreadyResolved = errors.New("request already resolved")
	ErrGigLimit               = errors.New("active gig limit reached")
	ErrGigCompleted           = errors.New("gig already completed")
	ErrAccountNotFound        = errors.New("account not found")
	ErrRescueNotFound         = errors.New("rescue not found")
	ErrRequestNotFound        = errors.New("request not found")
	ErrGigNotFound            = errors.New("gig not found")
	ErrNotVerified            = errors.New("account is not verified")
	ErrNotPrivileged          = errors.New("moderator access required")
	ErrNotRecipient           = errors.New("only the coma account holder may respond")
	ErrNotOwner               = errors.New("not the owner")
	ErrWallUnbroken           = errors.New("recipient is in coma; break the fourth wall first")
)

// Error is a business-rule failure with the data a caller needs to render an
// actionable message.
type Error struct {
	Kind              Kind
	Err               error
	Balance           *int64
	Required          int64
	CooldownRemaining time.Duration
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindInsufficientBalance && e.Balance != nil:
		return fmt.Sprintf("%v: balance %d, required %d", e.Err, *e.Balance, e.Required)
	case e.CooldownRemaining > 0:
		return fmt.Sprintf("%v: %s remaining", e.Err, e.CooldownRemaining.Round(time.Second))
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func insufficient(balance, required int64) *Error {
	return &Error{Kind: KindInsufficientBalance, Err: ErrInsufficientBalance, Balance: &balance, Required: required}
}

func cooldownActive(err error, remaining time.Duration) *Error {
	return &Error{Kind: KindCooldownActive, Err: err, CooldownRemaining: remaining}
}

// KindOf returns the business kind of err, or 0 for infrastructure faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// AsError unwraps err to its *Error, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
