// Package fund holds the domain types and error taxonomy shared by the
// ledgers, vault, and router.
package fund

import "errors"

// Address identifies a participant or a component account on the ledgers.
type Address string

// ZeroAddress is never a valid participant.
const ZeroAddress Address = ""

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// SubAccount derives the address of a component-owned sub-ledger account.
func (a Address) SubAccount(tag string) Address {
	return a + Address("/"+tag)
}

// RequestType distinguishes the two request pipelines.
type RequestType int

const (
	RequestDeposit RequestType = iota
	RequestWithdraw
)

func (t RequestType) String() string {
	switch t {
	case RequestDeposit:
		return "deposit"
	case RequestWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// LimitKind selects which admission cap an update or query refers to.
type LimitKind int

const (
	LimitDeposit LimitKind = iota
	LimitMint
	LimitWithdraw
	LimitRedeem
)

// Inflow reports whether the kind belongs to the subscription side.
func (k LimitKind) Inflow() bool {
	return k == LimitDeposit || k == LimitMint
}

// Failure taxonomy. Every failed call leaves all ledgers, registries, and audit
// logs unchanged; batches abort as a whole.
var (
	ErrForbidden             = errors.New("participant is not allowed")
	ErrUnauthorized          = errors.New("caller lacks the required role")
	ErrVaultNotAuthorized    = errors.New("vault is not authorized")
	ErrAlreadyAuthorized     = errors.New("vault already authorized")
	ErrNotAuthorized         = errors.New("vault not in authorized set")
	ErrBelowMinimum          = errors.New("amount below minimum")
	ErrSuspended             = errors.New("operation suspended")
	ErrExceedsGlobalMax      = errors.New("exceeds global maximum")
	ErrExceedsIndividualMax  = errors.New("exceeds individual maximum")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
	ErrZeroAmount            = errors.New("amount must be a positive integer")
	ErrAmountMismatch        = errors.New("entry amount exceeds pending balance")
	ErrOutOfRange            = errors.New("range out of bounds")
)
