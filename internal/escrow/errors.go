package escrow

import "errors"

// Validation errors: rejected before any state or funds are touched.
var (
	// ErrInvalidAmount is returned when a committed amount is zero.
	ErrInvalidAmount = errors.New("invalid amount: committed amounts must be positive")

	// ErrInvalidDeadline is returned when the deadline is not strictly in
	// the future at initiation.
	ErrInvalidDeadline = errors.New("invalid deadline: must be strictly in the future")

	// ErrInvalidGracePeriod is returned when the grace period is negative.
	ErrInvalidGracePeriod = errors.New("invalid grace period: must be non-negative")

	// ErrDuplicateParty is returned when both parties are the same identity.
	ErrDuplicateParty = errors.New("duplicate party: counterparties must differ")

	// ErrInvalidParty is returned when a party address is malformed.
	ErrInvalidParty = errors.New("invalid party address")

	// ErrInvalidAccount is returned when a mint or account id is empty.
	ErrInvalidAccount = errors.New("invalid account: mint and account ids are required")
)

// State-conflict errors: the transition is illegal given current state/time.
var (
	// ErrNotPending is returned when the swap already reached a terminal state.
	ErrNotPending = errors.New("swap is not pending")

	// ErrDeadlinePassed is returned when Approve is called after the
	// deadline; the expiry path must be used instead.
	ErrDeadlinePassed = errors.New("deadline passed: swap can no longer be approved")

	// ErrGracePeriodNotElapsed is returned when Expire is called before
	// deadline plus grace period.
	ErrGracePeriodNotElapsed = errors.New("grace period not elapsed")

	// ErrDeadlineAlreadyPassed is returned when ExtendDeadline is called on
	// a swap whose deadline already lapsed.
	ErrDeadlineAlreadyPassed = errors.New("deadline already passed: cannot extend a lapsed swap")

	// ErrInvalidNewDeadline is returned when the new deadline does not move
	// strictly forward.
	ErrInvalidNewDeadline = errors.New("invalid new deadline: must be after the current deadline")
)

// Resource errors.
var (
	// ErrInsufficientFunds is returned when a party's source account does
	// not hold the committed amount. The ledger error is wrapped alongside.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// ErrNotFound is returned by Fetch when no record exists for the id.
var ErrNotFound = errors.New("swap not found")
