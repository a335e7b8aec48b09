package escrow

import (
	"token-swap-escrow/internal/domain"
)

// InitiateRequest carries everything needed to open a swap. Both parties
// authorize up front: A's signature covers the A-side deposit, B's the
// B-side deposit.
type InitiateRequest struct {
	PartyA      domain.Address
	PartyB      domain.Address
	MintA       string
	MintB       string
	AmountA     uint64
	AmountB     uint64
	SourceA     string // account the A-side deposit is taken from
	SourceB     string // account the B-side deposit is taken from
	DestA       string // account A receives MintB into at settlement
	DestB       string // account B receives MintA into at settlement
	Deadline    int64  // Unix seconds
	GracePeriod int64  // seconds
	SigA        []byte // PartyA over the canonical initiate payload
	SigB        []byte // PartyB over the canonical initiate payload
}

// ApproveRequest finalizes a swap. Settlement moves both parties' funds, so
// both signatures are required.
type ApproveRequest struct {
	SwapID string
	SigA   []byte // PartyA over the canonical approve payload
	SigB   []byte // PartyB over the canonical approve payload
}

// ExpireRequest refunds a lapsed swap. No authorization: funds can only
// return to their original depositors.
type ExpireRequest struct {
	SwapID string
}

// ExtendDeadlineRequest pushes the deadline forward. Either party may
// request more time with its own signature.
type ExtendDeadlineRequest struct {
	SwapID      string
	NewDeadline int64          // Unix seconds, must be after the current deadline
	Party       domain.Address // the requesting party (must be party A or B)
	Sig         []byte         // Party over the canonical extend payload
}
