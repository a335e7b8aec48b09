package domain

// SwapEvent is an append-only audit entry for a swap state transition.
// Corresponds to the swap_events table in ClickHouse.
type SwapEvent struct {
	SwapID    string  // swap the event belongs to
	Kind      string  // one of the event kind constants
	PartyA    Address // counterparty A at event time
	PartyB    Address // counterparty B at event time
	AmountA   uint64  // committed MintA units
	AmountB   uint64  // committed MintB units
	Deadline  int64   // deadline after the event (new deadline for extensions)
	Timestamp int64   // Unix timestamp in seconds
}

// Event kind constants.
const (
	EventSwapInitiated    = "swap_initiated"
	EventSwapCompleted    = "swap_completed"
	EventSwapExpired      = "swap_expired"
	EventDeadlineExtended = "deadline_extended"
)
