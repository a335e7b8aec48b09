package domain

// SwapRecord is the persistent state unit describing one escrow agreement
// between two parties. Corresponds to the swaps table in PostgreSQL.
type SwapRecord struct {
	ID          string  // hex SHA256 swap id, assigned at initiation
	PartyA      Address // counterparty committing MintA
	PartyB      Address // counterparty committing MintB
	MintA       string  // asset type committed by party A
	MintB       string  // asset type committed by party B
	AmountA     uint64  // units of MintA escrowed by A
	AmountB     uint64  // units of MintB escrowed by B
	SourceA     string  // ledger account A's funds were locked from (refund target)
	SourceB     string  // ledger account B's funds were locked from (refund target)
	DestA       string  // account where A receives MintB at settlement
	DestB       string  // account where B receives MintA at settlement
	CustodyA    string  // derived custody account holding AmountA while pending
	CustodyB    string  // derived custody account holding AmountB while pending
	Deadline    int64   // Unix timestamp in seconds; mutable via extend only
	GracePeriod int64   // seconds past Deadline before Expire becomes callable
	State       string  // "pending" | "completed" | "expired"
	CreatedAt   int64   // Unix timestamp in seconds
	UpdatedAt   int64   // Unix timestamp in seconds, bumped on every mutation
}

// Swap state constants. Transitions are pending -> completed or
// pending -> expired; terminal states never transition again.
const (
	SwapStatePending   = "pending"
	SwapStateCompleted = "completed"
	SwapStateExpired   = "expired"
)

// IsTerminal reports whether the record reached a final state.
func (r *SwapRecord) IsTerminal() bool {
	return r.State == SwapStateCompleted || r.State == SwapStateExpired
}

// ExpiresAt returns the instant after which Expire becomes callable.
func (r *SwapRecord) ExpiresAt() int64 {
	return r.Deadline + r.GracePeriod
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing store-owned memory.
func (r *SwapRecord) Clone() *SwapRecord {
	cp := *r
	return &cp
}
