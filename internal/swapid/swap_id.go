package swapid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeSwapID computes a deterministic swap id using SHA256.
// Formula: SHA256(party_a|party_b|mint_a|mint_b|amount_a|amount_b|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeSwapID(
	partyA string,
	partyB string,
	mintA string,
	mintB string,
	amountA uint64,
	amountB uint64,
	createdAt int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%d|%d",
		partyA,
		partyB,
		mintA,
		mintB,
		amountA,
		amountB,
		createdAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Custody sides for CustodyAccount derivation.
const (
	SideA = "a"
	SideB = "b"
)

// CustodyAccount derives the program-controlled custody account id for one
// side of a swap. The id is a hash of the swap id, so no party-supplied
// account can collide with it; only the escrow custodian ever derives it.
func CustodyAccount(swapID, side string) string {
	hash := sha256.Sum256([]byte("custody|" + side + "|" + swapID))
	return base58.Encode(hash[:])
}
