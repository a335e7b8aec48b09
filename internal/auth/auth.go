// Package auth implements ed25519 authorization for swap operations.
//
// Every mutating operation is authorized by a signature over a canonical
// payload: pipe-joined operation fields, always starting with the operation
// name. Parties are identified by their base58-encoded public key (the
// domain.Address), so verification needs no key registry.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"token-swap-escrow/internal/domain"
)

// ErrUnauthorized is returned when a signature does not verify against the
// party's public key.
var ErrUnauthorized = errors.New("unauthorized: signature verification failed")

// InitiatePayload builds the canonical payload both parties sign to
// authorize the initial escrow deposits.
func InitiatePayload(partyA, partyB domain.Address, mintA, mintB string, amountA, amountB uint64, sourceA, sourceB, destA, destB string, deadline, gracePeriod int64) []byte {
	return []byte(fmt.Sprintf("initiate|%s|%s|%s|%s|%d|%d|%s|%s|%s|%s|%d|%d",
		partyA, partyB, mintA, mintB, amountA, amountB,
		sourceA, sourceB, destA, destB, deadline, gracePeriod))
}

// ApprovePayload builds the canonical payload signed to authorize settlement.
func ApprovePayload(swapID string) []byte {
	return []byte("approve|" + swapID)
}

// ExtendPayload builds the canonical payload signed to authorize a deadline
// extension.
func ExtendPayload(swapID string, newDeadline int64) []byte {
	return []byte(fmt.Sprintf("extend|%s|%d", swapID, newDeadline))
}

// Sign signs a canonical payload with the given private key.
func Sign(priv ed25519.PrivateKey, payload []byte) []byte {
	return ed25519.Sign(priv, payload)
}

// Verify checks a signature over a canonical payload against the party's
// address. Returns ErrUnauthorized on any mismatch.
func Verify(party domain.Address, payload, sig []byte) error {
	pub, err := party.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnauthorized, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes, got %d", ErrUnauthorized, ed25519.SignatureSize, len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		return ErrUnauthorized
	}
	return nil
}
