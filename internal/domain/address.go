package domain

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Address identifies a party by its base58-encoded ed25519 public key.
type Address string

// Bytes decodes the address into its raw 32-byte public key.
func (a Address) Bytes() ([]byte, error) {
	raw, err := base58.Decode(string(a))
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("address must decode to 32 bytes, got %d", len(raw))
	}
	return raw, nil
}

// Validate checks that the address is a canonical point on the ed25519 curve.
// Off-curve or non-canonical keys are rejected up front so signature
// verification later cannot be bypassed with a malformed identity.
func (a Address) Validate() error {
	raw, err := a.Bytes()
	if err != nil {
		return err
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("address is not a valid curve point: %w", err)
	}
	return nil
}

// AddressFromBytes encodes a raw 32-byte public key as an Address.
func AddressFromBytes(raw []byte) Address {
	return Address(base58.Encode(raw))
}
