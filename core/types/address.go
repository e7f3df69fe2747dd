// Package types holds the identifiers shared across the yieldcore packages.
package types

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Address identifies a token holder. It aliases go-ethereum's common.Address
// rather than rolling a bespoke 20-byte type, so the core interoperates with
// any host ledger that already speaks that representation.
type Address = common.Address

// Hash identifies an event or a persisted snapshot. Aliases common.Hash for
// the same reason.
type Hash = common.Hash

// ZeroAddress is the sentinel recipient/sender that denotes mint and burn.
var ZeroAddress = Address{}

// IsZero reports whether addr is the zero address.
func IsZero(addr Address) bool {
	return addr == ZeroAddress
}

// BytesToAddress converts bytes to an address, left-padding or truncating
// from the left the way common.BytesToAddress does.
func BytesToAddress(b []byte) Address {
	return common.BytesToAddress(b)
}

// HexToAddress parses a hex string (with or without 0x prefix) into an
// address.
func HexToAddress(s string) Address {
	return common.HexToAddress(s)
}

// PublicKeyToAddress derives a holder address from a public key the same
// way an EVM-compatible host ledger derives account addresses: Keccak256 of
// the key, last 20 bytes.
func PublicKeyToAddress(publicKey []byte) Address {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(publicKey)
	digest := hasher.Sum(nil)
	return BytesToAddress(digest[12:])
}
