package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 20-byte account identifier rendered as 0x-prefixed hex.
type Address [20]byte

// ParseAddress decodes a 0x-prefixed hex address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	if len(trimmed) != 2*len(addr) {
		return addr, fmt.Errorf("types: address must be %d hex bytes", len(addr))
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("types: invalid address: %w", err)
	}
	copy(addr[:], raw)
	return addr, nil
}

// String renders the address as 0x-prefixed hex.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is all zero bytes.
func (a Address) IsZero() bool {
	return a == Address{}
}
