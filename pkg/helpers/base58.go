package helpers

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Base58ToBytes decodes a Bitcoin-alphabet base58 string, as used for
// Solana account and mint addresses.
func Base58ToBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty base58 string")
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 %q: %w", s, err)
	}
	return b, nil
}

// BytesToBase58 encodes bytes with the Bitcoin base58 alphabet.
func BytesToBase58(b []byte) string {
	return base58.Encode(b)
}
