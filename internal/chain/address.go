package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/depositaddr/pkg/helpers"
)

// Address parsing errors.
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrAddressLength  = errors.New("invalid address length")
)

// ParseAddress converts an address string into the raw bytes used in
// deposit derivation.
//
// EVM and Sui addresses are hex with an optional 0x prefix. Starknet
// addresses are hex felts and are left-padded to 32 bytes. Solana addresses
// are base58.
func ParseAddress(eco Ecosystem, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	switch eco {
	case EcosystemEVM:
		if common.IsHexAddress(s) {
			return common.HexToAddress(s).Bytes(), nil
		}
		return nil, hexLengthError(eco, s)

	case EcosystemSui:
		b, err := helpers.HexToBytes(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return checkLength(eco, b)

	case EcosystemStarknet:
		digits := helpers.TrimHexPrefix(s)
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		b, err := helpers.HexToBytes(digits)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		if len(b) > eco.AddressLength() {
			return nil, lengthError(eco, len(b))
		}
		return helpers.PadLeft(b, eco.AddressLength()), nil

	case EcosystemSolana:
		b, err := helpers.Base58ToBytes(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return checkLength(eco, b)

	default:
		return nil, fmt.Errorf("%w: unsupported ecosystem %q", ErrInvalidAddress, eco)
	}
}

// FormatAddress renders raw address bytes the way the ecosystem writes them.
// EVM addresses use the EIP-55 checksum.
func FormatAddress(eco Ecosystem, b []byte) string {
	switch {
	case eco == EcosystemEVM && len(b) == common.AddressLength:
		return common.BytesToAddress(b).Hex()
	case eco.Encoding() == EncodingBase58:
		return helpers.BytesToBase58(b)
	default:
		return helpers.BytesToHex(b)
	}
}

// SameAddress compares two textual addresses using the ecosystem's case
// rules. Hex addresses compare case-insensitively and base58 addresses must
// match exactly.
func SameAddress(eco Ecosystem, a, b string) bool {
	if eco.CaseSensitive() {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func checkLength(eco Ecosystem, b []byte) ([]byte, error) {
	if len(b) != eco.AddressLength() {
		return nil, lengthError(eco, len(b))
	}
	return b, nil
}

func hexLengthError(eco Ecosystem, s string) error {
	b, err := helpers.HexToBytes(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return lengthError(eco, len(b))
}

func lengthError(eco Ecosystem, got int) error {
	return fmt.Errorf("%w: got %d bytes, expected %d for %s", ErrAddressLength, got, eco.AddressLength(), eco)
}
