package deposit

import (
	"fmt"

	"github.com/klingon-exchange/depositaddr/internal/chain"
)

// DeprecatedChainTag is the zero byte that once distinguished chains. It is
// still part of the committed message so that issued addresses keep working.
const DeprecatedChainTag byte = 0x00

// TweakSize is the size of a deposit tweak.
const TweakSize = 32

// Tweak is the 32-byte deposit commitment applied to the root key.
type Tweak [TweakSize]byte

// ComputeTweak commits to aux || 0x00 || chainID || tokenAddress || toAddress.
// Both addresses must have the ecosystem's exact length.
func ComputeTweak(eco chain.Ecosystem, chainID chain.ChainID, toAddress, tokenAddress []byte, aux AuxData) (Tweak, error) {
	want := eco.AddressLength()
	if want == 0 {
		return Tweak{}, fmt.Errorf("%w: unsupported blockchain type %q", ErrUnsupportedChain, eco)
	}
	if len(tokenAddress) != want {
		return Tweak{}, &LengthError{Field: "TokenAddress", Got: len(tokenAddress), Expected: want, Err: ErrInvalidAddressLength}
	}
	if len(toAddress) != want {
		return Tweak{}, &LengthError{Field: "ToAddress", Got: len(toAddress), Expected: want, Err: ErrInvalidAddressLength}
	}

	return Tweak(TaggedHash(TagDepositAddr,
		aux[:],
		[]byte{DeprecatedChainTag},
		chainID[:],
		tokenAddress,
		toAddress,
	)), nil
}
