package deposit

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Tweaker derives child public keys from a validated root public key.
// It holds no mutable state and is safe for concurrent use.
type Tweaker struct {
	pubKey *btcec.PublicKey
	raw    []byte
}

// NewTweaker parses and validates a 33-byte compressed secp256k1 key.
func NewTweaker(pubKey []byte) (*Tweaker, error) {
	if len(pubKey) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d byte compressed key",
			ErrInvalidPublicKey, len(pubKey), btcec.PubKeyBytesLenCompressed)
	}
	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return &Tweaker{pubKey: key, raw: key.SerializeCompressed()}, nil
}

// PublicKey returns the compressed root public key.
func (t *Tweaker) PublicKey() []byte {
	out := make([]byte, len(t.raw))
	copy(out, t.raw)
	return out
}

// DerivePubKey returns rootKey + TaggedHash("SegwitTweak", rootKey || tweak)*G.
func (t *Tweaker) DerivePubKey(tweak []byte) (*btcec.PublicKey, error) {
	if len(tweak) != TweakSize {
		return nil, &LengthError{Field: "tweak", Got: len(tweak), Expected: TweakSize, Err: ErrInvalidTweakLength}
	}

	h := TaggedHash(TagSegwitTweak, t.raw, tweak)

	var k secp.ModNScalar
	if overflow := k.SetByteSlice(h[:]); overflow {
		return nil, fmt.Errorf("%w: tweak scalar exceeds curve order", ErrDerivationFailure)
	}
	if k.IsZero() {
		return nil, fmt.Errorf("%w: zero tweak scalar", ErrDerivationFailure)
	}

	var (
		pubKeyJacobian secp.JacobianPoint
		tweakJacobian  secp.JacobianPoint
		resultJacobian secp.JacobianPoint
	)
	secp.ScalarBaseMultNonConst(&k, &tweakJacobian)
	t.pubKey.AsJacobian(&pubKeyJacobian)
	secp.AddNonConst(&pubKeyJacobian, &tweakJacobian, &resultJacobian)

	if (resultJacobian.X.IsZero() && resultJacobian.Y.IsZero()) || resultJacobian.Z.IsZero() {
		return nil, fmt.Errorf("%w: tweaked key is the point at infinity", ErrDerivationFailure)
	}

	resultJacobian.ToAffine()
	return secp.NewPublicKey(&resultJacobian.X, &resultJacobian.Y), nil
}

// SegwitDerivation is a tweaked key together with its address.
type SegwitDerivation struct {
	Address   string
	PublicKey []byte // compressed
}

// DeriveSegwit tweaks the root key and encodes the result as P2WPKH.
func (t *Tweaker) DeriveSegwit(tweak []byte, params *chaincfg.Params) (*SegwitDerivation, error) {
	key, err := t.DerivePubKey(tweak)
	if err != nil {
		return nil, err
	}
	compressed := key.SerializeCompressed()

	addr, err := SegwitAddress(compressed, params)
	if err != nil {
		return nil, err
	}
	return &SegwitDerivation{Address: addr, PublicKey: compressed}, nil
}

// TweakPublicKey is a one-shot form of NewTweaker followed by DerivePubKey.
// It returns the 33-byte compressed tweaked key.
func TweakPublicKey(pubKey, tweak []byte) ([]byte, error) {
	t, err := NewTweaker(pubKey)
	if err != nil {
		return nil, err
	}
	key, err := t.DerivePubKey(tweak)
	if err != nil {
		return nil, err
	}
	return key.SerializeCompressed(), nil
}
