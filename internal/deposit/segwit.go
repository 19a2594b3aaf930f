package deposit

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// SegwitAddress encodes a compressed public key as a native P2WPKH address
// (bc1q... on mainnet, tb1q... on signet).
func SegwitAddress(pubKey []byte, params *chaincfg.Params) (string, error) {
	if params == nil {
		return "", fmt.Errorf("%w: missing network params", ErrInvalidInput)
	}
	if len(pubKey) != btcec.PubKeyBytesLenCompressed {
		return "", fmt.Errorf("%w: got %d bytes, expected %d byte compressed key",
			ErrInvalidPublicKey, len(pubKey), btcec.PubKeyBytesLenCompressed)
	}

	pubKeyHash := btcutil.Hash160(pubKey)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, params)
	if err != nil {
		return "", fmt.Errorf("failed to create P2WPKH address: %w", err)
	}
	return addr.EncodeAddress(), nil
}
