// Package deposit derives deterministic Bitcoin P2WPKH deposit addresses by
// tweaking a root public key with a commitment to the deposit's destination.
//
// The pipeline is strictly sequential:
//
//	aux   = TaggedHash("LombardDepositAux",  version || nonce || referral)
//	tweak = TaggedHash("LombardDepositAddr", aux || 0x00 || chainID || token || to)
//	k     = TaggedHash("SegwitTweak",        rootKey || tweak)
//	addr  = P2WPKH(HASH160(rootKey + k*G))
//
// Every function here is pure and safe for concurrent use.
package deposit

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Tags used for domain separation.
const (
	TagDepositAux  = "LombardDepositAux"
	TagDepositAddr = "LombardDepositAddr"
	TagSegwitTweak = "SegwitTweak"
)

// TaggedHash computes SHA256(SHA256(tag) || SHA256(tag) || msgs...).
func TaggedHash(tag string, msgs ...[]byte) [32]byte {
	return *chainhash.TaggedHash([]byte(tag), msgs...)
}
