package deposit

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxReferralIDSize is the largest referral id committed into aux data.
const MaxReferralIDSize = 256

// Aux data versions.
const (
	AuxVersion0 uint8 = 0
	AuxVersion1 uint8 = 1
)

// AuxData is the 32-byte commitment to a deposit's nonce and referral.
type AuxData [32]byte

// IsSupportedAuxVersion reports whether v can be used to build aux data.
func IsSupportedAuxVersion(v uint8) bool {
	return v == AuxVersion0 || v == AuxVersion1
}

// ComputeAuxData commits to version || nonce (big-endian) || referralID.
func ComputeAuxData(nonce uint32, referralID []byte, version uint8) (AuxData, error) {
	if len(referralID) > MaxReferralIDSize {
		return AuxData{}, fmt.Errorf("%w: Wrong size for referrerId (got %d, want not greater than %d)",
			ErrInvalidInput, len(referralID), MaxReferralIDSize)
	}
	if !IsSupportedAuxVersion(version) {
		return AuxData{}, fmt.Errorf("%w: unsupported aux version %d", ErrInvalidInput, version)
	}

	var hdr [5]byte
	hdr[0] = version
	binary.BigEndian.PutUint32(hdr[1:], nonce)

	return AuxData(TaggedHash(TagDepositAux, hdr[:], referralID)), nil
}

// NonceFromInt64 narrows an externally supplied nonce to uint32. Values
// outside [0, 2^32-1] are rejected rather than truncated.
func NonceFromInt64(n int64) (uint32, error) {
	if n < 0 || n > math.MaxUint32 {
		return 0, fmt.Errorf("%w: nonce %d out of range [0, %d]", ErrInvalidInput, n, uint32(math.MaxUint32))
	}
	return uint32(n), nil
}

// AuxVersionFromInt64 narrows an externally supplied aux version and checks
// that it is supported.
func AuxVersionFromInt64(n int64) (uint8, error) {
	if n < 0 || n > math.MaxUint8 || !IsSupportedAuxVersion(uint8(n)) {
		return 0, fmt.Errorf("%w: unsupported aux version %d", ErrInvalidInput, n)
	}
	return uint8(n), nil
}
