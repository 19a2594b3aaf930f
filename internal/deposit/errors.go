package deposit

import (
	"errors"
	"fmt"
)

// Derivation and verification errors. Every failure returned by this package
// wraps exactly one of these, so callers can use errors.Is.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidAddressLength = errors.New("invalid address length")
	ErrInvalidTweakLength   = errors.New("invalid tweak length")
	ErrInvalidPublicKey     = errors.New("invalid public key")
	ErrUnsupportedChain     = errors.New("unsupported chain")
	ErrDerivationFailure    = errors.New("derivation failure")
	ErrVerificationMismatch = errors.New("verification mismatch")
)

// LengthError reports a byte field of the wrong size.
type LengthError struct {
	Field    string // TokenAddress, ToAddress, tweak, ...
	Got      int
	Expected int
	Err      error // sentinel this error unwraps to
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("Bad %s (got %d bytes, expected %d)", e.Field, e.Got, e.Expected)
}

func (e *LengthError) Unwrap() error {
	return e.Err
}

// MismatchError reports a value returned by a metadata source that does not
// match what the caller asked for or what was recomputed locally.
type MismatchError struct {
	Field    string // to_address, to_blockchain, btc_address
	Expected string
	Got      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("API returned mismatched %s: expected %s, got %s", e.Field, e.Expected, e.Got)
}

func (e *MismatchError) Unwrap() error {
	return ErrVerificationMismatch
}
