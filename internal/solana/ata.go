// Package solana resolves associated token accounts offline.
//
// Lombard credits Solana deposits to the associated token account (ATA) of
// the user's wallet for the token mint, so deposit derivation commits to the
// ATA rather than the wallet address.
package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/klingon-exchange/depositaddr/pkg/helpers"
)

// Well-known program ids.
const (
	TokenProgramID                  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID              = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenAccountProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

const (
	// PublicKeySize is the size of a Solana account address.
	PublicKeySize = 32

	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

var (
	ErrInvalidSeeds = errors.New("invalid seeds")
	ErrOnCurve      = errors.New("address is on the ed25519 curve")
	ErrNoBump       = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress computes sha256(seeds || programID || marker) and
// rejects results that are valid ed25519 points.
func CreateProgramAddress(seeds [][]byte, programID []byte) ([]byte, error) {
	if len(seeds) > maxSeeds {
		return nil, fmt.Errorf("%w: %d seeds, max %d", ErrInvalidSeeds, len(seeds), maxSeeds)
	}
	if len(programID) != PublicKeySize {
		return nil, fmt.Errorf("%w: program id is %d bytes", ErrInvalidSeeds, len(programID))
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return nil, fmt.Errorf("%w: seed of %d bytes, max %d", ErrInvalidSeeds, len(seed), maxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(programID)
	h.Write([]byte(pdaMarker))
	sum := h.Sum(nil)

	if IsOnCurve(sum) {
		return nil, ErrOnCurve
	}
	return sum, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// off-curve address.
func FindProgramAddress(seeds [][]byte, programID []byte) ([]byte, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		return addr, uint8(bump), nil
	}
	return nil, 0, ErrNoBump
}

// IsOnCurve reports whether b decodes to an ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != PublicKeySize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// FindAssociatedTokenAddress returns the ATA of wallet for mint under the
// given token program.
func FindAssociatedTokenAddress(wallet, mint, tokenProgram []byte) ([]byte, error) {
	if len(tokenProgram) != PublicKeySize {
		return nil, fmt.Errorf("token program is %d bytes, expected %d", len(tokenProgram), PublicKeySize)
	}
	ata, err := decodeKey(AssociatedTokenAccountProgramID)
	if err != nil {
		return nil, err
	}
	r := &Resolver{tokenProgram: tokenProgram, ataProgram: ata}
	return r.AssociatedTokenAddress(wallet, mint)
}

// Resolver derives associated token accounts for a fixed token program.
type Resolver struct {
	tokenProgram []byte
	ataProgram   []byte
}

// NewResolver returns a resolver for the given base58 token program id.
// An empty id selects the SPL Token program.
func NewResolver(tokenProgram string) (*Resolver, error) {
	if tokenProgram == "" {
		tokenProgram = TokenProgramID
	}
	tp, err := decodeKey(tokenProgram)
	if err != nil {
		return nil, fmt.Errorf("token program: %w", err)
	}
	ata, err := decodeKey(AssociatedTokenAccountProgramID)
	if err != nil {
		return nil, fmt.Errorf("associated token program: %w", err)
	}
	return &Resolver{tokenProgram: tp, ataProgram: ata}, nil
}

// TokenProgram returns the base58 token program id.
func (r *Resolver) TokenProgram() string {
	return helpers.BytesToBase58(r.tokenProgram)
}

// AssociatedTokenAddress returns the ATA of wallet for mint.
func (r *Resolver) AssociatedTokenAddress(wallet, mint []byte) ([]byte, error) {
	if len(wallet) != PublicKeySize {
		return nil, fmt.Errorf("wallet is %d bytes, expected %d", len(wallet), PublicKeySize)
	}
	if len(mint) != PublicKeySize {
		return nil, fmt.Errorf("mint is %d bytes, expected %d", len(mint), PublicKeySize)
	}
	addr, _, err := FindProgramAddress([][]byte{wallet, r.tokenProgram, mint}, r.ataProgram)
	if err != nil {
		return nil, fmt.Errorf("find associated token address: %w", err)
	}
	return addr, nil
}

func decodeKey(s string) ([]byte, error) {
	b, err := helpers.Base58ToBytes(s)
	if err != nil {
		return nil, err
	}
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("%s is %d bytes, expected %d", s, len(b), PublicKeySize)
	}
	return b, nil
}
