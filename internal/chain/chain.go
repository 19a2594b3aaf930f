// Package chain defines the destination chains LBTC deposits can be minted
// on and the Bitcoin networks deposit addresses live on.
// All chain-specific values are hardcoded here - no external configuration needed.
package chain

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/klingon-exchange/depositaddr/pkg/helpers"
)

// RegistryVersion identifies the revision of the chain table below.
// Bump it whenever a chain id, label or default token changes.
const RegistryVersion = 4

// Ecosystem represents a family of destination chains sharing an address
// encoding.
type Ecosystem string

const (
	EcosystemEVM      Ecosystem = "evm"      // Ethereum and EVM chains
	EcosystemSui      Ecosystem = "sui"      // Sui
	EcosystemSolana   Ecosystem = "solana"   // Solana
	EcosystemStarknet Ecosystem = "starknet" // Starknet
)

// Encoding is the textual encoding used for addresses of an ecosystem.
type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase58 Encoding = "base58"
)

// AddressLength returns the raw address size in bytes, or 0 for an unknown
// ecosystem.
func (e Ecosystem) AddressLength() int {
	switch e {
	case EcosystemEVM:
		return 20
	case EcosystemSui, EcosystemSolana, EcosystemStarknet:
		return 32
	default:
		return 0
	}
}

// Encoding returns how addresses of this ecosystem are written.
func (e Ecosystem) Encoding() Encoding {
	if e == EcosystemSolana {
		return EncodingBase58
	}
	return EncodingHex
}

// CaseSensitive reports whether two textual addresses must match exactly.
// Hex is compared case-insensitively, base58 is not.
func (e Ecosystem) CaseSensitive() bool {
	return e.Encoding() == EncodingBase58
}

// IsValid reports whether e is a known ecosystem.
func (e Ecosystem) IsValid() bool {
	return e.AddressLength() != 0
}

// ChainIDSize is the size of a Lombard chain identifier.
const ChainIDSize = 32

// ChainID is a Lombard-internal, big-endian, zero-padded chain identifier.
// It is not the EIP-155 chain id, even for EVM chains.
type ChainID [ChainIDSize]byte

// String returns the chain id as 0x-prefixed hex.
func (c ChainID) String() string {
	return helpers.BytesToHex(c[:])
}

// ChainIDFromHex parses a 32-byte chain id.
func ChainIDFromHex(s string) (ChainID, error) {
	var id ChainID
	b, err := hex.DecodeString(helpers.TrimHexPrefix(s))
	if err != nil {
		return id, fmt.Errorf("invalid chain id: %w", err)
	}
	if len(b) != ChainIDSize {
		return id, fmt.Errorf("invalid chain id: got %d bytes, want %d", len(b), ChainIDSize)
	}
	copy(id[:], b)
	return id, nil
}

func mustChainID(s string) ChainID {
	id, err := ChainIDFromHex(s)
	if err != nil {
		panic(err)
	}
	return id
}

// LabelPrefix prefixes every destination label used by the Lombard API.
const LabelPrefix = "DESTINATION_BLOCKCHAIN_"

// Params describes a destination chain.
type Params struct {
	Name        string    // ethereum, base, solana, ...
	DisplayName string    // Ethereum, Base, Solana, ...
	Label       string    // DESTINATION_BLOCKCHAIN_ETHEREUM
	Ecosystem   Ecosystem // evm, sui, solana, starknet
	ChainID     ChainID
}

// DefaultToken returns the raw bytes of the chain's stLBTC contract, the
// token used when deposit metadata omits one.
func (p *Params) DefaultToken() ([]byte, error) {
	tok, ok := GetToken(p.Name, TokenStLBTC)
	if !ok {
		return nil, fmt.Errorf("no %s contract registered for %s", TokenStLBTC, p.Name)
	}
	return ParseAddress(p.Ecosystem, tok.Address)
}

var (
	registry = make(map[string]*Params)
	byLabel  = make(map[string]*Params)
)

// Register adds chain params to the registry. It panics on an invalid or
// duplicate entry since the table is static.
func Register(params *Params) {
	if params.Name == "" || !params.Ecosystem.IsValid() {
		panic(fmt.Sprintf("chain: invalid params for %q", params.Name))
	}
	if helpers.IsZeroBytes(params.ChainID[:]) {
		panic(fmt.Sprintf("chain: %s has no chain id", params.Name))
	}
	if params.Label == "" {
		params.Label = LabelPrefix + strings.ToUpper(params.Name)
	}
	if _, dup := registry[params.Name]; dup {
		panic(fmt.Sprintf("chain: %s registered twice", params.Name))
	}
	registry[params.Name] = params
	byLabel[params.Label] = params
}

// Get returns chain params by name. Names are case-insensitive.
func Get(name string) (*Params, bool) {
	params, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return params, ok
}

// GetByLabel returns chain params by API destination label.
func GetByLabel(label string) (*Params, bool) {
	params, ok := byLabel[label]
	return params, ok
}

// List returns all registered chain names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListByEcosystem returns the sorted names of all chains in an ecosystem.
func ListByEcosystem(eco Ecosystem) []string {
	var names []string
	for name, params := range registry {
		if params.Ecosystem == eco {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// All returns all registered chains sorted by name.
func All() []*Params {
	names := List()
	out := make([]*Params, 0, len(names))
	for _, name := range names {
		out = append(out, registry[name])
	}
	return out
}

// IsSupported returns true if the chain is registered.
func IsSupported(name string) bool {
	_, ok := Get(name)
	return ok
}
