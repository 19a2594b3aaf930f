package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network is the Bitcoin network deposit addresses are issued on.
type Network string

const (
	Mainnet Network = "mainnet"
	Signet  Network = "signet" // Lombard's "gastald" testnet
)

// ErrUnknownNetwork is returned for a network name that is not configured.
var ErrUnknownNetwork = errors.New("unknown network")

// NetworkParams contains the parameters deposit derivation needs per network.
type NetworkParams struct {
	Network   Network
	Name      string
	Bech32HRP string

	// RootPublicKey is the compressed secp256k1 key all deposit addresses on
	// this network are tweaked from.
	RootPublicKey string

	// ChainParams is handed to btcutil for address encoding.
	ChainParams *chaincfg.Params
}

var networks = map[Network]*NetworkParams{
	Mainnet: {
		Network:       Mainnet,
		Name:          "Bitcoin",
		Bech32HRP:     "bc",
		RootPublicKey: "033dcf7a68429b23a0396ca61c1ab243ccbbcc629ff04c59394458d6db5dd2bb15",
		ChainParams:   &chaincfg.MainNetParams,
	},
	Signet: {
		Network:       Signet,
		Name:          "Bitcoin Signet",
		Bech32HRP:     "tb",
		RootPublicKey: "025615e9748b945bad807b56d3a723578673d08566a4818510c0ba2123317414f8",
		ChainParams:   &chaincfg.SigNetParams,
	},
}

// ParseNetwork maps a user supplied name onto a Network. "gastald" and
// "testnet" are accepted as aliases for signet.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "bitcoin", "":
		return Mainnet, nil
	case "signet", "gastald", "testnet":
		return Signet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
	}
}

// GetNetwork returns the parameters of a network.
func GetNetwork(n Network) (*NetworkParams, error) {
	params, ok := networks[n]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, n)
	}
	return params, nil
}
