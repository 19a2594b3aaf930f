package chain

import "sort"

// Token symbols.
const (
	TokenStLBTC = "stLBTC"
	TokenLBTC   = "LBTC"
)

// TokenInfo describes a Lombard token contract on a destination chain.
type TokenInfo struct {
	Symbol  string // stLBTC or LBTC
	Chain   string // registry chain name
	Address string // contract address as the ecosystem writes it (hex or base58 mint)
}

// tokenRegistry maps chain name -> symbol -> TokenInfo
var tokenRegistry = make(map[string]map[string]*TokenInfo)

func init() {
	// ==========================================================================
	// EVM
	// ==========================================================================
	registerToken("ethereum", TokenStLBTC, "8236a87084f8B84306f72007F36F2618A5634494")
	registerToken("base", TokenStLBTC, "ecAc9C5F704e954931349Da37F60E39f515c11c1")
	registerToken("bsc", TokenStLBTC, "ecAc9C5F704e954931349Da37F60E39f515c11c1")
	registerToken("sonic", TokenStLBTC, "ecAc9C5F704e954931349Da37F60E39f515c11c1")
	registerToken("ink", TokenStLBTC, "ecAc9C5F704e954931349Da37F60E39f515c11c1")
	registerToken("katana", TokenStLBTC, "ecAc9C5F704e954931349Da37F60E39f515c11c1")
	registerToken("katana", TokenLBTC, "B0F70C0bD6FD87dbEb7C10dC692a2a6106817072")

	// ==========================================================================
	// Sui
	// ==========================================================================
	registerToken("sui", TokenStLBTC, "3e8e9423d80e1774a7ca128fccd8bf5f1f7753be658c5e645929037f7c819040")

	// ==========================================================================
	// Solana (mint address)
	// ==========================================================================
	registerToken("solana", TokenStLBTC, "LomP48F7bLbKyMRHHsDVt7wuHaUQvQnVVspjcbfuAek")
}

func registerToken(chainName, symbol, address string) {
	if tokenRegistry[chainName] == nil {
		tokenRegistry[chainName] = make(map[string]*TokenInfo)
	}
	tokenRegistry[chainName][symbol] = &TokenInfo{
		Symbol:  symbol,
		Chain:   chainName,
		Address: address,
	}
}

// GetToken returns token info for a chain and symbol.
func GetToken(chainName, symbol string) (*TokenInfo, bool) {
	tokens, ok := tokenRegistry[chainName]
	if !ok {
		return nil, false
	}
	tok, ok := tokens[symbol]
	return tok, ok
}

// ListTokens returns all tokens registered for a chain, sorted by symbol.
func ListTokens(chainName string) []*TokenInfo {
	tokens := tokenRegistry[chainName]
	out := make([]*TokenInfo, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
