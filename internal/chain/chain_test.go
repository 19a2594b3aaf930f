package chain

import (
	"strings"
	"testing"
)

func TestAllChainsRegistered(t *testing.T) {
	expectedChains := []string{"ethereum", "base", "bsc", "sui", "sonic", "ink", "solana", "katana"}

	for _, name := range expectedChains {
		if !IsSupported(name) {
			t.Errorf("expected %s to be registered", name)
		}
	}

	if got := len(List()); got != len(expectedChains) {
		t.Errorf("List() has %d chains, want %d", got, len(expectedChains))
	}
}

func TestEthereum(t *testing.T) {
	params, ok := Get("ethereum")
	if !ok {
		t.Fatal("ethereum should be registered")
	}

	if params.Label != "DESTINATION_BLOCKCHAIN_ETHEREUM" {
		t.Errorf("Label = %s, want DESTINATION_BLOCKCHAIN_ETHEREUM", params.Label)
	}
	if params.Ecosystem != EcosystemEVM {
		t.Errorf("Ecosystem = %s, want evm", params.Ecosystem)
	}
	want := "0x0000000000000000000000000000000000000000000000000000000000000001"
	if params.ChainID.String() != want {
		t.Errorf("ChainID = %s, want %s", params.ChainID, want)
	}
}

func TestChainIDs(t *testing.T) {
	tests := []struct {
		name string
		id   string
		eco  Ecosystem
	}{
		{"base", "0000000000000000000000000000000000000000000000000000000000002105", EcosystemEVM},
		{"bsc", "0000000000000000000000000000000000000000000000000000000000000038", EcosystemEVM},
		{"sui", "0100000000000000000000000000000000000000000000000000000035834a8a", EcosystemSui},
		{"sonic", "0000000000000000000000000000000000000000000000000000000000000092", EcosystemEVM},
		{"ink", "000000000000000000000000000000000000000000000000000000000000def1", EcosystemEVM},
		{"solana", "02296998a6f8e2a784db5d9f95e18fc23f70441a1039446801089879b08c7ef0", EcosystemSolana},
		{"katana", "00000000000000000000000000000000000000000000000000000000000b67d2", EcosystemEVM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, ok := Get(tt.name)
			if !ok {
				t.Fatalf("%s not registered", tt.name)
			}
			if got := strings.TrimPrefix(params.ChainID.String(), "0x"); got != tt.id {
				t.Errorf("ChainID = %s, want %s", got, tt.id)
			}
			if params.Ecosystem != tt.eco {
				t.Errorf("Ecosystem = %s, want %s", params.Ecosystem, tt.eco)
			}
			if params.Label != LabelPrefix+strings.ToUpper(tt.name) {
				t.Errorf("Label = %s", params.Label)
			}
		})
	}
}

func TestGetIsCaseInsensitive(t *testing.T) {
	if _, ok := Get("Ethereum"); !ok {
		t.Error("Get(Ethereum) should find ethereum")
	}
	if _, ok := Get("starknet"); ok {
		t.Error("starknet has no registered chain id")
	}
	if _, ok := Get("dogecoin"); ok {
		t.Error("dogecoin should not be registered")
	}
}

func TestGetByLabel(t *testing.T) {
	params, ok := GetByLabel("DESTINATION_BLOCKCHAIN_SOLANA")
	if !ok {
		t.Fatal("solana label not found")
	}
	if params.Name != "solana" {
		t.Errorf("Name = %s, want solana", params.Name)
	}
	if _, ok := GetByLabel("DESTINATION_BLOCKCHAIN_NOPE"); ok {
		t.Error("unexpected label match")
	}
}

func TestListByEcosystem(t *testing.T) {
	evm := ListByEcosystem(EcosystemEVM)
	want := []string{"base", "bsc", "ethereum", "ink", "katana", "sonic"}
	if strings.Join(evm, ",") != strings.Join(want, ",") {
		t.Errorf("ListByEcosystem(evm) = %v, want %v", evm, want)
	}
	if got := ListByEcosystem(EcosystemStarknet); len(got) != 0 {
		t.Errorf("ListByEcosystem(starknet) = %v, want none", got)
	}
}

func TestEcosystemAddressLength(t *testing.T) {
	tests := []struct {
		eco  Ecosystem
		want int
	}{
		{EcosystemEVM, 20},
		{EcosystemSui, 32},
		{EcosystemSolana, 32},
		{EcosystemStarknet, 32},
		{Ecosystem("cosmos"), 0},
	}

	for _, tt := range tests {
		if got := tt.eco.AddressLength(); got != tt.want {
			t.Errorf("%s.AddressLength() = %d, want %d", tt.eco, got, tt.want)
		}
	}

	if !EcosystemSolana.CaseSensitive() {
		t.Error("solana addresses are case-sensitive")
	}
	if EcosystemEVM.CaseSensitive() || EcosystemSui.CaseSensitive() {
		t.Error("hex addresses are case-insensitive")
	}
}

func TestDefaultTokens(t *testing.T) {
	for _, params := range All() {
		tok, err := params.DefaultToken()
		if err != nil {
			t.Errorf("%s: DefaultToken failed: %v", params.Name, err)
			continue
		}
		if len(tok) != params.Ecosystem.AddressLength() {
			t.Errorf("%s: default token is %d bytes, want %d", params.Name, len(tok), params.Ecosystem.AddressLength())
		}
	}
}

func TestKatanaTokens(t *testing.T) {
	tokens := ListTokens("katana")
	if len(tokens) != 2 {
		t.Fatalf("katana has %d tokens, want 2", len(tokens))
	}
	lbtc, ok := GetToken("katana", TokenLBTC)
	if !ok {
		t.Fatal("katana LBTC not registered")
	}
	if lbtc.Address != "B0F70C0bD6FD87dbEb7C10dC692a2a6106817072" {
		t.Errorf("LBTC address = %s", lbtc.Address)
	}
	if _, ok := GetToken("ethereum", TokenLBTC); ok {
		t.Error("ethereum has no LBTC entry")
	}
}

func TestChainIDFromHex(t *testing.T) {
	if _, err := ChainIDFromHex("0x01"); err == nil {
		t.Error("short chain id should fail")
	}
	if _, err := ChainIDFromHex("zz"); err == nil {
		t.Error("non-hex chain id should fail")
	}
	id, err := ChainIDFromHex("0x0000000000000000000000000000000000000000000000000000000000002105")
	if err != nil {
		t.Fatalf("ChainIDFromHex failed: %v", err)
	}
	if id[30] != 0x21 || id[31] != 0x05 {
		t.Errorf("chain id bytes = %x", id)
	}
}

func TestNetworks(t *testing.T) {
	tests := []struct {
		in      string
		want    Network
		hrp     string
		wantErr bool
	}{
		{"mainnet", Mainnet, "bc", false},
		{"", Mainnet, "bc", false},
		{"signet", Signet, "tb", false},
		{"gastald", Signet, "tb", false},
		{"regtest", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, err := ParseNetwork(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != tt.want {
				t.Errorf("ParseNetwork(%q) = %s, want %s", tt.in, n, tt.want)
			}
			params, err := GetNetwork(n)
			if err != nil {
				t.Fatalf("GetNetwork failed: %v", err)
			}
			if params.Bech32HRP != tt.hrp || params.ChainParams.Bech32HRPSegwit != tt.hrp {
				t.Errorf("HRP = %s/%s, want %s", params.Bech32HRP, params.ChainParams.Bech32HRPSegwit, tt.hrp)
			}
		})
	}

	if _, err := GetNetwork("regtest"); err == nil {
		t.Error("GetNetwork(regtest) should fail")
	}
}
