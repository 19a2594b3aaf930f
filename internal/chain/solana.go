package chain

func init() {
	// Solana Mainnet. Deposits are credited to the wallet's associated token
	// account, so the "to" address used in derivation is the ATA, not the wallet.
	Register(&Params{
		Name:        "solana",
		DisplayName: "Solana",
		Ecosystem:   EcosystemSolana,
		ChainID:     mustChainID("02296998a6f8e2a784db5d9f95e18fc23f70441a1039446801089879b08c7ef0"),
	})
}
