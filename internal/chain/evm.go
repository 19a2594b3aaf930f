package chain

func init() {
	// ==========================================================================
	// Ethereum
	// ==========================================================================

	Register(&Params{
		Name:        "ethereum",
		DisplayName: "Ethereum",
		Ecosystem:   EcosystemEVM,
		ChainID:     mustChainID("0000000000000000000000000000000000000000000000000000000000000001"),
	})

	// ==========================================================================
	// Base
	// ==========================================================================

	Register(&Params{
		Name:        "base",
		DisplayName: "Base",
		Ecosystem:   EcosystemEVM,
		ChainID:     mustChainID("0000000000000000000000000000000000000000000000000000000000002105"),
	})

	// ==========================================================================
	// BNB Smart Chain (BSC)
	// ==========================================================================

	Register(&Params{
		Name:        "bsc",
		DisplayName: "BNB Smart Chain",
		Ecosystem:   EcosystemEVM,
		ChainID:     mustChainID("0000000000000000000000000000000000000000000000000000000000000038"),
	})

	// ==========================================================================
	// Sonic
	// ==========================================================================

	Register(&Params{
		Name:        "sonic",
		DisplayName: "Sonic",
		Ecosystem:   EcosystemEVM,
		ChainID:     mustChainID("0000000000000000000000000000000000000000000000000000000000000092"),
	})

	// ==========================================================================
	// Ink
	// ==========================================================================

	Register(&Params{
		Name:        "ink",
		DisplayName: "Ink",
		Ecosystem:   EcosystemEVM,
		ChainID:     mustChainID("000000000000000000000000000000000000000000000000000000000000def1"),
	})

	// ==========================================================================
	// Katana
	// ==========================================================================

	Register(&Params{
		Name:        "katana",
		DisplayName: "Katana",
		Ecosystem:   EcosystemEVM,
		ChainID:     mustChainID("00000000000000000000000000000000000000000000000000000000000b67d2"),
	})
}
