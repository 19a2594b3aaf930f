package chain

func init() {
	Register(&Params{
		Name:        "sui",
		DisplayName: "Sui",
		Ecosystem:   EcosystemSui,
		ChainID:     mustChainID("0100000000000000000000000000000000000000000000000000000035834a8a"),
	})
}
