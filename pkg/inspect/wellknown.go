package inspect

// Well-known program and mint addresses.
const (
	SystemProgram          = "11111111111111111111111111111111"
	TokenProgram           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022Program       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	ComputeBudgetProgram   = "ComputeBudget111111111111111111111111111111"
	MemoV1Program          = "Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo"
	MemoProgram            = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
	StakeProgram           = "Stake11111111111111111111111111111111111111"
	VoteProgram            = "Vote111111111111111111111111111111111111111"
	BPFLoaderUpgradeable   = "BPFLoaderUpgradeab1e11111111111111111111111"
	TokenMetadataProgram   = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	RaydiumV4Program       = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	RaydiumCLMMProgram     = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	PumpFunProgram         = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	MeteoraDLMMProgram     = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"

	WrappedSolMint = "So11111111111111111111111111111111111111112"
	UsdcMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// LamportsPerSol is the number of base units in one SOL.
const LamportsPerSol = 1_000_000_000

// KnownProgramNames maps well-known program addresses to display names.
// These are programs we recognize but do not necessarily decode.
func KnownProgramNames() map[string]string {
	return map[string]string{
		SystemProgram:          "System Program",
		TokenProgram:           "Token Program",
		Token2022Program:       "Token-2022 Program",
		AssociatedTokenProgram: "Associated Token Program",
		ComputeBudgetProgram:   "Compute Budget Program",
		MemoV1Program:          "Memo Program (v1)",
		MemoProgram:            "Memo Program",
		StakeProgram:           "Stake Program",
		VoteProgram:            "Vote Program",
		BPFLoaderUpgradeable:   "BPF Upgradeable Loader",
		TokenMetadataProgram:   "Token Metadata Program",
		RaydiumV4Program:       "Raydium AMM v4",
		RaydiumCLMMProgram:     "Raydium CLMM",
		PumpFunProgram:         "Pump.fun",
		MeteoraDLMMProgram:     "Meteora DLMM",
	}
}

// KnownMintDecimals returns decimals for a handful of ubiquitous mints so
// callers get humanized amounts without supplying anything.
func KnownMintDecimals() map[string]uint8 {
	return map[string]uint8{
		WrappedSolMint: 9,
		UsdcMint:       6,
	}
}
