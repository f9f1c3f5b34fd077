// internal/classifier/programs.go
package classifier

import "github.com/rovshanmuradov/launch-sniper/internal/domain"

// Program IDs with launch semantics.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	PumpFunProgramID   = "6EF8rrecthR5DkZJ4z6t18L9DXGf4C27YRTb261MCHy7"
	PumpSwapProgramID  = "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"
	RaydiumAMMv4ID     = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	OrcaWhirlpoolID    = "whirLbMi2YvthazScyuB38Ns3YiS9Ko21sMcBnAnFJi"
)

// Mints never reported as launched assets.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// DefaultExcludedMints are quote assets.
var DefaultExcludedMints = []string{WrappedSOLMint, USDCMint, USDTMint}

// LaunchPrograms are scanned when program-level watching is enabled.
var LaunchPrograms = []string{RaydiumAMMv4ID, PumpFunProgramID, OrcaWhirlpoolID, PumpSwapProgramID}

// MatchMode selects how a marker text is compared with a log line.
type MatchMode int

const (
	MatchExact MatchMode = iota
	MatchPrefix
	MatchContains
)

// Marker is a log line emitted by a program when it runs a launch instruction.
type Marker struct {
	Program string
	Text    string
	Mode    MatchMode
	Kind    domain.DetectionKind
}

// DefaultMarkers covers token mint creation and the supported AMM/launchpad pool inits.
var DefaultMarkers = []Marker{
	{Program: TokenProgramID, Text: "Program log: Instruction: InitializeMint", Mode: MatchPrefix, Kind: domain.DetectionMintCreated},
	{Program: Token2022ProgramID, Text: "Program log: Instruction: InitializeMint", Mode: MatchPrefix, Kind: domain.DetectionMintCreated},
	{Program: PumpFunProgramID, Text: "Program log: Instruction: Create", Mode: MatchExact, Kind: domain.DetectionMintCreated},
	{Program: RaydiumAMMv4ID, Text: "initialize2", Mode: MatchContains, Kind: domain.DetectionPoolInitialized},
	{Program: RaydiumAMMv4ID, Text: "InitializeInstruction2", Mode: MatchContains, Kind: domain.DetectionPoolInitialized},
	{Program: OrcaWhirlpoolID, Text: "Program log: Instruction: InitializePool", Mode: MatchPrefix, Kind: domain.DetectionPoolInitialized},
	{Program: PumpSwapProgramID, Text: "Program log: Instruction: CreatePool", Mode: MatchExact, Kind: domain.DetectionPoolInitialized},
}
