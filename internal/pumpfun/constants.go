// Package pumpfun encodes the bonding-curve launch platform's instructions and
// derives its program addresses. Everything here is pure: no RPC, no clocks.
package pumpfun

import solanago "github.com/gagliardetto/solana-go"

// Platform accounts.
var (
	// ProgramID is the pump.fun bonding-curve program.
	ProgramID = solanago.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	// GlobalAccount holds the platform's global configuration.
	GlobalAccount = solanago.MustPublicKeyFromBase58("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	// FeeRecipient receives trade fees.
	FeeRecipient = solanago.MustPublicKeyFromBase58("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM")
	// EventAuthority signs the program's self-CPI event logs.
	EventAuthority = solanago.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
	// MintAuthority is the program-owned mint authority for launched assets.
	MintAuthority = solanago.MustPublicKeyFromBase58("TSLvdd1pWpHVjahSpsvCXUbgwsL3JAcvokwaKt1eokM")
	// MetadataProgramID is the Metaplex token metadata program.
	MetadataProgramID = solanago.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	// TokenProgramID is the SPL token program.
	TokenProgramID = solanago.TokenProgramID
	// AssociatedTokenProgramID is the SPL associated token account program.
	AssociatedTokenProgramID = solanago.SPLAssociatedTokenAccountProgramID
)

// Instruction discriminators (first 8 bytes of sha256("global:<name>")).
var (
	CreateDiscriminator = [8]byte{24, 30, 200, 40, 5, 28, 7, 119}
	BuyDiscriminator    = [8]byte{102, 6, 61, 18, 1, 218, 235, 234}
	SellDiscriminator   = [8]byte{51, 230, 133, 164, 1, 30, 0, 201}
)

// PDA seeds.
const (
	BondingCurveSeed = "bonding-curve"
	MetadataSeed     = "metadata"
)

// Platform limits.
const (
	MaxNameLen   = 32
	MaxSymbolLen = 10
	MaxURILen    = 200

	// MaxSlippageBps is 100%.
	MaxSlippageBps = 10_000

	// TokenAccountSize is the SPL token account data length, used for the
	// rent-exemption query that sizes the funding gate.
	TokenAccountSize = 165

	// MaxTransactionSize is the network's hard packet limit.
	MaxTransactionSize = 1232
)
