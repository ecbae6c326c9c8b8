package domain

import solanago "github.com/gagliardetto/solana-go"

// AssetMetadata is what the metadata collaborator returns.
type AssetMetadata struct {
	Name        string
	Symbol      string
	MetadataURI string
}

// AssetLaunch describes the asset created in one cycle. Immutable once built.
type AssetLaunch struct {
	Mint                   solanago.PublicKey
	Name                   string
	Symbol                 string
	MetadataURI            string
	BondingCurve           solanago.PublicKey
	AssociatedBondingCurve solanago.PublicKey
	MetadataAccount        solanago.PublicKey
	Creator                solanago.PublicKey
	CreatorTokenAccount    solanago.PublicKey
}
