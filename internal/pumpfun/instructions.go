package pumpfun

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"

	"pump-cycle-bot/internal/domain"
)

// NewAssetLaunch derives every address the launch needs for mint and creator.
func NewAssetLaunch(mint, creator solanago.PublicKey, md domain.AssetMetadata) (*domain.AssetLaunch, error) {
	if err := ValidateMetadata(md.Name, md.Symbol, md.MetadataURI); err != nil {
		return nil, err
	}

	curve, err := DeriveBondingCurveAddress(mint)
	if err != nil {
		return nil, err
	}
	curveATA, err := DeriveAssociatedAccountAddress(curve, mint)
	if err != nil {
		return nil, err
	}
	metadata, err := DeriveMetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	creatorATA, err := DeriveAssociatedAccountAddress(creator, mint)
	if err != nil {
		return nil, err
	}

	return &domain.AssetLaunch{
		Mint:                   mint,
		Name:                   md.Name,
		Symbol:                 md.Symbol,
		MetadataURI:            md.MetadataURI,
		BondingCurve:           curve,
		AssociatedBondingCurve: curveATA,
		MetadataAccount:        metadata,
		Creator:                creator,
		CreatorTokenAccount:    creatorATA,
	}, nil
}

// CreateInstruction builds the platform create instruction. The mint and the
// creator both sign.
func CreateInstruction(l *domain.AssetLaunch) (solanago.Instruction, error) {
	data, err := EncodeCreateInstruction(l.Name, l.Symbol, l.MetadataURI, l.Creator)
	if err != nil {
		return nil, fmt.Errorf("encode create: %w", err)
	}

	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(l.Mint, true, true),
		solanago.NewAccountMeta(MintAuthority, false, false),
		solanago.NewAccountMeta(l.BondingCurve, true, false),
		solanago.NewAccountMeta(l.AssociatedBondingCurve, true, false),
		solanago.NewAccountMeta(GlobalAccount, false, false),
		solanago.NewAccountMeta(MetadataProgramID, false, false),
		solanago.NewAccountMeta(l.MetadataAccount, true, false),
		solanago.NewAccountMeta(l.Creator, true, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
		solanago.NewAccountMeta(TokenProgramID, false, false),
		solanago.NewAccountMeta(AssociatedTokenProgramID, false, false),
		solanago.NewAccountMeta(solanago.SysVarRentPubkey, false, false),
		solanago.NewAccountMeta(EventAuthority, false, false),
		solanago.NewAccountMeta(ProgramID, false, false),
	}
	return solanago.NewInstruction(ProgramID, accounts, data), nil
}

// CreateTokenAccountInstruction creates owner's associated token account for
// the launch mint, paid by payer.
func CreateTokenAccountInstruction(payer, owner, mint solanago.PublicKey) solanago.Instruction {
	return associatedtokenaccount.NewCreateInstruction(payer, owner, mint).Build()
}

// BuyInstruction builds a buy of amount with the slippage bound from EncodeBuyInstruction.
func BuyInstruction(l *domain.AssetLaunch, buyer solanago.PublicKey, amount uint64, slippageBps uint16) (solanago.Instruction, error) {
	data, err := EncodeBuyInstruction(amount, slippageBps)
	if err != nil {
		return nil, fmt.Errorf("encode buy: %w", err)
	}
	buyerATA, err := DeriveAssociatedAccountAddress(buyer, l.Mint)
	if err != nil {
		return nil, err
	}

	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(GlobalAccount, false, false),
		solanago.NewAccountMeta(FeeRecipient, true, false),
		solanago.NewAccountMeta(l.Mint, false, false),
		solanago.NewAccountMeta(l.BondingCurve, true, false),
		solanago.NewAccountMeta(l.AssociatedBondingCurve, true, false),
		solanago.NewAccountMeta(buyerATA, true, false),
		solanago.NewAccountMeta(buyer, true, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
		solanago.NewAccountMeta(TokenProgramID, false, false),
		solanago.NewAccountMeta(solanago.SysVarRentPubkey, false, false),
		solanago.NewAccountMeta(EventAuthority, false, false),
		solanago.NewAccountMeta(ProgramID, false, false),
	}
	return solanago.NewInstruction(ProgramID, accounts, data), nil
}

// SellInstruction builds a sell of amount with the slippage bound from EncodeSellInstruction.
func SellInstruction(l *domain.AssetLaunch, seller solanago.PublicKey, amount uint64, slippageBps uint16) (solanago.Instruction, error) {
	data, err := EncodeSellInstruction(amount, slippageBps)
	if err != nil {
		return nil, fmt.Errorf("encode sell: %w", err)
	}
	sellerATA, err := DeriveAssociatedAccountAddress(seller, l.Mint)
	if err != nil {
		return nil, err
	}

	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(GlobalAccount, false, false),
		solanago.NewAccountMeta(FeeRecipient, true, false),
		solanago.NewAccountMeta(l.Mint, false, false),
		solanago.NewAccountMeta(l.BondingCurve, true, false),
		solanago.NewAccountMeta(l.AssociatedBondingCurve, true, false),
		solanago.NewAccountMeta(sellerATA, true, false),
		solanago.NewAccountMeta(seller, true, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
		solanago.NewAccountMeta(AssociatedTokenProgramID, false, false),
		solanago.NewAccountMeta(TokenProgramID, false, false),
		solanago.NewAccountMeta(EventAuthority, false, false),
		solanago.NewAccountMeta(ProgramID, false, false),
	}
	return solanago.NewInstruction(ProgramID, accounts, data), nil
}

// LaunchBundle returns create, buyer account creation and the initial buy,
// to be submitted atomically in one transaction.
func LaunchBundle(l *domain.AssetLaunch, purchase uint64, slippageBps uint16) ([]solanago.Instruction, error) {
	create, err := CreateInstruction(l)
	if err != nil {
		return nil, err
	}
	buy, err := BuyInstruction(l, l.Creator, purchase, slippageBps)
	if err != nil {
		return nil, err
	}
	return []solanago.Instruction{
		create,
		CreateTokenAccountInstruction(l.Creator, l.Creator, l.Mint),
		buy,
	}, nil
}
