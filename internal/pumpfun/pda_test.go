package pumpfun

import (
	"testing"

	solanago "github.com/gagliardetto/solana-go"

	"pump-cycle-bot/internal/domain"
)

var (
	testMint  = solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testOwner = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
)

func TestDeriveBondingCurveAddress_Deterministic(t *testing.T) {
	a, err := DeriveBondingCurveAddress(testMint)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := DeriveBondingCurveAddress(testMint)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !a.Equals(b) {
		t.Errorf("derivation not deterministic: %s vs %s", a, b)
	}

	other, err := DeriveBondingCurveAddress(testOwner)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a.Equals(other) {
		t.Error("different mints must give different curves")
	}
}

func TestFindProgramAddress_MatchesSolanaGo(t *testing.T) {
	seeds := [][]byte{[]byte(BondingCurveSeed), testMint[:]}

	got, gotBump, err := FindProgramAddress(seeds, ProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	want, wantBump, err := solanago.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		t.Fatalf("solanago.FindProgramAddress: %v", err)
	}

	if !got.Equals(want) {
		t.Errorf("address mismatch: got %s, want %s", got, want)
	}
	if gotBump != wantBump {
		t.Errorf("bump mismatch: got %d, want %d", gotBump, wantBump)
	}
}

func TestDeriveAssociatedAccountAddress_MatchesSolanaGo(t *testing.T) {
	got, err := DeriveAssociatedAccountAddress(testOwner, testMint)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	want, _, err := solanago.FindAssociatedTokenAddress(testOwner, testMint)
	if err != nil {
		t.Fatalf("solanago.FindAssociatedTokenAddress: %v", err)
	}
	if !got.Equals(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestDeriveMetadataAddress_MatchesSolanaGo(t *testing.T) {
	got, err := DeriveMetadataAddress(testMint)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	want, _, err := solanago.FindTokenMetadataAddress(testMint)
	if err != nil {
		t.Fatalf("solanago.FindTokenMetadataAddress: %v", err)
	}
	if !got.Equals(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFindProgramAddress_RejectsLongSeed(t *testing.T) {
	long := make([]byte, 33)
	if _, _, err := FindProgramAddress([][]byte{long}, ProgramID); err == nil {
		t.Error("expected error for seed longer than 32 bytes")
	}
}

func TestLaunchBundle_Accounts(t *testing.T) {
	mint := solanago.NewWallet().PublicKey()
	md := domain.AssetMetadata{Name: "Test", Symbol: "TST", MetadataURI: "https://example.com/m.json"}

	launch, err := NewAssetLaunch(mint, testOwner, md)
	if err != nil {
		t.Fatalf("NewAssetLaunch: %v", err)
	}

	ixs, err := LaunchBundle(launch, 50_000_000, 500)
	if err != nil {
		t.Fatalf("LaunchBundle: %v", err)
	}
	if len(ixs) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(ixs))
	}

	create := ixs[0]
	if !create.ProgramID().Equals(ProgramID) {
		t.Errorf("create program mismatch: %s", create.ProgramID())
	}
	accts := create.Accounts()
	if !accts[0].PublicKey.Equals(mint) || !accts[0].IsSigner {
		t.Error("create: mint must be first and signing")
	}
	if !accts[2].PublicKey.Equals(launch.BondingCurve) {
		t.Error("create: bonding curve must be third")
	}
	if !accts[7].PublicKey.Equals(testOwner) || !accts[7].IsSigner {
		t.Error("create: creator must sign")
	}

	if !ixs[1].ProgramID().Equals(AssociatedTokenProgramID) {
		t.Errorf("second instruction must create the buyer token account, got %s", ixs[1].ProgramID())
	}

	buy := ixs[2]
	data, err := buy.Data()
	if err != nil {
		t.Fatalf("buy data: %v", err)
	}
	kind, amount, bound, err := DecodeTradeArgs(data)
	if err != nil {
		t.Fatalf("DecodeTradeArgs: %v", err)
	}
	if kind != KindBuy || amount != 50_000_000 || bound != 52_500_000 {
		t.Errorf("unexpected buy args: kind=%s amount=%d bound=%d", kind, amount, bound)
	}
	if !buy.Accounts()[5].PublicKey.Equals(launch.CreatorTokenAccount) {
		t.Error("buy: creator token account must be sixth")
	}
}

func TestSellInstruction_Bound(t *testing.T) {
	mint := solanago.NewWallet().PublicKey()
	launch, err := NewAssetLaunch(mint, testOwner, domain.AssetMetadata{Name: "A", Symbol: "B", MetadataURI: "c"})
	if err != nil {
		t.Fatalf("NewAssetLaunch: %v", err)
	}

	ix, err := SellInstruction(launch, testOwner, 1_000_000, 100)
	if err != nil {
		t.Fatalf("SellInstruction: %v", err)
	}
	data, _ := ix.Data()
	kind, amount, bound, err := DecodeTradeArgs(data)
	if err != nil {
		t.Fatalf("DecodeTradeArgs: %v", err)
	}
	if kind != KindSell || amount != 1_000_000 || bound != 990_000 {
		t.Errorf("unexpected sell args: kind=%s amount=%d bound=%d", kind, amount, bound)
	}
}
