package pumpfun

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	solanago "github.com/gagliardetto/solana-go"

	"pump-cycle-bot/internal/domain"
)

func TestEncodeCreateInstruction_Layout(t *testing.T) {
	creator := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

	data, err := EncodeCreateInstruction("Moon", "MN", "ipfs://abc", creator)
	if err != nil {
		t.Fatalf("EncodeCreateInstruction: %v", err)
	}

	wantLen := 8 + (4 + 4) + (4 + 2) + (4 + 10) + 32
	if len(data) != wantLen {
		t.Fatalf("expected %d bytes, got %d", wantLen, len(data))
	}
	if ParseInstructionKind(data) != KindCreate {
		t.Errorf("expected create discriminator")
	}

	off := 8
	for _, want := range []string{"Moon", "MN", "ipfs://abc"} {
		n := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if got := string(data[off : off+n]); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
		off += n
	}

	var got solanago.PublicKey
	copy(got[:], data[off:])
	if !got.Equals(creator) {
		t.Errorf("expected creator %s, got %s", creator, got)
	}
}

func TestEncodeCreateInstruction_Validation(t *testing.T) {
	creator := solanago.PublicKey{}

	tests := []struct {
		name    string
		tName   string
		symbol  string
		uri     string
		wantErr error
	}{
		{"name too long", strings.Repeat("n", MaxNameLen+1), "S", "u", domain.ErrNameTooLong},
		{"symbol too long", "N", strings.Repeat("s", MaxSymbolLen+1), "u", domain.ErrSymbolTooLong},
		{"uri too long", "N", "S", strings.Repeat("u", MaxURILen+1), domain.ErrURITooLong},
		{"at limits", strings.Repeat("n", MaxNameLen), strings.Repeat("s", MaxSymbolLen), "u", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeCreateInstruction(tt.tName, tt.symbol, tt.uri, creator)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEncodeBuyInstruction_Layout(t *testing.T) {
	data, err := EncodeBuyInstruction(100_000_000, 500)
	if err != nil {
		t.Fatalf("EncodeBuyInstruction: %v", err)
	}
	if len(data) != 24 {
		t.Fatalf("expected 24 bytes, got %d", len(data))
	}

	kind, amount, bound, err := DecodeTradeArgs(data)
	if err != nil {
		t.Fatalf("DecodeTradeArgs: %v", err)
	}
	if kind != KindBuy {
		t.Errorf("expected buy, got %s", kind)
	}
	if amount != 100_000_000 {
		t.Errorf("expected amount 100000000, got %d", amount)
	}
	if bound != 105_000_000 {
		t.Errorf("expected max cost 105000000, got %d", bound)
	}
}

func TestSlippageBounds_FloorSemantics(t *testing.T) {
	tests := []struct {
		amount  uint64
		bps     uint16
		maxCost uint64
		minOut  uint64
	}{
		{amount: 9_999, bps: 1, maxCost: 9_999, minOut: 9_999},
		{amount: 10_001, bps: 1, maxCost: 10_002, minOut: 10_000},
		{amount: 12_345, bps: 250, maxCost: 12_653, minOut: 12_037},
		{amount: 1, bps: 10_000, maxCost: 2, minOut: 1},
		{amount: 3, bps: 9_999, maxCost: 5, minOut: 1},
	}

	for _, tt := range tests {
		gotMax, err := MaxCost(tt.amount, tt.bps)
		if err != nil {
			t.Fatalf("MaxCost(%d,%d): %v", tt.amount, tt.bps, err)
		}
		if gotMax != tt.maxCost {
			t.Errorf("MaxCost(%d,%d) = %d, want %d", tt.amount, tt.bps, gotMax, tt.maxCost)
		}
		gotMin, err := MinOutput(tt.amount, tt.bps)
		if err != nil {
			t.Fatalf("MinOutput(%d,%d): %v", tt.amount, tt.bps, err)
		}
		if gotMin != tt.minOut {
			t.Errorf("MinOutput(%d,%d) = %d, want %d", tt.amount, tt.bps, gotMin, tt.minOut)
		}
	}
}

func TestSlippageBounds_Properties(t *testing.T) {
	amounts := []uint64{10_000, 123_456_789, 1_000_000_000_000_000, math.MaxUint64 / 2}
	bpsValues := []uint16{0, 1, 50, 100, 2_500, 9_999, 10_000}

	for _, amount := range amounts {
		for _, bps := range bpsValues {
			maxCost, err := MaxCost(amount, bps)
			if err != nil {
				t.Fatalf("MaxCost(%d,%d): %v", amount, bps, err)
			}
			minOut, err := MinOutput(amount, bps)
			if err != nil {
				t.Fatalf("MinOutput(%d,%d): %v", amount, bps, err)
			}

			if maxCost < amount {
				t.Errorf("maxCost %d < amount %d (bps=%d)", maxCost, amount, bps)
			}
			if minOut > amount {
				t.Errorf("minOut %d > amount %d (bps=%d)", minOut, amount, bps)
			}
			if minOut == 0 {
				t.Errorf("minOut must never be zero (amount=%d bps=%d)", amount, bps)
			}
			if bps == 0 && (maxCost != amount || minOut != amount) {
				t.Errorf("bps=0 must give equality: max=%d min=%d amount=%d", maxCost, minOut, amount)
			}
			if bps > 0 && (maxCost == amount || minOut == amount) {
				t.Errorf("bps=%d must move both bounds: max=%d min=%d amount=%d", bps, maxCost, minOut, amount)
			}
		}
	}
}

func TestSlippageBounds_Validation(t *testing.T) {
	if _, err := EncodeBuyInstruction(0, 100); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero buy, got %v", err)
	}
	if _, err := EncodeSellInstruction(0, 100); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero sell, got %v", err)
	}
	if _, err := EncodeBuyInstruction(1000, MaxSlippageBps+1); !errors.Is(err, domain.ErrInvalidSlippage) {
		t.Errorf("expected ErrInvalidSlippage, got %v", err)
	}
	if _, err := MaxCost(math.MaxUint64, 1); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("expected overflow to be rejected, got %v", err)
	}
}

func TestRequiredFundingLamports(t *testing.T) {
	tests := []struct {
		name     string
		purchase uint64
		feeBps   uint16
		rent     uint64
		buffer   uint64
		want     uint64
	}{
		{"one percent fee", 100_000_000, 100, 2_039_280, 10_000_000, 2_039_280 + 100_000_000 + 1_000_000 + 10_000_000},
		{"no fee", 50_000_000, 0, 0, 0, 50_000_000},
		{"fee floors", 999, 100, 0, 0, 1_008},
		{"saturates", math.MaxUint64, 100, 1, 1, math.MaxUint64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RequiredFundingLamports(tt.purchase, tt.feeBps, tt.rent, tt.buffer)
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequiredFundingLamports_GateScenarios(t *testing.T) {
	maxPurchase := domain.SOLToLamports(0.1)
	minPurchase := domain.SOLToLamports(0.05)
	rent := uint64(2_039_280)
	buffer := uint64(10_000_000)

	for _, purchase := range []uint64{minPurchase, maxPurchase} {
		need := RequiredFundingLamports(purchase, 100, rent, buffer)
		if need > domain.SOLToLamports(1.0) {
			t.Errorf("purchase %d: need %d should fit in 1 SOL", purchase, need)
		}
		if need <= domain.SOLToLamports(0.01) {
			t.Errorf("purchase %d: need %d should exceed 0.01 SOL", purchase, need)
		}
	}
}

func TestParseInstructionKind(t *testing.T) {
	tests := []struct {
		data []byte
		want InstructionKind
	}{
		{BuyDiscriminator[:], KindBuy},
		{SellDiscriminator[:], KindSell},
		{CreateDiscriminator[:], KindCreate},
		{[]byte{1, 2, 3}, KindUnknown},
		{make([]byte, 8), KindUnknown},
	}
	for _, tt := range tests {
		if got := ParseInstructionKind(tt.data); got != tt.want {
			t.Errorf("ParseInstructionKind(%v) = %s, want %s", tt.data, got, tt.want)
		}
	}
}
