package pumpfun

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	solanago "github.com/gagliardetto/solana-go"

	"pump-cycle-bot/internal/domain"
)

const bpsDenominator = 10_000

// InstructionKind identifies a platform instruction by its discriminator.
type InstructionKind int

const (
	KindUnknown InstructionKind = iota
	KindCreate
	KindBuy
	KindSell
)

func (k InstructionKind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindBuy:
		return "buy"
	case KindSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseInstructionKind reads the leading discriminator of instruction data.
func ParseInstructionKind(data []byte) InstructionKind {
	if len(data) < 8 {
		return KindUnknown
	}
	switch {
	case bytes.Equal(data[:8], BuyDiscriminator[:]):
		return KindBuy
	case bytes.Equal(data[:8], SellDiscriminator[:]):
		return KindSell
	case bytes.Equal(data[:8], CreateDiscriminator[:]):
		return KindCreate
	default:
		return KindUnknown
	}
}

// ValidateMetadata checks the platform maximums. The encoder never truncates.
func ValidateMetadata(name, symbol, uri string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes, max %d", domain.ErrNameTooLong, len(name), MaxNameLen)
	}
	if len(symbol) > MaxSymbolLen {
		return fmt.Errorf("%w: %d bytes, max %d", domain.ErrSymbolTooLong, len(symbol), MaxSymbolLen)
	}
	if len(uri) > MaxURILen {
		return fmt.Errorf("%w: %d bytes, max %d", domain.ErrURITooLong, len(uri), MaxURILen)
	}
	return nil
}

// EncodeCreateInstruction encodes the create payload:
// discriminator(8) | name(u32 len + bytes) | symbol(u32 len + bytes) | uri(u32 len + bytes) | creator(32).
func EncodeCreateInstruction(name, symbol, uri string, creator solanago.PublicKey) ([]byte, error) {
	if err := ValidateMetadata(name, symbol, uri); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 8+12+len(name)+len(symbol)+len(uri)+32)
	buf = append(buf, CreateDiscriminator[:]...)
	buf = appendString(buf, name)
	buf = appendString(buf, symbol)
	buf = appendString(buf, uri)
	buf = append(buf, creator[:]...)
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// EncodeBuyInstruction encodes discriminator(8) | amount(u64) | maxCost(u64)
// where maxCost = amount + floor(amount*slippageBps/10000).
func EncodeBuyInstruction(amount uint64, slippageBps uint16) ([]byte, error) {
	maxCost, err := MaxCost(amount, slippageBps)
	if err != nil {
		return nil, err
	}
	return encodeTrade(BuyDiscriminator, amount, maxCost), nil
}

// EncodeSellInstruction encodes discriminator(8) | amount(u64) | minOutput(u64)
// where minOutput = amount - floor(amount*slippageBps/10000), never below 1.
func EncodeSellInstruction(amount uint64, slippageBps uint16) ([]byte, error) {
	minOut, err := MinOutput(amount, slippageBps)
	if err != nil {
		return nil, err
	}
	return encodeTrade(SellDiscriminator, amount, minOut), nil
}

func encodeTrade(disc [8]byte, amount, bound uint64) []byte {
	buf := make([]byte, 24)
	copy(buf[:8], disc[:])
	binary.LittleEndian.PutUint64(buf[8:16], amount)
	binary.LittleEndian.PutUint64(buf[16:24], bound)
	return buf
}

// DecodeTradeArgs returns amount and bound from a buy or sell payload.
func DecodeTradeArgs(data []byte) (kind InstructionKind, amount, bound uint64, err error) {
	kind = ParseInstructionKind(data)
	if kind != KindBuy && kind != KindSell {
		return kind, 0, 0, fmt.Errorf("not a trade instruction: %s", kind)
	}
	if len(data) < 24 {
		return kind, 0, 0, fmt.Errorf("trade payload too short: %d", len(data))
	}
	return kind, binary.LittleEndian.Uint64(data[8:16]), binary.LittleEndian.Uint64(data[16:24]), nil
}

// slippageDelta computes floor(amount*bps/10000) in 128-bit precision.
func slippageDelta(amount uint64, slippageBps uint16) (uint64, error) {
	if amount == 0 {
		return 0, domain.ErrInvalidAmount
	}
	if slippageBps > MaxSlippageBps {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidSlippage, slippageBps)
	}
	hi, lo := bits.Mul64(amount, uint64(slippageBps))
	q, _ := bits.Div64(hi, lo, bpsDenominator)
	return q, nil
}

// MaxCost is the buy upper bound.
func MaxCost(amount uint64, slippageBps uint16) (uint64, error) {
	delta, err := slippageDelta(amount, slippageBps)
	if err != nil {
		return 0, err
	}
	if amount > math.MaxUint64-delta {
		return 0, fmt.Errorf("%w: max cost overflows u64", domain.ErrInvalidAmount)
	}
	return amount + delta, nil
}

// MinOutput is the sell lower bound, clamped to 1.
func MinOutput(amount uint64, slippageBps uint16) (uint64, error) {
	delta, err := slippageDelta(amount, slippageBps)
	if err != nil {
		return 0, err
	}
	if delta >= amount {
		return 1, nil
	}
	return amount - delta, nil
}

// RequiredFundingLamports is the pre-flight balance gate:
// rent + purchase + floor(purchase*feeBps/10000) + feeBuffer.
func RequiredFundingLamports(purchase uint64, feeBps uint16, rentExemptMinimum, feeBuffer uint64) uint64 {
	hi, lo := bits.Mul64(purchase, uint64(feeBps))
	if hi >= bpsDenominator {
		return math.MaxUint64
	}
	fee, _ := bits.Div64(hi, lo, bpsDenominator)

	total := rentExemptMinimum
	for _, part := range []uint64{purchase, fee, feeBuffer} {
		sum, carry := bits.Add64(total, part, 0)
		if carry != 0 {
			return math.MaxUint64
		}
		total = sum
	}
	return total
}
