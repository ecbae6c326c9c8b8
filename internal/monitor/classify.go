package monitor

import (
	"strconv"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/pumpfun"
	"pump-cycle-bot/internal/solana"
)

// Log lines the platform program emits per instruction.
const (
	buyLogLine  = "Program log: Instruction: Buy"
	sellLogLine = "Program log: Instruction: Sell"
)

// Target identifies what a classifier looks for.
type Target struct {
	Mint         string
	BondingCurve string
	Exclude      string
}

// TargetFor builds the target for a launched asset, excluding the creator's
// own activity.
func TargetFor(l *domain.AssetLaunch, exclude solanago.PublicKey) Target {
	return Target{
		Mint:         l.Mint.String(),
		BondingCurve: l.BondingCurve.String(),
		Exclude:      exclude.String(),
	}
}

// Classify decides whether tx is an external purchase of the target mint.
//
// A purchase must reference the mint, carry no execution error, be initiated
// by someone other than Exclude, and raise the mint balance of some account
// not owned by the bonding curve. Without token balances for the mint the
// platform instruction discriminator decides, then the program log. If none
// of these can decide, the result is Indeterminate.
//
// OccurredAt is left for the caller to fill in.
func Classify(tx *solana.Transaction, t Target) domain.ChainEvent {
	ev := domain.ChainEvent{
		Signature:      tx.Signature,
		Classification: domain.NotPurchase,
		Initiator:      tx.Initiator(),
		Slot:           tx.Slot,
	}

	if !referencesMint(tx, t.Mint) {
		ev.Reason = "does not reference asset"
		return ev
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		ev.Reason = "execution failed"
		return ev
	}
	if ev.Initiator != "" && ev.Initiator == t.Exclude {
		ev.Reason = "initiated by self"
		return ev
	}

	if tx.Meta != nil && hasMintBalances(tx.Meta, t.Mint) {
		if positiveDelta(tx.Meta, t) {
			ev.Classification = domain.Purchase
			ev.Reason = "positive token balance delta"
		} else {
			ev.Reason = "no positive token balance delta"
		}
		return ev
	}

	switch instructionKind(tx) {
	case pumpfun.KindBuy:
		ev.Classification = domain.Purchase
		ev.Reason = "buy discriminator"
		return ev
	case pumpfun.KindSell, pumpfun.KindCreate:
		ev.Reason = "non-buy discriminator"
		return ev
	}

	if tx.Meta != nil {
		for _, line := range tx.Meta.LogMessages {
			if strings.HasPrefix(line, buyLogLine) {
				ev.Classification = domain.Purchase
				ev.Reason = "buy log"
				return ev
			}
			if strings.HasPrefix(line, sellLogLine) {
				ev.Reason = "sell log"
				return ev
			}
		}
	}

	ev.Classification = domain.Indeterminate
	ev.Reason = "no balances, instruction or log decided"
	return ev
}

func referencesMint(tx *solana.Transaction, mint string) bool {
	if tx.Message != nil {
		for _, k := range tx.Message.AccountKeys {
			if k == mint {
				return true
			}
		}
	}
	return tx.Meta != nil && hasMintBalances(tx.Meta, mint)
}

func hasMintBalances(meta *solana.TransactionMeta, mint string) bool {
	for _, b := range meta.PreTokenBalances {
		if b.Mint == mint {
			return true
		}
	}
	for _, b := range meta.PostTokenBalances {
		if b.Mint == mint {
			return true
		}
	}
	return false
}

// positiveDelta reports whether any account outside the bonding curve gained
// the mint. Accounts without a pre balance started at zero.
func positiveDelta(meta *solana.TransactionMeta, t Target) bool {
	pre := make(map[int]uint64)
	for _, b := range meta.PreTokenBalances {
		if b.Mint != t.Mint {
			continue
		}
		pre[b.AccountIndex] = parseAmount(b.Amount)
	}
	for _, b := range meta.PostTokenBalances {
		if b.Mint != t.Mint || b.Owner == t.BondingCurve {
			continue
		}
		if parseAmount(b.Amount) > pre[b.AccountIndex] {
			return true
		}
	}
	return false
}

func parseAmount(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// instructionKind returns the kind of the first platform instruction in tx.
func instructionKind(tx *solana.Transaction) pumpfun.InstructionKind {
	if tx.Message == nil {
		return pumpfun.KindUnknown
	}
	program := pumpfun.ProgramID.String()
	for _, ix := range tx.Message.Instructions {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(tx.Message.AccountKeys) {
			continue
		}
		if tx.Message.AccountKeys[ix.ProgramIDIndex] != program {
			continue
		}
		data, err := base58.Decode(ix.Data)
		if err != nil {
			continue
		}
		if kind := pumpfun.ParseInstructionKind(data); kind != pumpfun.KindUnknown {
			return kind
		}
	}
	return pumpfun.KindUnknown
}
