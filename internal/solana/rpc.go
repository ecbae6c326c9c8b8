package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// RPCClient defines the Solana JSON-RPC surface the bot consumes.
type RPCClient interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
	SendTransaction(ctx context.Context, raw []byte, opts SendOptions) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds), 0 if the node did not report one
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// Initiator returns the fee payer, which is the first account key.
func (t *Transaction) Initiator() string {
	if t.Message == nil || len(t.Message.AccountKeys) == 0 {
		return ""
	}
	return t.Message.AccountKeys[0]
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is one entry of pre/postTokenBalances. Amount is the raw
// base-unit amount as a decimal string.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []CompiledInstruction
}

// CompiledInstruction references accounts by index. Data is base58.
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string
}

// Blockhash is a recent block reference used to sign a transaction.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SendOptions controls sendTransaction.
type SendOptions struct {
	SkipPreflight bool
}

// SignatureStatus is one entry of getSignatureStatuses. A nil entry means the
// node has not seen the signature.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64
	Err                interface{}
	ConfirmationStatus string
}

// Confirmed reports whether the status reached confirmed or finalized.
func (s *SignatureStatus) Confirmed() bool {
	if s == nil {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// DecodeData returns the raw account data.
func (a *AccountInfo) DecodeData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// SPL token account layout: mint(32) | owner(32) | amount(8) | ...
const tokenAmountOffset = 64

// ParseTokenAccountAmount extracts the amount from SPL token account data.
func ParseTokenAccountAmount(data []byte) (uint64, error) {
	if len(data) < tokenAmountOffset+8 {
		return 0, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint64(data[tokenAmountOffset : tokenAmountOffset+8]), nil
}

// SignatureInfo is one entry of a getSignaturesForAddress result, newest
// first. Err is non-nil when the transaction failed on chain.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts pages through an address's history. Zero values are omitted.
type SignaturesOpts struct {
	Before string
	Until  string
	Limit  int
}
