package submitter

import (
	"encoding/json"
	"errors"
	"fmt"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/solana"
)

// Custom program error codes shared by the system and token programs that
// map onto the error taxonomy.
const (
	customAccountInUse      = 0
	customInsufficientFunds = 1
)

// classifySendError maps a sendTransaction failure. Preflight rejections carry
// a transaction error and are never retried; everything else keeps its cause.
func classifySendError(sig string, err error) error {
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == solana.CodeSendTransactionPreflightFailure {
		if txErr := rpcErr.PreflightErr(); txErr != nil {
			return classifyTransactionError("", txErr)
		}
		return &domain.ExecutionError{Kind: domain.ErrExecutionRejected, Detail: rpcErr.Message}
	}
	return fmt.Errorf("send transaction %s: %w", sig, err)
}

// classifyTransactionError maps a settlement error object to a typed error.
func classifyTransactionError(sig string, txErr interface{}) error {
	detail, _ := json.Marshal(txErr)
	return &domain.ExecutionError{
		Signature: sig,
		Kind:      transactionErrorKind(txErr),
		Detail:    string(detail),
	}
}

func transactionErrorKind(txErr interface{}) error {
	switch v := txErr.(type) {
	case string:
		switch v {
		case "InsufficientFundsForFee", "InsufficientFundsForRent":
			return domain.ErrInsufficientFunds
		}
	case map[string]interface{}:
		if _, ok := v["InsufficientFundsForRent"]; ok {
			return domain.ErrInsufficientFunds
		}
		ie, ok := v["InstructionError"].([]interface{})
		if !ok || len(ie) != 2 {
			break
		}
		switch d := ie[1].(type) {
		case string:
			switch d {
			case "InsufficientFunds":
				return domain.ErrInsufficientFunds
			case "AccountAlreadyInitialized":
				return domain.ErrAccountAlreadyExists
			}
		case map[string]interface{}:
			code, ok := toInt(d["Custom"])
			if !ok {
				break
			}
			switch code {
			case customAccountInUse:
				return domain.ErrAccountAlreadyExists
			case customInsufficientFunds:
				return domain.ErrInsufficientFunds
			}
		}
	}
	return domain.ErrExecutionRejected
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
