package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the trading cycle. Each typed error wraps one of these
// sentinels so callers can branch with errors.Is.
var (
	// ErrConfiguration is fatal: the process exits before any cycle starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrInsufficientFunds aborts the current cycle without retry.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountAlreadyExists signals a colliding asset address.
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrNetwork covers RPC transport failures and rate limiting. Retryable.
	ErrNetwork = errors.New("network error")

	// ErrConfirmationTimeout means the transaction was sent but not observed
	// as confirmed in time. It may still land later. Retryable.
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// ErrExecutionRejected means the network accepted the transaction but
	// program logic rejected it.
	ErrExecutionRejected = errors.New("execution rejected")

	// ErrGeneration is a metadata collaborator failure.
	ErrGeneration = errors.New("metadata generation failed")
)

// Codec validation errors.
var (
	ErrNameTooLong         = errors.New("name too long")
	ErrSymbolTooLong       = errors.New("symbol too long")
	ErrURITooLong          = errors.New("metadata uri too long")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidSlippage     = errors.New("slippage bps out of range")
	ErrTransactionTooLarge = errors.New("transaction exceeds size limit")
)

// ConfigurationError reports an invalid configuration option.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// InsufficientFundsError reports a balance below the amount a step requires.
type InsufficientFundsError struct {
	Address   string
	Have      uint64
	Need      uint64
	Operation string
}

func (e *InsufficientFundsError) Error() string {
	if e.Need == 0 && e.Have == 0 {
		return fmt.Sprintf("insufficient funds for %s", e.Operation)
	}
	return fmt.Sprintf("insufficient funds for %s: %s has %d lamports, needs %d",
		e.Operation, e.Address, e.Have, e.Need)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// NetworkError wraps an RPC transport or rate limit failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// ConfirmationTimeoutError reports a signature that did not confirm in time.
type ConfirmationTimeoutError struct {
	Signature string
	Waited    string
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %s", e.Signature, e.Waited)
}

func (e *ConfirmationTimeoutError) Unwrap() error { return ErrConfirmationTimeout }

// ExecutionError reports a program-level rejection carried in the settlement
// result or the preflight response. Kind is one of ErrExecutionRejected,
// ErrInsufficientFunds or ErrAccountAlreadyExists.
type ExecutionError struct {
	Signature string
	Kind      error
	Detail    string
}

func (e *ExecutionError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%v: tx %s: %s", e.Kind, e.Signature, e.Detail)
}

// Unwrap exposes the kind and the generic rejection sentinel.
func (e *ExecutionError) Unwrap() []error {
	if e.Kind == nil || e.Kind == ErrExecutionRejected {
		return []error{ErrExecutionRejected}
	}
	return []error{e.Kind, ErrExecutionRejected}
}

// GenerationError wraps a metadata collaborator failure.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("metadata generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// IsRetryable reports whether err may succeed on a fresh attempt.
// Network failures and confirmation timeouts are retryable; everything the
// program or the balance gate rejected is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrExecutionRejected) || errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAccountAlreadyExists) || errors.Is(err, ErrTransactionTooLarge) {
		return false
	}
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrConfirmationTimeout)
}
