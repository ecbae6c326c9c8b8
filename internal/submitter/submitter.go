// Package submitter assembles, signs, sends and confirms transactions.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/observability"
	"pump-cycle-bot/internal/pumpfun"
	"pump-cycle-bot/internal/retry"
	"pump-cycle-bot/internal/solana"
)

// Default configuration values.
const (
	DefaultConfirmationTimeout = 60 * time.Second
	DefaultPollInterval        = 500 * time.Millisecond
	// SizeWarnRatio is the fraction of the size limit above which a warning is logged.
	SizeWarnRatio = 0.9
)

// RPC is the part of the node API the submitter needs.
type RPC interface {
	GetLatestBlockhash(ctx context.Context) (*solana.Blockhash, error)
	SendTransaction(ctx context.Context, raw []byte, opts solana.SendOptions) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*solana.SignatureStatus, error)
}

// Options configures a Submitter.
type Options struct {
	RPC                 RPC
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	SkipPreflight       bool
	MaxTransactionSize  int
	Retry               retry.Policy
	Logger              logrus.FieldLogger
}

// Submitter sends transactions and waits for settlement.
type Submitter struct {
	rpc     RPC
	opts    Options
	log     logrus.FieldLogger
	nowFunc func() time.Time
}

// New creates a Submitter. Zero option values fall back to defaults.
func New(opts Options) *Submitter {
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxTransactionSize <= 0 {
		opts.MaxTransactionSize = pumpfun.MaxTransactionSize
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	// Only network failures and confirmation timeouts get another attempt.
	opts.Retry.Retryable = domain.IsRetryable

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Submitter{
		rpc:     opts.RPC,
		opts:    opts,
		log:     log.WithField("component", "submitter"),
		nowFunc: time.Now,
	}
}

// Request describes one transaction.
type Request struct {
	// Label names the transaction in logs and metrics (launch, sell, transfer).
	Label        string
	Instructions []solanago.Instruction
	Payer        solanago.PrivateKey
	// Signers are co-signers besides the payer.
	Signers []solanago.PrivateKey
}

// Submit signs and sends req and waits for confirmation. Network failures and
// confirmation timeouts are retried with a fresh blockhash; program rejections
// are returned immediately.
func (s *Submitter) Submit(ctx context.Context, req Request) (string, error) {
	if len(req.Instructions) == 0 {
		return "", fmt.Errorf("submit %s: no instructions", req.Label)
	}

	log := s.log.WithField("label", req.Label)
	policy := s.opts.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("submission failed, retrying")
	}

	// A timed-out signature may still land. While the node knows it, it is
	// awaited instead of re-sent, or a resend would collide with it.
	var pending string

	sig, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		if pending != "" {
			resend, err := s.resumePending(ctx, pending, log)
			if !resend {
				if err != nil {
					return "", err
				}
				return pending, nil
			}
			pending = ""
		}

		sig, err := s.attempt(ctx, req, log)
		var timeout *domain.ConfirmationTimeoutError
		if errors.As(err, &timeout) {
			pending = timeout.Signature
		}
		return sig, err
	})

	result := "confirmed"
	if err != nil {
		result = resultLabel(err)
	}
	observability.RecordSubmission(req.Label, result)

	if err != nil {
		return "", fmt.Errorf("submit %s: %w", req.Label, err)
	}
	return sig, nil
}

// attempt performs one sign/send/confirm round.
func (s *Submitter) attempt(ctx context.Context, req Request, log logrus.FieldLogger) (string, error) {
	raw, sig, err := s.build(ctx, req)
	if err != nil {
		return "", err
	}

	observability.RecordTransactionSize(len(raw))
	if float64(len(raw)) >= SizeWarnRatio*float64(s.opts.MaxTransactionSize) {
		log.WithFields(logrus.Fields{
			"size":  len(raw),
			"limit": s.opts.MaxTransactionSize,
		}).Warn("transaction close to size limit")
	}

	sent := s.nowFunc()
	got, err := s.rpc.SendTransaction(ctx, raw, solana.SendOptions{SkipPreflight: s.opts.SkipPreflight})
	if err != nil {
		return "", classifySendError(sig, err)
	}
	if got != "" && got != sig {
		log.WithFields(logrus.Fields{"expected": sig, "got": got}).Warn("node returned unexpected signature")
		sig = got
	}

	log.WithFields(logrus.Fields{"signature": sig, "size": len(raw)}).Debug("transaction sent")

	if err := s.awaitConfirmation(ctx, sig); err != nil {
		return "", err
	}
	observability.RecordConfirmation(req.Label, s.nowFunc().Sub(sent))
	log.WithField("signature", sig).Info("transaction confirmed")
	return sig, nil
}

// build fetches a fresh blockhash, signs, and serializes. It never reuses a
// blockhash across attempts.
func (s *Submitter) build(ctx context.Context, req Request) ([]byte, string, error) {
	bh, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("latest blockhash: %w", err)
	}
	hash, err := solanago.HashFromBase58(bh.Blockhash)
	if err != nil {
		return nil, "", fmt.Errorf("parse blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(req.Instructions, hash, solanago.TransactionPayer(req.Payer.PublicKey()))
	if err != nil {
		return nil, "", fmt.Errorf("build transaction: %w", err)
	}

	keys := append([]solanago.PrivateKey{req.Payer}, req.Signers...)
	if _, err := tx.Sign(func(pub solanago.PublicKey) *solanago.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(pub) {
				return &keys[i]
			}
		}
		return nil
	}); err != nil {
		return nil, "", fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, "", fmt.Errorf("serialize transaction: %w", err)
	}
	if len(raw) > s.opts.MaxTransactionSize {
		return nil, "", fmt.Errorf("%w: %d bytes, limit %d", domain.ErrTransactionTooLarge, len(raw), s.opts.MaxTransactionSize)
	}

	return raw, tx.Signatures[0].String(), nil
}

// awaitConfirmation polls the signature status until it is confirmed, fails,
// or the confirmation timeout elapses.
func (s *Submitter) awaitConfirmation(ctx context.Context, sig string) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := s.status(waitCtx, sig)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("signature", sig).Debug("status poll failed")
		case status != nil && status.Err != nil:
			return classifyTransactionError(sig, status.Err)
		case status.Confirmed():
			return nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &domain.ConfirmationTimeoutError{
				Signature: sig,
				Waited:    s.opts.ConfirmationTimeout.String(),
			}
		case <-ticker.C:
		}
	}
}

func (s *Submitter) status(ctx context.Context, sig string) (*solana.SignatureStatus, error) {
	statuses, err := s.rpc.GetSignatureStatuses(ctx, sig)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	return statuses[0], nil
}

// resumePending settles a previously timed-out signature. It reports resend
// only when the node has no record of sig. A signature seen at processed is
// polled again; a landed transaction with an execution error is returned as
// that error.
func (s *Submitter) resumePending(ctx context.Context, sig string, log logrus.FieldLogger) (resend bool, err error) {
	status, err := s.status(ctx, sig)
	if err != nil {
		return false, &domain.NetworkError{Op: "getSignatureStatuses", Err: err}
	}
	if status == nil {
		return true, nil
	}
	if status.Err != nil {
		return false, classifyTransactionError(sig, status.Err)
	}
	if !status.Confirmed() {
		log.WithFields(logrus.Fields{
			"signature": sig,
			"status":    status.ConfirmationStatus,
		}).Info("previous attempt still settling")
		if err := s.awaitConfirmation(ctx, sig); err != nil {
			return false, err
		}
	}
	log.WithField("signature", sig).Info("previous attempt landed late")
	return false, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		return "account_exists"
	case errors.Is(err, domain.ErrExecutionRejected):
		return "rejected"
	case errors.Is(err, domain.ErrConfirmationTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrTransactionTooLarge):
		return "too_large"
	case errors.Is(err, domain.ErrNetwork):
		return "network"
	default:
		return "error"
	}
}
