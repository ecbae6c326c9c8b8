package stub

import (
	"context"
	"sync"

	"github.com/mr-tron/base58"

	"pump-cycle-bot/internal/solana"
)

// DefaultBlockhash is a valid base58 32-byte hash.
const DefaultBlockhash = "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"

// RPCClient implements solana.RPCClient in memory for tests. All fields may
// be set directly before use; methods are safe for concurrent calls.
type RPCClient struct {
	mu sync.Mutex

	Balances     map[string]uint64
	Accounts     map[string]*solana.AccountInfo
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Statuses     map[string]*solana.SignatureStatus
	Rent         uint64
	Blockhash    string

	// AutoConfirm marks every sent signature as confirmed without error.
	AutoConfirm bool
	// SendFunc, when set, replaces the default send behavior.
	SendFunc func(raw []byte) (string, error)
	// Errors injects a failure per method name.
	Errors map[string]error

	Sent  [][]byte
	Calls map[string]int
}

// NewRPCClient creates a stub with empty state that confirms every send.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:     make(map[string]uint64),
		Accounts:     make(map[string]*solana.AccountInfo),
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Rent:         2_039_280,
		Blockhash:    DefaultBlockhash,
		AutoConfirm:  true,
		Errors:       make(map[string]error),
		Calls:        make(map[string]int),
	}
}

func (c *RPCClient) enter(method string) error {
	c.Calls[method]++
	return c.Errors[method]
}

// CallCount returns how often method was invoked.
func (c *RPCClient) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// SentCount returns the number of transactions accepted by SendTransaction.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// SetBalance sets the lamport balance of address.
func (c *RPCClient) SetBalance(address string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[address] = lamports
}

// SetStatus sets the status returned for signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SetError injects err for method; nil clears it.
func (c *RPCClient) SetError(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors[method] = err
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures replaces the signature history for an address.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getBalance"); err != nil {
		return 0, err
	}
	return c.Balances[pubkey], nil
}

func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getAccountInfo"); err != nil {
		return nil, err
	}
	return c.Accounts[pubkey], nil
}

func (c *RPCClient) GetLatestBlockhash(context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getLatestBlockhash"); err != nil {
		return nil, err
	}
	return &solana.Blockhash{Blockhash: c.Blockhash, LastValidBlockHeight: 1}, nil
}

func (c *RPCClient) GetMinimumBalanceForRentExemption(context.Context, uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getMinimumBalanceForRentExemption"); err != nil {
		return 0, err
	}
	return c.Rent, nil
}

// SendTransaction records raw. The returned signature is the first signature
// in the wire transaction, base58 encoded.
func (c *RPCClient) SendTransaction(_ context.Context, raw []byte, _ solana.SendOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("sendTransaction"); err != nil {
		return "", err
	}
	if c.SendFunc != nil {
		sig, err := c.SendFunc(raw)
		if err == nil {
			c.Sent = append(c.Sent, raw)
		}
		return sig, err
	}

	c.Sent = append(c.Sent, raw)
	sig := FirstSignature(raw)
	if c.AutoConfirm {
		c.Statuses[sig] = &solana.SignatureStatus{Slot: 1, ConfirmationStatus: "confirmed"}
	}
	return sig, nil
}

func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getSignatureStatuses"); err != nil {
		return nil, err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getSignaturesForAddress"); err != nil {
		return nil, err
	}
	sigs := c.Signatures[address]
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}
	return append([]solana.SignatureInfo(nil), sigs...), nil
}

func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getTransaction"); err != nil {
		return nil, err
	}
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, nil
	}
	return tx, nil
}

// FirstSignature extracts the first signature of a wire transaction. It
// assumes fewer than 128 signatures so the count fits in one byte.
func FirstSignature(raw []byte) string {
	if len(raw) < 65 {
		return ""
	}
	return base58.Encode(raw[1:65])
}

var _ solana.RPCClient = (*RPCClient)(nil)
