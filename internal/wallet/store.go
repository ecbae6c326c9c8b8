// Package wallet creates, persists and loads signing identities and moves
// funds between them.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/pumpfun"
	"pump-cycle-bot/internal/solana"
	"pump-cycle-bot/internal/submitter"
)

const (
	filePrefix = "wallet-"
	fileSuffix = ".json"
	// DefaultFeeReserve is left behind by TransferAll to pay the transfer fee.
	DefaultFeeReserve uint64 = 5_000
)

// ErrKeyMismatch is returned when a persisted file's fields disagree.
var ErrKeyMismatch = errors.New("identity file is inconsistent")

// Identity is a signing keypair and where it is persisted.
type Identity struct {
	Key     solanago.PrivateKey
	Locator string
}

// Address returns the public address.
func (i *Identity) Address() solanago.PublicKey {
	return i.Key.PublicKey()
}

// identityFile is the persisted layout.
type identityFile struct {
	PublicAddress    string `json:"publicAddress"`
	SecretKeyBytes   []int  `json:"secretKeyBytes"`
	SecretKeyEncoded string `json:"secretKeyEncoded"`
}

// RPC is the node API used for balance queries.
type RPC interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// Submitter sends transfer transactions.
type Submitter interface {
	Submit(ctx context.Context, req submitter.Request) (string, error)
}

// Options configures a Store.
type Options struct {
	Dir        string
	RPC        RPC
	Submitter  Submitter
	FeeReserve uint64
	Logger     logrus.FieldLogger
}

// Store manages identities under a directory.
type Store struct {
	dir        string
	rpc        RPC
	sub        Submitter
	feeReserve uint64
	log        logrus.FieldLogger
	now        func() time.Time
}

// New creates a Store.
func New(opts Options) *Store {
	if opts.FeeReserve == 0 {
		opts.FeeReserve = DefaultFeeReserve
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		dir:        opts.Dir,
		rpc:        opts.RPC,
		sub:        opts.Submitter,
		feeReserve: opts.FeeReserve,
		log:        log.WithField("component", "wallet"),
		now:        time.Now,
	}
}

// Create generates a fresh identity. It is not persisted.
func (s *Store) Create() (*Identity, error) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Identity{Key: key}, nil
}

// Persist writes id to a new file named by creation time and returns its
// locator. Existing files are never overwritten.
func (s *Store) Persist(id *Identity) (string, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("create wallet dir: %w", err)
	}

	secret := []byte(id.Key)
	ints := make([]int, len(secret))
	for i, b := range secret {
		ints[i] = int(b)
	}
	data, err := json.MarshalIndent(identityFile{
		PublicAddress:    id.Address().String(),
		SecretKeyBytes:   ints,
		SecretKeyEncoded: base58.Encode(secret),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal identity: %w", err)
	}

	ts := s.now().UnixMilli()
	for i := 0; i < 1000; i++ {
		path := filepath.Join(s.dir, fmt.Sprintf("%s%d%s", filePrefix, ts+int64(i), fileSuffix))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create identity file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write identity file: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return "", fmt.Errorf("sync identity file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close identity file: %w", err)
		}
		id.Locator = path
		s.log.WithFields(logrus.Fields{"address": id.Address(), "file": path}).Info("identity persisted")
		return path, nil
	}
	return "", fmt.Errorf("no free identity file name near %d", ts)
}

// Load reads an identity and checks that its fields agree.
func (s *Store) Load(locator string) (*Identity, error) {
	data, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse identity %s: %w", locator, err)
	}

	secret, err := base58.Decode(f.SecretKeyEncoded)
	if err != nil {
		return nil, fmt.Errorf("decode secret key %s: %w", locator, err)
	}
	if len(secret) != 64 {
		return nil, fmt.Errorf("%w: %s: secret key is %d bytes", ErrKeyMismatch, locator, len(secret))
	}
	if len(f.SecretKeyBytes) != 0 {
		if len(f.SecretKeyBytes) != len(secret) {
			return nil, fmt.Errorf("%w: %s: byte array length differs", ErrKeyMismatch, locator)
		}
		for i, b := range f.SecretKeyBytes {
			if b != int(secret[i]) {
				return nil, fmt.Errorf("%w: %s: byte array differs from encoded key", ErrKeyMismatch, locator)
			}
		}
	}

	key := solanago.PrivateKey(secret)
	if f.PublicAddress != "" && key.PublicKey().String() != f.PublicAddress {
		return nil, fmt.Errorf("%w: %s: public address does not match key", ErrKeyMismatch, locator)
	}
	return &Identity{Key: key, Locator: locator}, nil
}

// FindPrior lists persisted identities newest first by modification time,
// leaving out exclude.
func (s *Store) FindPrior(exclude string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	type entry struct {
		path string
		mod  time.Time
	}
	entries := make([]entry, 0, len(paths))
	for _, p := range paths {
		if exclude != "" && filepath.Clean(p) == filepath.Clean(exclude) {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		entries = append(entries, entry{path: p, mod: info.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].mod.Equal(entries[j].mod) {
			return entries[i].mod.After(entries[j].mod)
		}
		return strings.Compare(entries[i].path, entries[j].path) > 0
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out, nil
}

// NativeBalance returns the lamport balance of address.
func (s *Store) NativeBalance(ctx context.Context, address solanago.PublicKey) (uint64, error) {
	bal, err := s.rpc.GetBalance(ctx, address.String())
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", address, err)
	}
	return bal, nil
}

// TokenBalance returns owner's balance of mint in base units. A missing token
// account is a zero balance.
func (s *Store) TokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (uint64, error) {
	ata, err := pumpfun.DeriveAssociatedAccountAddress(owner, mint)
	if err != nil {
		return 0, err
	}
	info, err := s.rpc.GetAccountInfo(ctx, ata.String())
	if err != nil {
		return 0, fmt.Errorf("token account %s: %w", ata, err)
	}
	if info == nil {
		return 0, nil
	}
	data, err := info.DecodeData()
	if err != nil {
		return 0, fmt.Errorf("decode token account %s: %w", ata, err)
	}
	return solana.ParseTokenAccountAmount(data)
}

// TransferAll moves from's balance minus the fee reserve to to. It fails with
// an InsufficientFundsError when nothing would be left to send.
func (s *Store) TransferAll(ctx context.Context, from *Identity, to solanago.PublicKey) (string, uint64, error) {
	bal, err := s.NativeBalance(ctx, from.Address())
	if err != nil {
		return "", 0, err
	}
	if bal <= s.feeReserve {
		return "", 0, &domain.InsufficientFundsError{
			Address:   from.Address().String(),
			Have:      bal,
			Need:      s.feeReserve + 1,
			Operation: "transfer",
		}
	}
	amount := bal - s.feeReserve

	ix := system.NewTransferInstruction(amount, from.Address(), to).Build()
	sig, err := s.sub.Submit(ctx, submitter.Request{
		Label:        "transfer",
		Instructions: []solanago.Instruction{ix},
		Payer:        from.Key,
	})
	if err != nil {
		return "", 0, err
	}

	s.log.WithFields(logrus.Fields{
		"from":      from.Address(),
		"to":        to,
		"lamports":  amount,
		"signature": sig,
	}).Info("funds transferred")
	return sig, amount, nil
}
