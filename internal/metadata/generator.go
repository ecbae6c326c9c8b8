// Package metadata supplies asset names, symbols and metadata URIs.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/pumpfun"
)

// Generator produces metadata for a new asset.
type Generator interface {
	Generate(ctx context.Context) (domain.AssetMetadata, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context) (domain.AssetMetadata, error)

func (f GeneratorFunc) Generate(ctx context.Context) (domain.AssetMetadata, error) { return f(ctx) }

// ErrEmptyPool is returned when a pool has no entries.
var ErrEmptyPool = errors.New("metadata pool is empty")

// PoolGenerator draws name, symbol and URI from configured pools. Entries
// with the same index are used together when pools have equal length.
type PoolGenerator struct {
	names   []string
	symbols []string
	uris    []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPoolGenerator creates a PoolGenerator. A nil rnd is seeded from the clock.
func NewPoolGenerator(names, symbols, uris []string, rnd *rand.Rand) *PoolGenerator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &PoolGenerator{names: names, symbols: symbols, uris: uris, rnd: rnd}
}

// Generate picks an entry. Failures are wrapped in *domain.GenerationError.
func (g *PoolGenerator) Generate(ctx context.Context) (domain.AssetMetadata, error) {
	if err := ctx.Err(); err != nil {
		return domain.AssetMetadata{}, &domain.GenerationError{Err: err}
	}
	if len(g.names) == 0 || len(g.uris) == 0 {
		return domain.AssetMetadata{}, &domain.GenerationError{Err: ErrEmptyPool}
	}

	g.mu.Lock()
	i := g.rnd.Intn(len(g.names))
	g.mu.Unlock()

	md := domain.AssetMetadata{
		Name:        g.names[i],
		Symbol:      pick(g.symbols, i),
		MetadataURI: pick(g.uris, i),
	}
	if md.Symbol == "" {
		md.Symbol = SymbolFromName(md.Name)
	}
	if err := pumpfun.ValidateMetadata(md.Name, md.Symbol, md.MetadataURI); err != nil {
		return domain.AssetMetadata{}, &domain.GenerationError{Err: err}
	}
	return md, nil
}

// pick returns pool[i] when the pools line up, otherwise pool[i % len].
func pick(pool []string, i int) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[i%len(pool)]
}

// SymbolFromName derives an upper-case ticker from the letters of name.
func SymbolFromName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == pumpfun.MaxSymbolLen {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "TKN"
	}
	return b.String()
}

// Static always returns md. Useful for dry runs.
func Static(md domain.AssetMetadata) Generator {
	return GeneratorFunc(func(context.Context) (domain.AssetMetadata, error) {
		if err := pumpfun.ValidateMetadata(md.Name, md.Symbol, md.MetadataURI); err != nil {
			return domain.AssetMetadata{}, &domain.GenerationError{Err: fmt.Errorf("static metadata: %w", err)}
		}
		return md, nil
	})
}
