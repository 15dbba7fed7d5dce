// Package genesis loads the initial ledger state: the chain identifier and
// the payment assets with their opening balances.
package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"chowfast/core/state"
	"chowfast/crypto"
)

// Spec is the decoded genesis document.
type Spec struct {
	ChainID     uint64      `yaml:"chainId"`
	GenesisTime string      `yaml:"genesisTime,omitempty"`
	Tokens      []TokenSpec `yaml:"tokens"`

	genesisTimestamp time.Time
}

// TokenSpec registers a payment asset and credits its opening balances.
type TokenSpec struct {
	Symbol   string            `yaml:"symbol"`
	Name     string            `yaml:"name"`
	Decimals uint8             `yaml:"decimals"`
	Balances map[string]string `yaml:"balances,omitempty"`

	allocations []Allocation
}

// Allocation is a validated opening balance.
type Allocation struct {
	Account [20]byte
	Amount  *big.Int
}

// Load reads and validates the genesis document at path.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// Parse decodes a YAML genesis document. Unknown fields are rejected.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time, or the zero time when the
// document omits it.
func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Allocations returns the validated balances ordered by account.
func (t *TokenSpec) Allocations() []Allocation {
	out := make([]Allocation, len(t.allocations))
	for i, alloc := range t.allocations {
		out[i] = Allocation{Account: alloc.Account, Amount: new(big.Int).Set(alloc.Amount)}
	}
	return out
}

func (s *Spec) validate() error {
	if s.ChainID == 0 {
		return errors.New("chainId must be set")
	}
	if raw := strings.TrimSpace(s.GenesisTime); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("genesisTime: %w", err)
		}
		s.genesisTimestamp = ts.UTC()
	}
	if len(s.Tokens) == 0 {
		return errors.New("at least one token is required")
	}
	seen := make(map[string]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		tok := &s.Tokens[i]
		tok.Symbol = state.NormalizeSymbol(tok.Symbol)
		if tok.Symbol == "" {
			return fmt.Errorf("tokens[%d]: symbol required", i)
		}
		if _, dup := seen[tok.Symbol]; dup {
			return fmt.Errorf("tokens[%d]: duplicate symbol %s", i, tok.Symbol)
		}
		seen[tok.Symbol] = struct{}{}
		tok.Name = norm.NFC.String(strings.TrimSpace(tok.Name))
		if tok.Name == "" {
			return fmt.Errorf("token %s: name required", tok.Symbol)
		}
		allocs, err := parseBalances(tok.Balances)
		if err != nil {
			return fmt.Errorf("token %s: %w", tok.Symbol, err)
		}
		tok.allocations = allocs
	}
	return nil
}

func parseBalances(balances map[string]string) ([]Allocation, error) {
	allocs := make([]Allocation, 0, len(balances))
	for addr, rawAmount := range balances {
		account, err := crypto.ParseAccount(strings.TrimSpace(addr))
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", addr, err)
		}
		amount, err := parseAmount(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", addr, err)
		}
		allocs = append(allocs, Allocation{Account: account, Amount: amount})
	}
	sort.Slice(allocs, func(i, j int) bool {
		return bytes.Compare(allocs[i].Account[:], allocs[j].Account[:]) < 0
	})
	for i := 1; i < len(allocs); i++ {
		if allocs[i].Account == allocs[i-1].Account {
			return nil, fmt.Errorf("duplicate balance for %s", crypto.FormatAddress(allocs[i].Account))
		}
	}
	return allocs, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
