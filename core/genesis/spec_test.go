package genesis

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"chowfast/core/events"
	"chowfast/core/state"
	"chowfast/crypto"
	"chowfast/native/token"
	"chowfast/storage"
	"chowfast/storage/trie"
)

var (
	alice = [20]byte{0x01}
	bob   = [20]byte{0x02}
)

func sampleYAML() string {
	return fmt.Sprintf(`chainId: 4242
genesisTime: "2024-05-01T00:00:00Z"
tokens:
  - symbol: usdc
    name: "USD Coin"
    decimals: 7
    balances:
      %s: "20000000"
      %s: "5"
`, crypto.FormatAddress(bob), crypto.FormatAddress(alice))
}

func TestParseGenesis(t *testing.T) {
	spec, err := Parse([]byte(sampleYAML()))
	require.NoError(t, err)
	require.Equal(t, uint64(4242), spec.ChainID)
	require.Equal(t, int64(1714521600), spec.GenesisTimestamp().Unix())
	require.Len(t, spec.Tokens, 1)
	require.Equal(t, "USDC", spec.Tokens[0].Symbol)

	allocs := spec.Tokens[0].Allocations()
	require.Len(t, allocs, 2)
	require.Equal(t, alice, allocs[0].Account)
	require.Equal(t, int64(5), allocs[0].Amount.Int64())
	require.Equal(t, bob, allocs[1].Account)
}

func TestParseGenesisNormalizesName(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9 under NFC.
	raw := "chainId: 1\ntokens:\n  - symbol: caf\n    name: \"Cafe\u0301 Credit\"\n    decimals: 2\n"
	spec, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "Caf\u00e9 Credit", spec.Tokens[0].Name)
}

func TestParseGenesisRejects(t *testing.T) {
	addr := crypto.FormatAddress(alice)
	tests := []struct {
		name string
		raw  string
	}{
		{name: "missing chain id", raw: "tokens:\n  - {symbol: A, name: A}\n"},
		{name: "no tokens", raw: "chainId: 1\n"},
		{name: "bad time", raw: "chainId: 1\ngenesisTime: yesterday\ntokens:\n  - {symbol: A, name: A}\n"},
		{name: "duplicate symbol", raw: "chainId: 1\ntokens:\n  - {symbol: a, name: A}\n  - {symbol: A, name: B}\n"},
		{name: "empty name", raw: "chainId: 1\ntokens:\n  - {symbol: A, name: \" \"}\n"},
		{name: "unknown field", raw: "chainId: 1\nextra: true\ntokens:\n  - {symbol: A, name: A}\n"},
		{name: "bad address", raw: "chainId: 1\ntokens:\n  - symbol: A\n    name: A\n    balances: {nope: \"1\"}\n"},
		{name: "zero amount", raw: fmt.Sprintf("chainId: 1\ntokens:\n  - symbol: A\n    name: A\n    balances: {%s: \"0\"}\n", addr)},
		{name: "fractional amount", raw: fmt.Sprintf("chainId: 1\ntokens:\n  - symbol: A\n    name: A\n    balances: {%s: \"1.5\"}\n", addr)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			require.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML()), 0o600))
	spec, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(4242), spec.ChainID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyMintsBalances(t *testing.T) {
	spec, err := Parse([]byte(sampleYAML()))
	require.NoError(t, err)

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	manager := state.NewManager(tr)

	buf := &events.Buffer{}
	require.NoError(t, Apply(spec, manager, buf))

	meta, err := manager.Token("USDC")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "USD Coin", meta.Name)
	require.Equal(t, uint8(7), meta.Decimals)
	require.Equal(t, token.AssetAddress("USDC"), meta.Address)
	require.Equal(t, "20000005", meta.Supply.String())

	bal, err := manager.Balance(bob[:], "USDC")
	require.NoError(t, err)
	require.Equal(t, "20000000", bal.String())

	emitted := buf.Events()
	require.Len(t, emitted, 2)
	require.Equal(t, events.TypeTokenSupply, emitted[0].Type)

	// A second application collides with the registered token.
	require.Error(t, Apply(spec, manager, nil))
}
