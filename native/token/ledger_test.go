package token

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"chowfast/core/events"
	"chowfast/core/state"
	"chowfast/storage"
	"chowfast/storage/trie"
)

type allowList map[[20]byte]bool

func (a allowList) RequireAuth(addr [20]byte) error {
	if !a[addr] {
		return fmt.Errorf("no approval from %x", addr)
	}
	return nil
}

func newTestLedger(t *testing.T, auth Authorizer) (*Ledger, *state.Manager, *events.Buffer) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	mgr := state.NewManager(tr)
	require.NoError(t, mgr.RegisterToken("USDC", "USD Coin", 7, AssetAddress("USDC")))
	buf := &events.Buffer{}
	ledger, err := NewLedger("usdc", mgr, auth, buf)
	require.NoError(t, err)
	return ledger, mgr, buf
}

func TestAssetAddressIsCaseInsensitive(t *testing.T) {
	require.Equal(t, AssetAddress("usdc"), AssetAddress(" USDC "))
	require.NotEqual(t, AssetAddress("USDC"), AssetAddress("EURC"))
}

func TestMintAndTransfer(t *testing.T) {
	alice, bob := [20]byte{1}, [20]byte{2}
	ledger, mgr, buf := newTestLedger(t, allowList{alice: true})

	require.NoError(t, ledger.Mint(alice, big.NewInt(1000)))
	meta, err := mgr.Token("USDC")
	require.NoError(t, err)
	require.Equal(t, int64(1000), meta.Supply.Int64())

	require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(400)))
	aliceBal, _ := ledger.Balance(alice)
	bobBal, _ := ledger.Balance(bob)
	require.Equal(t, int64(600), aliceBal.Int64())
	require.Equal(t, int64(400), bobBal.Int64())

	got := buf.Events()
	require.Len(t, got, 2)
	require.Equal(t, events.TypeTokenSupply, got[0].Type)
	require.Equal(t, events.TypeTransfer, got[1].Type)
	require.Equal(t, "400", got[1].Attributes["amount"])
}

func TestTransferRejections(t *testing.T) {
	alice, bob := [20]byte{1}, [20]byte{2}
	ledger, _, _ := newTestLedger(t, allowList{alice: true})
	require.NoError(t, ledger.Mint(alice, big.NewInt(100)))
	require.NoError(t, ledger.Mint(bob, big.NewInt(100)))

	err := ledger.Transfer(alice, bob, big.NewInt(101))
	require.True(t, errors.Is(err, ErrInsufficientBalance), "got %v", err)

	err = ledger.Transfer(bob, alice, big.NewInt(1))
	require.True(t, errors.Is(err, ErrNotAuthorized), "got %v", err)

	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-3)} {
		require.ErrorIs(t, ledger.Transfer(alice, bob, amount), ErrInvalidAmount)
	}

	bal, _ := ledger.Balance(alice)
	require.Equal(t, int64(100), bal.Int64())
}

func TestTransferToSelfKeepsBalance(t *testing.T) {
	alice := [20]byte{1}
	ledger, _, _ := newTestLedger(t, allowList{alice: true})
	require.NoError(t, ledger.Mint(alice, big.NewInt(50)))
	require.NoError(t, ledger.Transfer(alice, alice, big.NewInt(50)))
	bal, _ := ledger.Balance(alice)
	require.Equal(t, int64(50), bal.Int64())
}

func TestMintOverflow(t *testing.T) {
	alice := [20]byte{1}
	ledger, _, _ := newTestLedger(t, allowList{})
	ceiling := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.NoError(t, ledger.Mint(alice, ceiling))
	require.ErrorIs(t, ledger.Mint(alice, big.NewInt(1)), ErrBalanceOverflow)
}

func TestLedgerForAddress(t *testing.T) {
	_, mgr, _ := newTestLedger(t, allowList{})
	ledger, err := LedgerForAddress(AssetAddress("USDC"), mgr, allowList{}, nil)
	require.NoError(t, err)
	require.Equal(t, "USDC", ledger.Symbol())

	_, err = LedgerForAddress(AssetAddress("EURC"), mgr, allowList{}, nil)
	require.ErrorIs(t, err, ErrUnknownAsset)
}
