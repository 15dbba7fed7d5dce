package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"chowfast/native/orders"
	"chowfast/storage"
	"chowfast/storage/trie"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	return NewManager(tr)
}

func TestKeyFormats(t *testing.T) {
	if string(OrdersContractKey()) != "orders/contract" {
		t.Fatalf("unexpected contract key: %s", OrdersContractKey())
	}
	if string(OrderKey(42)) != "orders/order/42" {
		t.Fatalf("unexpected order key: %s", OrderKey(42))
	}
	if string(OrderDetailsKey(42)) != "orders/details/42" {
		t.Fatalf("unexpected details key: %s", OrderDetailsKey(42))
	}
	if string(AccountNonceKey([]byte{0xaa, 0xbb})) != "accounts/nonce/aabb" {
		t.Fatalf("unexpected nonce key: %s", AccountNonceKey([]byte{0xaa, 0xbb}))
	}
}

func TestTokenRegistry(t *testing.T) {
	mgr := newTestManager(t)
	addr := [20]byte{0xEE}

	require.NoError(t, mgr.RegisterToken(" usdc ", "USD Coin", 7, addr))
	require.Error(t, mgr.RegisterToken("USDC", "Again", 7, [20]byte{0x01}))
	require.Error(t, mgr.RegisterToken("EURC", "Euro Coin", 7, addr))
	require.Error(t, mgr.RegisterToken("", "Empty", 7, [20]byte{0x02}))

	meta, err := mgr.Token("usdc")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "USDC", meta.Symbol)
	require.Equal(t, addr, meta.Address)
	require.Equal(t, 0, meta.Supply.Sign())

	symbol, ok, err := mgr.TokenSymbolByAddress(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "USDC", symbol)

	_, ok, err = mgr.TokenSymbolByAddress([20]byte{0x99})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.SetTokenSupply("USDC", big.NewInt(500)))
	meta, err = mgr.Token("USDC")
	require.NoError(t, err)
	require.Equal(t, int64(500), meta.Supply.Int64())

	list, err := mgr.TokenList()
	require.NoError(t, err)
	require.Equal(t, []string{"USDC"}, list)
}

func TestBalances(t *testing.T) {
	mgr := newTestManager(t)
	account := []byte{0x01, 0x02}

	require.Error(t, mgr.SetBalance(account, "USDC", big.NewInt(1)), "unregistered token")
	require.NoError(t, mgr.RegisterToken("USDC", "USD Coin", 7, [20]byte{0xEE}))
	require.Error(t, mgr.SetBalance(account, "USDC", big.NewInt(-1)))

	bal, err := mgr.Balance(account, "USDC")
	require.NoError(t, err)
	require.Equal(t, 0, bal.Sign())

	require.NoError(t, mgr.SetBalance(account, "usdc", big.NewInt(1234)))
	bal, err = mgr.Balance(account, "USDC")
	require.NoError(t, err)
	require.Equal(t, int64(1234), bal.Int64())
}

func TestOrdersRecords(t *testing.T) {
	mgr := newTestManager(t)

	_, ok, err := mgr.OrdersContract()
	require.NoError(t, err)
	require.False(t, ok)

	contract := &orders.ContractState{Owner: [20]byte{1}, OrderCounter: 3, PaymentAsset: [20]byte{0xEE}}
	require.NoError(t, mgr.SetOrdersContract(contract))
	loaded, ok, err := mgr.OrdersContract()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, *contract, *loaded)

	order := &orders.Order{Buyer: [20]byte{2}, Total: big.NewInt(10_002_000), Timestamp: 99, Status: orders.StatusConfirmed}
	require.NoError(t, mgr.OrderPut(3, order))
	gotOrder, ok, err := mgr.OrderGet(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, order.Buyer, gotOrder.Buyer)
	require.Equal(t, 0, order.Total.Cmp(gotOrder.Total))
	require.Equal(t, orders.StatusConfirmed, gotOrder.Status)
	require.Equal(t, uint64(99), gotOrder.Timestamp)

	_, ok, err = mgr.OrderGet(4)
	require.NoError(t, err)
	require.False(t, ok)

	details := &orders.OrderDetails{
		DeliveryInfo: "Flat 2",
		ProductIDs:   []string{"a", "b"},
		ProductNames: []string{"Suya", "Chapman"},
		Prices:       []*big.Int{big.NewInt(-5), big.NewInt(700)},
		Quantities:   []*big.Int{big.NewInt(1), big.NewInt(3)},
	}
	require.NoError(t, mgr.OrderDetailsPut(3, details))
	gotDetails, ok, err := mgr.OrderDetailsGet(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, details.DeliveryInfo, gotDetails.DeliveryInfo)
	require.Equal(t, details.ProductNames, gotDetails.ProductNames)
	require.Equal(t, int64(-5), gotDetails.Prices[0].Int64())
	require.Equal(t, int64(3), gotDetails.Quantities[1].Int64())
}

func TestAccountNonce(t *testing.T) {
	mgr := newTestManager(t)
	addr := [20]byte{7}

	nonce, err := mgr.AccountNonce(addr)
	require.NoError(t, err)
	require.Zero(t, nonce)

	require.NoError(t, mgr.SetAccountNonce(addr, 5))
	nonce, err = mgr.AccountNonce(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(5), nonce)
}
