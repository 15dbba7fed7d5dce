package core

import (
	"fmt"
	"math/big"

	"chowfast/core/state"
	"chowfast/crypto"
	"chowfast/native/orders"
	"chowfast/native/token"
	"chowfast/storage/eventlog"
)

// Status summarises the committed ledger tip.
type Status struct {
	ChainID        uint64 `json:"chainId"`
	Height         uint64 `json:"height"`
	Timestamp      uint64 `json:"timestamp"`
	StateRoot      string `json:"stateRoot"`
	EventSeq       uint64 `json:"eventSeq"`
	EventDigest    string `json:"eventDigest"`
	CustodyAddress string `json:"custodyAddress"`
}

// readEngine returns an engine bound to committed state. Callers hold n.mu.
func (n *Node) readEngine() (*orders.Engine, *state.Manager) {
	manager := state.NewManager(n.trie)
	engine := orders.NewEngine()
	engine.SetState(manager)
	engine.SetParams(n.params)
	return engine, manager
}

// Status reports the committed tip.
func (n *Node) Status() Status {
	n.mu.Lock()
	h := n.head
	n.mu.Unlock()
	seq, digest := n.events.Head()
	return Status{
		ChainID:        h.ChainID,
		Height:         h.Height,
		Timestamp:      h.Timestamp,
		StateRoot:      h.Root.Hex(),
		EventSeq:       seq,
		EventDigest:    digest,
		CustodyAddress: crypto.FormatAddress(CustodyAddress),
	}
}

// Owner returns the contract owner.
func (n *Node) Owner() ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	engine, _ := n.readEngine()
	return engine.Owner()
}

// TotalOrders returns the number of orders created so far.
func (n *Node) TotalOrders() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	engine, _ := n.readEngine()
	return engine.TotalOrders()
}

// Order returns the order record with the given identifier.
func (n *Node) Order(id uint64) (*orders.Order, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	engine, _ := n.readEngine()
	return engine.Order(id)
}

// OrderDetails returns the line items of the given order.
func (n *Node) OrderDetails(id uint64) (*orders.OrderDetails, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	engine, _ := n.readEngine()
	return engine.OrderDetails(id)
}

// PaymentAsset returns the metadata of the contract's payment asset.
func (n *Node) PaymentAsset() (*state.TokenMetadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	engine, manager := n.readEngine()
	asset, err := engine.PaymentAsset()
	if err != nil {
		return nil, err
	}
	symbol, ok, err := manager.TokenSymbolByAddress(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", token.ErrUnknownAsset, asset)
	}
	return manager.Token(symbol)
}

// TokenInfo returns the metadata of a registered token.
func (n *Node) TokenInfo(symbol string) (*state.TokenMetadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	meta, err := state.NewManager(n.trie).Token(symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", token.ErrUnknownAsset, state.NormalizeSymbol(symbol))
	}
	return meta, nil
}

// TokenBalance returns the balance account holds in the given token.
func (n *Node) TokenBalance(symbol string, account [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ledger, err := token.NewLedger(symbol, state.NewManager(n.trie), nil, nil)
	if err != nil {
		return nil, err
	}
	return ledger.Balance(account)
}

// AccountNonce returns the last authorization nonce consumed by account.
// The next invocation it signs must carry this value plus one.
func (n *Node) AccountNonce(account [20]byte) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return state.NewManager(n.trie).AccountNonce(account)
}

// Events pages through the notification log starting at sequence from.
func (n *Node) Events(from uint64, limit int) ([]eventlog.Entry, error) {
	return n.events.List(from, limit)
}

// OrderEvents returns the notifications that reference an order.
func (n *Node) OrderEvents(orderID uint64, limit int) ([]eventlog.Entry, error) {
	return n.events.ByOrder(orderID, limit)
}
