package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"chowfast/native/orders"
	"chowfast/storage"
)

var headKey = []byte("chowfast:head")

// head is the committed tip of the ledger. The contract parameters are fixed
// at genesis and carried forward unchanged.
type head struct {
	ChainID   uint64      `json:"chainId"`
	Height    uint64      `json:"height"`
	Timestamp uint64      `json:"timestamp"`
	Root      common.Hash `json:"root"`

	TransactionFee     string `json:"transactionFee"`
	CancellationWindow uint64 `json:"cancellationWindow"`
}

func (h head) params() (orders.Params, error) {
	fee, ok := new(big.Int).SetString(h.TransactionFee, 10)
	if !ok {
		return orders.Params{}, fmt.Errorf("core: stored transaction fee %q is not an integer", h.TransactionFee)
	}
	p := orders.Params{TransactionFee: fee, CancellationWindow: h.CancellationWindow}
	if err := p.Validate(); err != nil {
		return orders.Params{}, fmt.Errorf("core: stored params: %w", err)
	}
	return p, nil
}

func (h *head) pin(p orders.Params) {
	h.TransactionFee = p.TransactionFee.String()
	h.CancellationWindow = p.CancellationWindow
}

func sameParams(a, b orders.Params) bool {
	return a.CancellationWindow == b.CancellationWindow && a.TransactionFee.Cmp(b.TransactionFee) == 0
}

func loadHead(db storage.Database) (*head, bool, error) {
	raw, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var h head
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, false, fmt.Errorf("decode head: %w", err)
	}
	return &h, true, nil
}

func saveHead(db storage.Database, h head) error {
	encoded, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return db.Put(headKey, encoded)
}
