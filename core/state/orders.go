package state

import (
	"fmt"
	"math/big"

	"chowfast/native/orders"
)

type storedOrder struct {
	Buyer     [20]byte
	Total     *big.Int
	Timestamp uint64
	Status    uint8
}

// Prices and quantities are stored in decimal form because RLP cannot encode
// negative integers and line items are not range-checked.
type storedOrderDetails struct {
	DeliveryInfo string
	ProductIDs   []string
	ProductNames []string
	Prices       []string
	Quantities   []string
}

// OrdersContract returns the escrow contract singleton.
func (m *Manager) OrdersContract() (*orders.ContractState, bool, error) {
	var contract orders.ContractState
	ok, err := m.KVGet(OrdersContractKey(), &contract)
	if err != nil || !ok {
		return nil, false, err
	}
	return &contract, true, nil
}

// SetOrdersContract overwrites the escrow contract singleton.
func (m *Manager) SetOrdersContract(contract *orders.ContractState) error {
	if contract == nil {
		return fmt.Errorf("orders: nil contract state")
	}
	return m.KVPut(OrdersContractKey(), contract)
}

// OrderPut stores the financial record of an order.
func (m *Manager) OrderPut(id uint64, order *orders.Order) error {
	if order == nil {
		return fmt.Errorf("orders: nil order")
	}
	total := order.Total
	if total == nil {
		total = big.NewInt(0)
	}
	if total.Sign() < 0 {
		return fmt.Errorf("orders: negative total")
	}
	return m.KVPut(OrderKey(id), storedOrder{
		Buyer:     order.Buyer,
		Total:     total,
		Timestamp: order.Timestamp,
		Status:    uint8(order.Status),
	})
}

// OrderGet loads the financial record of an order.
func (m *Manager) OrderGet(id uint64) (*orders.Order, bool, error) {
	var stored storedOrder
	ok, err := m.KVGet(OrderKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if stored.Total == nil {
		stored.Total = big.NewInt(0)
	}
	return &orders.Order{
		Buyer:     stored.Buyer,
		Total:     stored.Total,
		Timestamp: stored.Timestamp,
		Status:    orders.OrderStatus(stored.Status),
	}, true, nil
}

// OrderDetailsPut stores the line items of an order.
func (m *Manager) OrderDetailsPut(id uint64, details *orders.OrderDetails) error {
	if details == nil {
		return fmt.Errorf("orders: nil details")
	}
	return m.KVPut(OrderDetailsKey(id), storedOrderDetails{
		DeliveryInfo: details.DeliveryInfo,
		ProductIDs:   nonNilStrings(details.ProductIDs),
		ProductNames: nonNilStrings(details.ProductNames),
		Prices:       formatInts(details.Prices),
		Quantities:   formatInts(details.Quantities),
	})
}

// OrderDetailsGet loads the line items of an order.
func (m *Manager) OrderDetailsGet(id uint64) (*orders.OrderDetails, bool, error) {
	var stored storedOrderDetails
	ok, err := m.KVGet(OrderDetailsKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	prices, err := parseInts(stored.Prices)
	if err != nil {
		return nil, false, fmt.Errorf("orders: decode prices: %w", err)
	}
	quantities, err := parseInts(stored.Quantities)
	if err != nil {
		return nil, false, fmt.Errorf("orders: decode quantities: %w", err)
	}
	return &orders.OrderDetails{
		DeliveryInfo: stored.DeliveryInfo,
		ProductIDs:   stored.ProductIDs,
		ProductNames: stored.ProductNames,
		Prices:       prices,
		Quantities:   quantities,
	}, true, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func formatInts(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = "0"
			continue
		}
		out[i] = v.String()
	}
	return out
}

func parseInts(values []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, raw := range values {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		out[i] = v
	}
	return out, nil
}
