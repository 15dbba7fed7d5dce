package orders

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus uint8

const (
	// StatusPending is reserved and never entered by the current entry
	// points; orders are created directly as paid.
	StatusPending OrderStatus = iota
	StatusPaid
	StatusConfirmed
	StatusCompleted
	StatusCancelled
)

var statusNames = [...]string{
	StatusPending:   "Pending",
	StatusPaid:      "Paid",
	StatusConfirmed: "Confirmed",
	StatusCompleted: "Completed",
	StatusCancelled: "Cancelled",
}

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	return int(s) < len(statusNames)
}

func (s OrderStatus) String() string {
	if !s.Valid() {
		return "Unknown(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

// ParseStatus accepts either the status name (case-insensitive) or its numeric
// value.
func ParseStatus(raw string) (OrderStatus, error) {
	trimmed := strings.TrimSpace(raw)
	for i, name := range statusNames {
		if strings.EqualFold(trimmed, name) {
			return OrderStatus(i), nil
		}
	}
	if n, err := strconv.ParseUint(trimmed, 10, 8); err == nil && OrderStatus(n).Valid() {
		return OrderStatus(n), nil
	}
	return 0, fmt.Errorf("%w: unknown order status %q", ErrValidation, raw)
}

// Order is the financial record of a purchase. Only Status changes after
// creation.
type Order struct {
	Buyer     [20]byte
	Total     *big.Int
	Timestamp uint64
	Status    OrderStatus
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Total = cloneBigInt(o.Total)
	return &clone
}

// OrderDetails carries the descriptive line items of an order. It is stored
// separately from Order under the same identifier and never changes.
type OrderDetails struct {
	DeliveryInfo string
	ProductIDs   []string
	ProductNames []string
	Prices       []*big.Int
	Quantities   []*big.Int
}

// Clone returns a deep copy of the details.
func (d *OrderDetails) Clone() *OrderDetails {
	if d == nil {
		return nil
	}
	return &OrderDetails{
		DeliveryInfo: d.DeliveryInfo,
		ProductIDs:   append([]string(nil), d.ProductIDs...),
		ProductNames: append([]string(nil), d.ProductNames...),
		Prices:       cloneBigInts(d.Prices),
		Quantities:   cloneBigInts(d.Quantities),
	}
}

// ContractState is the singleton record created by Init.
type ContractState struct {
	Owner        [20]byte
	OrderCounter uint64
	PaymentAsset [20]byte
}

// CreateOrderParams is the input to Engine.CreateOrder. Subtotal is trusted
// as supplied; it is not recomputed from the line items.
type CreateOrderParams struct {
	Buyer        [20]byte
	ProductIDs   []string
	ProductNames []string
	Prices       []*big.Int
	Quantities   []*big.Int
	Subtotal     *big.Int
	DeliveryInfo string
}

// Validate checks the structural requirements of a new order.
func (p CreateOrderParams) Validate() error {
	n := len(p.ProductIDs)
	if n == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	if len(p.ProductNames) != n || len(p.Prices) != n || len(p.Quantities) != n {
		return fmt.Errorf("%w: item arrays must have equal length", ErrValidation)
	}
	for i := 0; i < n; i++ {
		if p.Prices[i] == nil || p.Quantities[i] == nil {
			return fmt.Errorf("%w: item %d missing price or quantity", ErrValidation, i)
		}
	}
	if p.Subtotal == nil || p.Subtotal.Sign() <= 0 {
		return fmt.Errorf("%w: subtotal must be positive", ErrValidation)
	}
	if p.DeliveryInfo == "" {
		return fmt.Errorf("%w: delivery info must not be empty", ErrValidation)
	}
	return nil
}

func (p CreateOrderParams) details() *OrderDetails {
	return &OrderDetails{
		DeliveryInfo: p.DeliveryInfo,
		ProductIDs:   append([]string(nil), p.ProductIDs...),
		ProductNames: append([]string(nil), p.ProductNames...),
		Prices:       cloneBigInts(p.Prices),
		Quantities:   cloneBigInts(p.Quantities),
	}
}

const (
	// DefaultTransactionFee is the flat fee added to every order subtotal.
	DefaultTransactionFee = 10_000_000
	// DefaultCancellationWindow is how long, in seconds, a buyer may cancel a
	// paid order.
	DefaultCancellationWindow uint64 = 300
)

// Params holds the tunable constants of the contract.
type Params struct {
	TransactionFee     *big.Int
	CancellationWindow uint64
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	return Params{
		TransactionFee:     big.NewInt(DefaultTransactionFee),
		CancellationWindow: DefaultCancellationWindow,
	}
}

// Validate ensures the parameters are usable.
func (p Params) Validate() error {
	if p.TransactionFee == nil || p.TransactionFee.Sign() < 0 {
		return fmt.Errorf("orders: transaction fee must be non-negative")
	}
	if p.TransactionFee.Cmp(maxAmount) > 0 {
		return fmt.Errorf("orders: transaction fee out of range")
	}
	if p.CancellationWindow == 0 {
		return fmt.Errorf("orders: cancellation window must be positive")
	}
	return nil
}

// maxAmount bounds totals to the signed 128-bit range of the payment asset.
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func cloneBigInts(values []*big.Int) []*big.Int {
	if values == nil {
		return nil
	}
	out := make([]*big.Int, len(values))
	for i, v := range values {
		if v != nil {
			out[i] = new(big.Int).Set(v)
		}
	}
	return out
}
