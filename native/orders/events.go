package orders

import (
	"math/big"
	"strconv"

	"chowfast/core/types"
	"chowfast/crypto"
)

const (
	EventTypeOrderCreated         = "orders.created"
	EventTypeOrderStatusChanged   = "orders.status"
	EventTypeOrderCancelled       = "orders.cancelled"
	EventTypeWithdrawal           = "orders.withdrawal"
	EventTypeOwnershipTransferred = "orders.ownership_transferred"
)

// NewOrderCreatedEvent returns the canonical payload for a newly paid order.
func NewOrderCreatedEvent(id uint64, o *Order) *types.Event {
	attrs := map[string]string{"orderId": formatID(id)}
	if o != nil {
		attrs["buyer"] = crypto.FormatAddress(o.Buyer)
		attrs["total"] = cloneBigInt(o.Total).String()
		attrs["timestamp"] = strconv.FormatUint(o.Timestamp, 10)
	}
	return &types.Event{Type: EventTypeOrderCreated, Attributes: attrs}
}

// NewStatusChangedEvent returns the payload emitted by UpdateOrderStatus.
func NewStatusChangedEvent(id uint64, status OrderStatus) *types.Event {
	return &types.Event{Type: EventTypeOrderStatusChanged, Attributes: map[string]string{
		"orderId": formatID(id),
		"status":  status.String(),
	}}
}

// NewOrderCancelledEvent returns the payload emitted when a buyer cancels.
func NewOrderCancelledEvent(id uint64, buyer [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOrderCancelled, Attributes: map[string]string{
		"orderId": formatID(id),
		"buyer":   crypto.FormatAddress(buyer),
	}}
}

// NewWithdrawalEvent returns the payload emitted when the owner sweeps custody.
func NewWithdrawalEvent(owner [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeWithdrawal, Attributes: map[string]string{
		"owner":  crypto.FormatAddress(owner),
		"amount": cloneBigInt(amount).String(),
	}}
}

// NewOwnershipTransferredEvent returns the payload emitted on a handover.
func NewOwnershipTransferredEvent(previous, next [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnershipTransferred, Attributes: map[string]string{
		"previousOwner": crypto.FormatAddress(previous),
		"newOwner":      crypto.FormatAddress(next),
	}}
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }
