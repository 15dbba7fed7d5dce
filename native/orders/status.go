package orders

import "fmt"

// Actor identifies who is requesting a status change.
type Actor uint8

const (
	// ActorOperator is the contract owner using UpdateOrderStatus.
	ActorOperator Actor = iota + 1
	// ActorBuyer is the order's buyer using CancelOrder.
	ActorBuyer
)

// ValidateTransition is the single place status changes are checked.
//
// The operator may set any status unless the order is already cancelled; it
// may also move an order backwards (e.g. Completed to Confirmed). The buyer
// may only cancel an order that is still Paid.
func ValidateTransition(from, to OrderStatus, actor Actor) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown target status %d", ErrValidation, to)
	}
	switch actor {
	case ActorOperator:
		if from == StatusCancelled {
			return fmt.Errorf("%w: order is cancelled", ErrInvalidStateTransition)
		}
		return nil
	case ActorBuyer:
		if to != StatusCancelled {
			return fmt.Errorf("%w: buyer may only cancel", ErrInvalidStateTransition)
		}
		if from != StatusPaid {
			return fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidStateTransition, from)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown actor", ErrNotAuthorized)
	}
}
