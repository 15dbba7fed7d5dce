package orders

import (
	"math/big"
	"reflect"
	"testing"

	"chowfast/crypto"
)

func TestEventPayloads(t *testing.T) {
	buyer := newTestAddress(0x02)
	owner := newTestAddress(0x01)
	next := newTestAddress(0x09)

	tests := []struct {
		name string
		got  map[string]string
		want map[string]string
	}{
		{
			name: "created",
			got: NewOrderCreatedEvent(4, &Order{
				Buyer: buyer, Total: big.NewInt(10_002_000), Timestamp: 1_700_000_000, Status: StatusPaid,
			}).Attributes,
			want: map[string]string{
				"orderId":   "4",
				"buyer":     crypto.FormatAddress(buyer),
				"total":     "10002000",
				"timestamp": "1700000000",
			},
		},
		{
			name: "status",
			got:  NewStatusChangedEvent(4, StatusCompleted).Attributes,
			want: map[string]string{"orderId": "4", "status": "Completed"},
		},
		{
			name: "cancelled",
			got:  NewOrderCancelledEvent(4, buyer).Attributes,
			want: map[string]string{"orderId": "4", "buyer": crypto.FormatAddress(buyer)},
		},
		{
			name: "withdrawal",
			got:  NewWithdrawalEvent(owner, big.NewInt(77)).Attributes,
			want: map[string]string{"owner": crypto.FormatAddress(owner), "amount": "77"},
		},
		{
			name: "ownership",
			got:  NewOwnershipTransferredEvent(owner, next).Attributes,
			want: map[string]string{
				"previousOwner": crypto.FormatAddress(owner),
				"newOwner":      crypto.FormatAddress(next),
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !reflect.DeepEqual(tc.got, tc.want) {
				t.Fatalf("attributes mismatch:\n got %v\nwant %v", tc.got, tc.want)
			}
		})
	}

	if evt := NewOrderCreatedEvent(1, nil); evt.Type != EventTypeOrderCreated || evt.Attributes["orderId"] != "1" {
		t.Fatalf("unexpected nil-order event: %+v", evt)
	}
}
