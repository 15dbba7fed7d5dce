package events

import (
	"math/big"
	"testing"
)

func TestTokenSupplyEvent(t *testing.T) {
	evt := TokenSupply{
		Token:  "usdc",
		Total:  big.NewInt(5000),
		Delta:  big.NewInt(250),
		Reason: SupplyReasonGenesis,
	}.Event()
	if evt == nil {
		t.Fatalf("expected event")
	}
	if evt.Type != TypeTokenSupply {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["token"] != "USDC" {
		t.Fatalf("unexpected token attr: %s", evt.Attributes["token"])
	}
	if evt.Attributes["total"] != "5000" || evt.Attributes["delta"] != "250" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["reason"] != SupplyReasonGenesis {
		t.Fatalf("unexpected reason: %s", evt.Attributes["reason"])
	}
}

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestBufferKeepsOrderAndCopies(t *testing.T) {
	var buf Buffer
	buf.Emit(Transfer{Asset: "usdc", From: [20]byte{1}, To: [20]byte{2}, Amount: big.NewInt(10)})
	buf.Emit(bareEvent{})
	buf.Emit(TokenSupply{Token: "usdc", Total: big.NewInt(10)})

	got := buf.Events()
	if len(got) != 2 || buf.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != TypeTransfer || got[1].Type != TypeTokenSupply {
		t.Fatalf("unexpected order: %s, %s", got[0].Type, got[1].Type)
	}
	if got[0].Attributes["amount"] != "10" || got[0].Attributes["asset"] != "USDC" {
		t.Fatalf("unexpected transfer attrs: %+v", got[0].Attributes)
	}
	got[0].Attributes["amount"] = "mutated"
	if buf.Events()[0].Attributes["amount"] != "10" {
		t.Fatalf("buffer shares attribute maps with callers")
	}
}
