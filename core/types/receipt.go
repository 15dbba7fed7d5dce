package types

import "encoding/json"

// Receipt describes a committed invocation.
type Receipt struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Height    uint64          `json:"height"`
	Timestamp uint64          `json:"timestamp"`
	StateRoot string          `json:"stateRoot"`
	Result    json.RawMessage `json:"result,omitempty"`
	Events    []Event         `json:"events"`
}
