package genesis

import (
	"fmt"

	"chowfast/core/events"
	"chowfast/core/state"
	"chowfast/native/token"
)

// Apply registers every token and mints its opening balances onto manager.
// Supply notifications are delivered to emitter.
func Apply(spec *Spec, manager *state.Manager, emitter events.Emitter) error {
	if spec == nil {
		return fmt.Errorf("genesis: spec required")
	}
	if manager == nil {
		return fmt.Errorf("genesis: state manager required")
	}
	for i := range spec.Tokens {
		tok := &spec.Tokens[i]
		if err := manager.RegisterToken(tok.Symbol, tok.Name, tok.Decimals, token.AssetAddress(tok.Symbol)); err != nil {
			return fmt.Errorf("genesis: register %s: %w", tok.Symbol, err)
		}
		// Minting performs no authorization, so no authorizer is bound.
		ledger, err := token.NewLedger(tok.Symbol, manager, nil, emitter)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		for _, alloc := range tok.allocations {
			if err := ledger.Mint(alloc.Account, alloc.Amount); err != nil {
				return fmt.Errorf("genesis: mint %s: %w", tok.Symbol, err)
			}
		}
	}
	return nil
}
