package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chowfast/core/events"
	"chowfast/core/state"
	"chowfast/core/types"
	"chowfast/crypto"
	"chowfast/native/orders"
	"chowfast/native/token"
	"chowfast/observability"
)

// maxAuthorizations bounds the signatures attached to one invocation.
const maxAuthorizations = 8

// signerSet is the set of accounts that signed the running invocation.
type signerSet map[[20]byte]struct{}

func (s signerSet) RequireAuth(addr [20]byte) error {
	if _, ok := s[addr]; ok {
		return nil
	}
	return fmt.Errorf("missing signature from %s", crypto.FormatAddress(addr))
}

// custodyAuthorizer extends the signer set with the contract's own account.
// It is only handed to the payment asset the contract drives, so refunds and
// withdrawals can leave custody while owner and buyer checks still demand a
// real signature.
type custodyAuthorizer struct {
	signers signerSet
	custody [20]byte
}

func (c custodyAuthorizer) RequireAuth(addr [20]byte) error {
	if addr == c.custody {
		return nil
	}
	return c.signers.RequireAuth(addr)
}

// tokenAssets resolves the contract's payment asset to a token ledger.
type tokenAssets struct {
	manager *state.Manager
	auth    token.Authorizer
	emitter events.Emitter
}

func (a tokenAssets) Asset(id [20]byte) (orders.PaymentAsset, error) {
	return token.LedgerForAddress(id, a.manager, a.auth, a.emitter)
}

// execution carries everything a method handler needs for one invocation.
// All writes land on manager, which wraps a working copy of the state trie.
type execution struct {
	ctx     context.Context
	node    *Node
	manager *state.Manager
	signers signerSet
	events  *events.Buffer
	now     uint64
}

func (x *execution) engine() *orders.Engine {
	engine := orders.NewEngine()
	engine.SetState(x.manager)
	engine.SetAuthorizer(x.signers)
	engine.SetAssets(tokenAssets{
		manager: x.manager,
		auth:    custodyAuthorizer{signers: x.signers, custody: CustodyAddress},
		emitter: x.events,
	})
	engine.SetCustodyAddress(CustodyAddress)
	engine.SetParams(x.node.params)
	engine.SetNowFunc(func() uint64 { return x.now })
	engine.SetEmitter(x.events)
	return engine
}

// Invoke executes a signed invocation. The state change, nonce consumption
// and notifications are applied together when the method succeeds; on any
// error the ledger is left exactly as it was.
func (n *Node) Invoke(ctx context.Context, inv types.Invocation) (*types.Receipt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx, span := n.tracer.Start(ctx, "ledger.invoke",
		trace.WithAttributes(attribute.String("ledger.method", inv.Method)))
	defer span.End()

	n.mu.Lock()
	receipt, err := n.invokeLocked(ctx, &inv)
	n.mu.Unlock()

	outcome := "committed"
	if err != nil {
		outcome = ErrorReason(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		n.logger.Debug("invocation rejected",
			slog.String("method", inv.Method),
			slog.String("reason", outcome),
			slog.String("error", err.Error()))
	} else {
		span.SetAttributes(attribute.Int64("ledger.height", int64(receipt.Height)))
	}
	observability.Ledger().ObserveInvocation(inv.Method, outcome, time.Since(start))
	return receipt, err
}

func (n *Node) invokeLocked(ctx context.Context, inv *types.Invocation) (*types.Receipt, error) {
	if inv.ChainID != n.head.ChainID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrChainIDMismatch, inv.ChainID, n.head.ChainID)
	}
	handler, ok := methods[inv.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, inv.Method)
	}
	args, err := types.CanonicalArgs(inv.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	id, err := inv.ID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	working := n.trie.Copy()
	manager := state.NewManager(working)
	signers, nonces, err := n.verifyAuthorizations(manager, inv, args)
	if err != nil {
		return nil, err
	}

	x := &execution{
		ctx:     ctx,
		node:    n,
		manager: manager,
		signers: signers,
		events:  &events.Buffer{},
		now:     n.ledgerTime(),
	}
	result, err := handler(x, args)
	if err != nil {
		return nil, err
	}
	for signer, nonce := range nonces {
		if err := manager.SetAccountNonce(signer, nonce); err != nil {
			return nil, err
		}
	}
	encodedResult, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	height := n.head.Height + 1
	root, err := working.Commit(height)
	if err != nil {
		return nil, fmt.Errorf("core: commit: %w", err)
	}
	next := n.head
	next.Height, next.Timestamp, next.Root = height, x.now, root
	if err := saveHead(n.db, next); err != nil {
		return nil, fmt.Errorf("core: persist head: %w", err)
	}
	n.trie = working
	n.head = next
	observability.Ledger().SetHead(height, x.now)

	emitted := x.events.Events()
	if _, err := n.events.Append(height, x.now, id, emitted); err != nil {
		// State is already committed. The log height now trails the ledger
		// and NewNode refuses to reopen until it is repaired.
		n.logger.Error("append events failed",
			slog.Uint64("height", height),
			slog.String("invocation", id),
			slog.String("error", err.Error()))
	}
	for _, evt := range emitted {
		observability.Events().RecordEvent(evt.Type)
		if evt.Type == events.TypeTransfer {
			observability.Events().RecordTransfer(evt.Attributes["asset"])
		}
	}
	n.logger.Info("invocation committed",
		slog.String("method", inv.Method),
		slog.Uint64("height", height),
		slog.Int("events", len(emitted)),
		slog.String("root", root.Hex()))

	return &types.Receipt{
		ID:        id,
		Method:    inv.Method,
		Height:    height,
		Timestamp: x.now,
		StateRoot: root.Hex(),
		Result:    encodedResult,
		Events:    emitted,
	}, nil
}

// verifyAuthorizations recovers every signer and checks each carries its
// next nonce. The returned nonces are only written once the method succeeds.
func (n *Node) verifyAuthorizations(manager *state.Manager, inv *types.Invocation, args []byte) (signerSet, map[[20]byte]uint64, error) {
	if len(inv.Auth) > maxAuthorizations {
		return nil, nil, fmt.Errorf("%w: at most %d signatures allowed", ErrInvalidAuthorization, maxAuthorizations)
	}
	signers := make(signerSet, len(inv.Auth))
	nonces := make(map[[20]byte]uint64, len(inv.Auth))
	for i, auth := range inv.Auth {
		signer, err := auth.Recover(inv.ChainID, inv.Method, args)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: auth[%d]: %v", ErrInvalidAuthorization, i, err)
		}
		if _, dup := signers[signer]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate signer %s", ErrInvalidAuthorization, crypto.FormatAddress(signer))
		}
		current, err := manager.AccountNonce(signer)
		if err != nil {
			return nil, nil, err
		}
		if auth.Nonce != current+1 {
			return nil, nil, fmt.Errorf("%w: %s expected %d, got %d", ErrInvalidNonce, crypto.FormatAddress(signer), current+1, auth.Nonce)
		}
		signers[signer] = struct{}{}
		nonces[signer] = auth.Nonce
	}
	return signers, nonces, nil
}

// ErrorReason maps an invocation error to a stable label used in metrics
// and RPC error payloads.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrChainIDMismatch):
		return "chain_id_mismatch"
	case errors.Is(err, ErrUnknownMethod):
		return "unknown_method"
	case errors.Is(err, ErrInvalidArgs):
		return "invalid_args"
	case errors.Is(err, ErrInvalidAuthorization):
		return "invalid_authorization"
	case errors.Is(err, ErrInvalidNonce):
		return "invalid_nonce"
	case errors.Is(err, orders.ErrNotAuthorized), errors.Is(err, token.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, orders.ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, orders.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, orders.ErrValidation), errors.Is(err, token.ErrInvalidAmount):
		return "validation"
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, token.ErrUnknownAsset):
		return "not_found"
	case errors.Is(err, orders.ErrInvalidStateTransition):
		return "invalid_transition"
	case errors.Is(err, orders.ErrWindowExpired):
		return "window_expired"
	case errors.Is(err, orders.ErrNoFunds):
		return "no_funds"
	case errors.Is(err, token.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, token.ErrBalanceOverflow):
		return "overflow"
	default:
		return "failed"
	}
}
