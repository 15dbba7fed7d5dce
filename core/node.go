package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel/trace"

	"chowfast/core/events"
	"chowfast/core/genesis"
	"chowfast/core/state"
	"chowfast/native/orders"
	"chowfast/observability"
	telemetry "chowfast/observability/otel"
	"chowfast/storage"
	"chowfast/storage/eventlog"
	"chowfast/storage/trie"
)

// GenesisInvocationID tags the notifications produced while applying genesis.
const GenesisInvocationID = "genesis"

// CustodyAddress is the account holding buyer funds on behalf of the orders
// contract. No key controls it; the contract moves funds out of it.
var CustodyAddress = deriveAddress("chowfast/orders/custody")

func deriveAddress(label string) [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte(label))[12:])
	return out
}

// Options tunes a Node. The zero value uses the default contract parameters,
// the wall clock and the default slog logger.
type Options struct {
	// ChainID, when non-zero, must match the chain id recorded at genesis.
	ChainID uint64
	// Params are pinned into the ledger at genesis. On an existing ledger
	// they must match the pinned values; leave TransactionFee nil to adopt
	// whatever the ledger recorded.
	Params orders.Params
	Clock   func() time.Time
	Logger  *slog.Logger
}

// Node is the ledger host. It owns the state trie and the notification log
// and runs invocations one at a time.
type Node struct {
	db     storage.Database
	events *eventlog.Log
	params orders.Params
	clock  func() time.Time
	logger *slog.Logger
	tracer trace.Tracer

	mu   sync.Mutex
	trie *trie.Trie
	head head
}

// NewNode opens the ledger stored in db. A fresh database is initialised from
// spec; an existing one ignores spec apart from checking its chain id.
func NewNode(db storage.Database, log *eventlog.Log, spec *genesis.Spec, opts Options) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database required")
	}
	if log == nil {
		return nil, errors.New("core: event log required")
	}
	if opts.Params.TransactionFee != nil {
		if err := opts.Params.Validate(); err != nil {
			return nil, err
		}
	}
	n := &Node{
		db:     db,
		events: log,
		clock:  opts.Clock,
		logger: opts.Logger,
		tracer: telemetry.Tracer(),
	}
	if n.clock == nil {
		n.clock = time.Now
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	n.logger = n.logger.With(slog.String("component", "ledger"))

	stored, ok, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	if !ok {
		params := opts.Params
		if params.TransactionFee == nil {
			params = orders.DefaultParams()
		}
		if err := n.applyGenesis(spec, opts.ChainID, params); err != nil {
			return nil, err
		}
		return n, nil
	}
	if opts.ChainID != 0 && opts.ChainID != stored.ChainID {
		return nil, fmt.Errorf("core: configured chain id %d does not match stored chain id %d", opts.ChainID, stored.ChainID)
	}
	if spec != nil && spec.ChainID != stored.ChainID {
		return nil, fmt.Errorf("core: genesis chain id %d does not match stored chain id %d", spec.ChainID, stored.ChainID)
	}
	params, err := n.resolveParams(stored, opts.Params)
	if err != nil {
		return nil, err
	}
	if logged, ok := log.Height(); !ok || logged != stored.Height {
		return nil, fmt.Errorf("%w: log at height %d (recorded %t), ledger at %d",
			ErrEventLogBehind, logged, ok, stored.Height)
	}
	tr, err := trie.NewTrie(db, stored.Root.Bytes())
	if err != nil {
		return nil, fmt.Errorf("core: open state at %s: %w", stored.Root.Hex(), err)
	}
	n.trie = tr
	n.head = *stored
	n.params = params
	observability.Ledger().SetHead(n.head.Height, n.head.Timestamp)
	n.logger.Info("ledger opened",
		slog.Uint64("chainId", n.head.ChainID),
		slog.Uint64("height", n.head.Height),
		slog.String("root", n.head.Root.Hex()))
	return n, nil
}

// resolveParams returns the pinned contract parameters of an existing ledger.
// A head written before parameters were pinned adopts the configured ones.
func (n *Node) resolveParams(stored *head, configured orders.Params) (orders.Params, error) {
	if stored.TransactionFee == "" {
		params := configured
		if params.TransactionFee == nil {
			params = orders.DefaultParams()
		}
		stored.pin(params)
		if err := saveHead(n.db, *stored); err != nil {
			return orders.Params{}, err
		}
		n.logger.Warn("pinned contract params on existing ledger",
			slog.String("transactionFee", stored.TransactionFee),
			slog.Uint64("cancellationWindow", stored.CancellationWindow))
		return params, nil
	}
	pinned, err := stored.params()
	if err != nil {
		return orders.Params{}, err
	}
	if configured.TransactionFee != nil && !sameParams(pinned, configured) {
		return orders.Params{}, fmt.Errorf("%w: configured fee %s window %ds, ledger has fee %s window %ds",
			ErrParamsMismatch, configured.TransactionFee, configured.CancellationWindow,
			pinned.TransactionFee, pinned.CancellationWindow)
	}
	return pinned, nil
}

func (n *Node) applyGenesis(spec *genesis.Spec, chainID uint64, params orders.Params) error {
	if spec == nil {
		return errors.New("core: genesis spec required for a fresh database")
	}
	if chainID != 0 && chainID != spec.ChainID {
		return fmt.Errorf("core: configured chain id %d does not match genesis chain id %d", chainID, spec.ChainID)
	}
	if _, ok := n.events.Height(); ok {
		return fmt.Errorf("%w: event log already holds entries for another ledger", ErrEventLogBehind)
	}
	tr, err := trie.NewTrie(n.db, nil)
	if err != nil {
		return err
	}
	buf := &events.Buffer{}
	if err := genesis.Apply(spec, state.NewManager(tr), buf); err != nil {
		return err
	}
	root, err := tr.Commit(0)
	if err != nil {
		return fmt.Errorf("core: commit genesis: %w", err)
	}
	ts := n.wallclock()
	if gt := spec.GenesisTimestamp(); !gt.IsZero() && gt.Unix() > 0 {
		ts = uint64(gt.Unix())
	}
	h := head{ChainID: spec.ChainID, Height: 0, Timestamp: ts, Root: root}
	h.pin(params)
	if err := saveHead(n.db, h); err != nil {
		return err
	}
	n.trie = tr
	n.head = h
	n.params = params
	if _, err := n.events.Append(0, ts, GenesisInvocationID, buf.Events()); err != nil {
		return fmt.Errorf("core: record genesis events: %w", err)
	}
	observability.Ledger().SetHead(0, ts)
	n.logger.Info("genesis applied",
		slog.Uint64("chainId", h.ChainID),
		slog.String("transactionFee", h.TransactionFee),
		slog.Uint64("cancellationWindow", h.CancellationWindow),
		slog.Int("tokens", len(spec.Tokens)),
		slog.String("root", root.Hex()))
	return nil
}

func (n *Node) wallclock() uint64 {
	now := n.clock().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

// ledgerTime never runs backwards, even if the wall clock does.
func (n *Node) ledgerTime() uint64 {
	now := n.wallclock()
	if now < n.head.Timestamp {
		return n.head.Timestamp
	}
	return now
}

// ChainID returns the chain identifier recorded at genesis.
func (n *Node) ChainID() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head.ChainID
}

// Params returns the contract parameters pinned in the ledger.
func (n *Node) Params() orders.Params {
	p := n.params
	if p.TransactionFee != nil {
		p.TransactionFee = new(big.Int).Set(p.TransactionFee)
	}
	return p
}
