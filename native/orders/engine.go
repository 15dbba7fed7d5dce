package orders

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"chowfast/core/events"
	"chowfast/core/types"
)

type engineState interface {
	OrdersContract() (*ContractState, bool, error)
	SetOrdersContract(*ContractState) error
	OrderPut(id uint64, order *Order) error
	OrderGet(id uint64) (*Order, bool, error)
	OrderDetailsPut(id uint64, details *OrderDetails) error
	OrderDetailsGet(id uint64) (*OrderDetails, bool, error)
}

// Authorizer answers whether an address has approved the running invocation.
type Authorizer interface {
	RequireAuth(addr [20]byte) error
}

// PaymentAsset is the fungible-asset ledger holding buyer funds.
type PaymentAsset interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	Balance(account [20]byte) (*big.Int, error)
}

// AssetResolver looks up the payment asset ledger by its identity.
type AssetResolver interface {
	Asset(id [20]byte) (PaymentAsset, error)
}

type orderEvent struct {
	evt *types.Event
}

func (e orderEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e orderEvent) Event() *types.Event { return e.evt }

// Engine implements the order escrow contract. A fresh engine is wired for
// every invocation; the host is responsible for running invocations one at a
// time and discarding all writes when an entry point returns an error.
type Engine struct {
	state   engineState
	auth    Authorizer
	assets  AssetResolver
	custody [20]byte
	params  Params
	emitter events.Emitter
	nowFn   func() uint64
}

// NewEngine creates an engine with default parameters and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		params:  DefaultParams(),
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAuthorizer configures the source of caller approvals.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.auth = auth }

// SetAssets configures the payment asset lookup.
func (e *Engine) SetAssets(assets AssetResolver) { e.assets = assets }

// SetCustodyAddress sets the contract's own account, which holds buyer funds.
func (e *Engine) SetCustodyAddress(addr [20]byte) { e.custody = addr }

// SetParams overrides the fee and cancellation window.
func (e *Engine) SetParams(p Params) {
	if p.TransactionFee == nil {
		p.TransactionFee = big.NewInt(DefaultTransactionFee)
	}
	e.params = p
}

// SetNowFunc overrides the ledger time source (seconds).
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(orderEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) requireAuth(addr [20]byte) error {
	if e.auth == nil {
		return errNilAuth
	}
	if err := e.auth.RequireAuth(addr); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAuthorized, err)
	}
	return nil
}

func (e *Engine) loadContract() (*ContractState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	contract, ok, err := e.state.OrdersContract()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return contract, nil
}

func (e *Engine) paymentAsset(contract *ContractState) (PaymentAsset, error) {
	if e.assets == nil {
		return nil, errNilAssets
	}
	return e.assets.Asset(contract.PaymentAsset)
}

// orderCounter returns zero before Init so read accessors report NotFound
// rather than failing on an uninitialised contract.
func (e *Engine) orderCounter() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	contract, ok, err := e.state.OrdersContract()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return contract.OrderCounter, nil
}

func checkRange(id, counter uint64) error {
	if id == 0 || id > counter {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func (e *Engine) loadOrder(id, counter uint64) (*Order, error) {
	if err := checkRange(id, counter); err != nil {
		return nil, err
	}
	order, ok, err := e.state.OrderGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return order, nil
}

// Init records the owner and payment asset. It can only succeed once, and
// the owner must approve it.
func (e *Engine) Init(owner, paymentAsset [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.OrdersContract(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if err := e.requireAuth(owner); err != nil {
		return err
	}
	return e.state.SetOrdersContract(&ContractState{
		Owner:        owner,
		OrderCounter: 0,
		PaymentAsset: paymentAsset,
	})
}

// CreateOrder captures subtotal plus the transaction fee from the buyer into
// custody and records a new paid order. It returns the assigned identifier.
func (e *Engine) CreateOrder(p CreateOrderParams) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := e.requireAuth(p.Buyer); err != nil {
		return 0, err
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	total := new(big.Int).Add(p.Subtotal, e.params.TransactionFee)
	if total.Cmp(maxAmount) > 0 {
		return 0, fmt.Errorf("%w: order total out of range", ErrValidation)
	}
	contract, err := e.loadContract()
	if err != nil {
		return 0, err
	}
	if contract.OrderCounter == math.MaxUint64 {
		return 0, fmt.Errorf("%w: order counter exhausted", ErrValidation)
	}
	asset, err := e.paymentAsset(contract)
	if err != nil {
		return 0, err
	}
	if err := asset.Transfer(p.Buyer, e.custody, total); err != nil {
		return 0, fmt.Errorf("orders: capture payment: %w", err)
	}

	id := contract.OrderCounter + 1
	order := &Order{
		Buyer:     p.Buyer,
		Total:     total,
		Timestamp: e.now(),
		Status:    StatusPaid,
	}
	if err := e.state.OrderPut(id, order); err != nil {
		return 0, err
	}
	if err := e.state.OrderDetailsPut(id, p.details()); err != nil {
		return 0, err
	}
	contract.OrderCounter = id
	if err := e.state.SetOrdersContract(contract); err != nil {
		return 0, err
	}
	e.emit(NewOrderCreatedEvent(id, order))
	return id, nil
}

// UpdateOrderStatus lets the owner move an order to any status unless it has
// been cancelled. No funds move.
func (e *Engine) UpdateOrderStatus(id uint64, status OrderStatus) error {
	contract, err := e.loadContract()
	if err != nil {
		return err
	}
	if err := e.requireAuth(contract.Owner); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %d", ErrValidation, status)
	}
	order, err := e.loadOrder(id, contract.OrderCounter)
	if err != nil {
		return err
	}
	if err := ValidateTransition(order.Status, status, ActorOperator); err != nil {
		return err
	}
	order.Status = status
	if err := e.state.OrderPut(id, order); err != nil {
		return err
	}
	e.emit(NewStatusChangedEvent(id, status))
	return nil
}

// CancelOrder refunds the full total to the buyer when the order is still
// paid and the cancellation window has not elapsed. Only the buyer can
// cancel; the owner's approval does not substitute.
func (e *Engine) CancelOrder(id uint64) error {
	counter, err := e.orderCounter()
	if err != nil {
		return err
	}
	order, err := e.loadOrder(id, counter)
	if err != nil {
		return err
	}
	if err := e.requireAuth(order.Buyer); err != nil {
		return err
	}
	if err := ValidateTransition(order.Status, StatusCancelled, ActorBuyer); err != nil {
		return err
	}
	now := e.now()
	var elapsed uint64
	if now > order.Timestamp {
		elapsed = now - order.Timestamp
	}
	if elapsed > e.params.CancellationWindow {
		return fmt.Errorf("%w: %ds since creation", ErrWindowExpired, elapsed)
	}
	contract, err := e.loadContract()
	if err != nil {
		return err
	}
	asset, err := e.paymentAsset(contract)
	if err != nil {
		return err
	}

	order.Status = StatusCancelled
	if err := e.state.OrderPut(id, order); err != nil {
		return err
	}
	if err := asset.Transfer(e.custody, order.Buyer, order.Total); err != nil {
		return fmt.Errorf("orders: refund: %w", err)
	}
	e.emit(NewOrderCancelledEvent(id, order.Buyer))
	return nil
}

// Withdraw sweeps the entire custody balance to the owner, including funds
// of orders that are still inside their cancellation window.
func (e *Engine) Withdraw() error {
	contract, err := e.loadContract()
	if err != nil {
		return err
	}
	if err := e.requireAuth(contract.Owner); err != nil {
		return err
	}
	asset, err := e.paymentAsset(contract)
	if err != nil {
		return err
	}
	balance, err := asset.Balance(e.custody)
	if err != nil {
		return err
	}
	if balance == nil || balance.Sign() <= 0 {
		return ErrNoFunds
	}
	if err := asset.Transfer(e.custody, contract.Owner, balance); err != nil {
		return fmt.Errorf("orders: withdraw: %w", err)
	}
	e.emit(NewWithdrawalEvent(contract.Owner, balance))
	return nil
}

// TransferOwnership hands the owner role to newOwner. Both parties must
// approve.
func (e *Engine) TransferOwnership(newOwner [20]byte) error {
	contract, err := e.loadContract()
	if err != nil {
		return err
	}
	if err := e.requireAuth(contract.Owner); err != nil {
		return err
	}
	if err := e.requireAuth(newOwner); err != nil {
		return err
	}
	previous := contract.Owner
	contract.Owner = newOwner
	if err := e.state.SetOrdersContract(contract); err != nil {
		return err
	}
	e.emit(NewOwnershipTransferredEvent(previous, newOwner))
	return nil
}

// Owner returns the current owner.
func (e *Engine) Owner() ([20]byte, error) {
	contract, err := e.loadContract()
	if err != nil {
		return [20]byte{}, err
	}
	return contract.Owner, nil
}

// TotalOrders returns the number of orders ever created.
func (e *Engine) TotalOrders() (uint64, error) {
	return e.orderCounter()
}

// PaymentAsset returns the identity of the payment asset.
func (e *Engine) PaymentAsset() ([20]byte, error) {
	contract, err := e.loadContract()
	if err != nil {
		return [20]byte{}, err
	}
	return contract.PaymentAsset, nil
}

// Order returns a copy of the order record.
func (e *Engine) Order(id uint64) (*Order, error) {
	counter, err := e.orderCounter()
	if err != nil {
		return nil, err
	}
	order, err := e.loadOrder(id, counter)
	if err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// OrderDetails returns a copy of the order's line items.
func (e *Engine) OrderDetails(id uint64) (*OrderDetails, error) {
	counter, err := e.orderCounter()
	if err != nil {
		return nil, err
	}
	if err := checkRange(id, counter); err != nil {
		return nil, err
	}
	details, ok, err := e.state.OrderDetailsGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return details.Clone(), nil
}
