package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"chowfast/crypto"
	"chowfast/native/orders"
	"chowfast/native/token"
	"chowfast/observability/logging"
)

// Dispatchable methods.
const (
	MethodInit              = "orders_init"
	MethodCreateOrder       = "orders_createOrder"
	MethodUpdateOrderStatus = "orders_updateOrderStatus"
	MethodCancelOrder       = "orders_cancelOrder"
	MethodWithdraw          = "orders_withdraw"
	MethodTransferOwnership = "orders_transferOwnership"
	MethodTokenTransfer     = "token_transfer"
)

type handlerFunc func(x *execution, args []byte) (any, error)

var methods = map[string]handlerFunc{
	MethodInit:              handleInit,
	MethodCreateOrder:       handleCreateOrder,
	MethodUpdateOrderStatus: handleUpdateOrderStatus,
	MethodCancelOrder:       handleCancelOrder,
	MethodWithdraw:          handleWithdraw,
	MethodTransferOwnership: handleTransferOwnership,
	MethodTokenTransfer:     handleTokenTransfer,
}

// Methods returns the dispatchable method names.
func Methods() []string {
	return []string{
		MethodInit,
		MethodCreateOrder,
		MethodUpdateOrderStatus,
		MethodCancelOrder,
		MethodWithdraw,
		MethodTransferOwnership,
		MethodTokenTransfer,
	}
}

// InitArgs are the arguments of orders_init. PaymentAsset is a registered
// token symbol.
type InitArgs struct {
	Owner        string `json:"owner"`
	PaymentAsset string `json:"paymentAsset"`
}

// CreateOrderArgs are the arguments of orders_createOrder. Amounts are
// base-10 integer strings.
type CreateOrderArgs struct {
	Buyer        string   `json:"buyer"`
	ProductIDs   []string `json:"productIds"`
	ProductNames []string `json:"productNames"`
	Prices       []string `json:"prices"`
	Quantities   []string `json:"quantities"`
	Subtotal     string   `json:"subtotal"`
	DeliveryInfo string   `json:"deliveryInfo"`
}

// UpdateOrderStatusArgs are the arguments of orders_updateOrderStatus. Status
// accepts a name ("Confirmed") or its numeric code.
type UpdateOrderStatusArgs struct {
	OrderID uint64 `json:"orderId"`
	Status  string `json:"status"`
}

// CancelOrderArgs are the arguments of orders_cancelOrder.
type CancelOrderArgs struct {
	OrderID uint64 `json:"orderId"`
}

// TransferOwnershipArgs are the arguments of orders_transferOwnership.
type TransferOwnershipArgs struct {
	NewOwner string `json:"newOwner"`
}

// TokenTransferArgs are the arguments of token_transfer.
type TokenTransferArgs struct {
	Asset  string `json:"asset"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// CreateOrderResult is returned by orders_createOrder.
type CreateOrderResult struct {
	OrderID uint64 `json:"orderId"`
	Total   string `json:"total"`
}

// WithdrawResult is returned by orders_withdraw.
type WithdrawResult struct {
	Amount string `json:"amount"`
}

func decodeArgs(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

func parseAccount(field, raw string) ([20]byte, error) {
	addr, err := crypto.ParseAccount(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, field, err)
	}
	return addr, nil
}

func parseInt(field, raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s: invalid integer %q", ErrInvalidArgs, field, raw)
	}
	return value, nil
}

func parseInts(field string, raw []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(raw))
	for i, v := range raw {
		parsed, err := parseInt(fmt.Sprintf("%s[%d]", field, i), v)
		if err != nil {
			return nil, err
		}
		out[i] = parsed
	}
	return out, nil
}

func handleInit(x *execution, raw []byte) (any, error) {
	var args InitArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	owner, err := parseAccount("owner", args.Owner)
	if err != nil {
		return nil, err
	}
	asset := token.AssetAddress(args.PaymentAsset)
	if err := x.engine().Init(owner, asset); err != nil {
		return nil, err
	}
	// Checked after Init so an initialised contract reports that first. The
	// whole invocation is discarded on failure either way.
	meta, err := x.manager.Token(args.PaymentAsset)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %q", token.ErrUnknownAsset, args.PaymentAsset)
	}
	return nil, nil
}

func handleCreateOrder(x *execution, raw []byte) (any, error) {
	var args CreateOrderArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	buyer, err := parseAccount("buyer", args.Buyer)
	if err != nil {
		return nil, err
	}
	prices, err := parseInts("prices", args.Prices)
	if err != nil {
		return nil, err
	}
	quantities, err := parseInts("quantities", args.Quantities)
	if err != nil {
		return nil, err
	}
	subtotal, err := parseInt("subtotal", args.Subtotal)
	if err != nil {
		return nil, err
	}
	engine := x.engine()
	id, err := engine.CreateOrder(orders.CreateOrderParams{
		Buyer:        buyer,
		ProductIDs:   args.ProductIDs,
		ProductNames: args.ProductNames,
		Prices:       prices,
		Quantities:   quantities,
		Subtotal:     subtotal,
		DeliveryInfo: args.DeliveryInfo,
	})
	if err != nil {
		return nil, err
	}
	order, err := engine.Order(id)
	if err != nil {
		return nil, err
	}
	x.node.logger.DebugContext(x.ctx, "order created",
		slog.Uint64("orderId", id),
		slog.String("buyer", crypto.FormatAddress(buyer)),
		logging.MaskField("deliveryInfo", args.DeliveryInfo))
	return CreateOrderResult{OrderID: id, Total: order.Total.String()}, nil
}

func handleUpdateOrderStatus(x *execution, raw []byte) (any, error) {
	var args UpdateOrderStatusArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	status, err := orders.ParseStatus(args.Status)
	if err != nil {
		return nil, err
	}
	return nil, x.engine().UpdateOrderStatus(args.OrderID, status)
}

func handleCancelOrder(x *execution, raw []byte) (any, error) {
	var args CancelOrderArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return nil, x.engine().CancelOrder(args.OrderID)
}

func handleWithdraw(x *execution, raw []byte) (any, error) {
	var args struct{}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	engine := x.engine()
	asset, err := engine.PaymentAsset()
	if err != nil {
		return nil, err
	}
	ledger, err := token.LedgerForAddress(asset, x.manager, nil, nil)
	if err != nil {
		return nil, err
	}
	balance, err := ledger.Balance(CustodyAddress)
	if err != nil {
		return nil, err
	}
	if err := engine.Withdraw(); err != nil {
		return nil, err
	}
	return WithdrawResult{Amount: balance.String()}, nil
}

func handleTransferOwnership(x *execution, raw []byte) (any, error) {
	var args TransferOwnershipArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	newOwner, err := parseAccount("newOwner", args.NewOwner)
	if err != nil {
		return nil, err
	}
	return nil, x.engine().TransferOwnership(newOwner)
}

func handleTokenTransfer(x *execution, raw []byte) (any, error) {
	var args TokenTransferArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	from, err := parseAccount("from", args.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAccount("to", args.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseInt("amount", args.Amount)
	if err != nil {
		return nil, err
	}
	// Plain signers only: custody funds move solely through the contract.
	ledger, err := token.NewLedger(args.Asset, x.manager, x.signers, x.events)
	if err != nil {
		return nil, err
	}
	return nil, ledger.Transfer(from, to, amount)
}
