package main

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"chowfast/core"
)

func runOrdersCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, ordersUsage())
		return 1
	}
	switch args[0] {
	case "init":
		return runOrdersInit(args[1:], stdout, stderr)
	case "create":
		return runOrdersCreate(args[1:], stdout, stderr)
	case "set-status":
		return runOrdersSetStatus(args[1:], stdout, stderr)
	case "cancel":
		return runOrdersCancel(args[1:], stdout, stderr)
	case "withdraw":
		return runOrdersWithdraw(args[1:], stdout, stderr)
	case "transfer-ownership":
		return runOrdersTransferOwnership(args[1:], stdout, stderr)
	case "get":
		return runOrdersByID("orders_getOrder", args[1:], stdout, stderr)
	case "details":
		return runOrdersByID("orders_getOrderDetails", args[1:], stdout, stderr)
	case "owner":
		return runQuery("orders_owner", nil, stdout, stderr)
	case "total":
		return runQuery("orders_totalOrders", nil, stdout, stderr)
	case "params":
		return runQuery("orders_params", nil, stdout, stderr)
	case "payment-asset":
		return runQuery("orders_paymentAsset", nil, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown orders subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, ordersUsage())
		return 1
	}
}

func ordersUsage() string {
	return strings.Join([]string{
		"Usage: chow-cli orders <subcommand> [flags]",
		"  init --owner ADDR --asset SYMBOL --key FILE",
		"  create --item ID:NAME:PRICE:QTY [--item ...] [--subtotal N] [--delivery TEXT] [--buyer ADDR] --key FILE",
		"  set-status --order ID --status NAME --key FILE",
		"  cancel --order ID --key FILE",
		"  withdraw --key FILE",
		"  transfer-ownership --new-owner ADDR --key FILE",
		"  get --order ID | details --order ID",
		"  owner | total | params | payment-asset",
	}, "\n")
}

func runOrdersInit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("orders init", stderr)
	var sf signingFlags
	var owner, asset string
	fs.StringVar(&owner, "owner", "", "contract owner account")
	fs.StringVar(&asset, "asset", "", "payment token symbol")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(owner) == "" {
		return printError(stderr, "--owner is required")
	}
	if strings.TrimSpace(asset) == "" {
		return printError(stderr, "--asset is required")
	}
	return submit(core.MethodInit, core.InitArgs{Owner: owner, PaymentAsset: asset}, sf, stdout, stderr)
}

// lineItem is one ID:NAME:PRICE:QTY entry. NAME may itself contain colons.
type lineItem struct {
	id       string
	name     string
	price    *big.Int
	quantity *big.Int
}

func parseLineItem(raw string) (lineItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 4 {
		return lineItem{}, fmt.Errorf("item %q: expected ID:NAME:PRICE:QTY", raw)
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(parts[len(parts)-2]), 10)
	if !ok || price.Sign() < 0 {
		return lineItem{}, fmt.Errorf("item %q: invalid price", raw)
	}
	qty, ok := new(big.Int).SetString(strings.TrimSpace(parts[len(parts)-1]), 10)
	if !ok || qty.Sign() <= 0 {
		return lineItem{}, fmt.Errorf("item %q: invalid quantity", raw)
	}
	return lineItem{
		id:       strings.TrimSpace(parts[0]),
		name:     strings.Join(parts[1:len(parts)-2], ":"),
		price:    price,
		quantity: qty,
	}, nil
}

func runOrdersCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("orders create", stderr)
	var sf signingFlags
	var items stringList
	var buyer, subtotal, delivery string
	fs.Var(&items, "item", "line item as ID:NAME:PRICE:QTY (repeatable)")
	fs.StringVar(&buyer, "buyer", "", "buyer account (defaults to the first --key)")
	fs.StringVar(&subtotal, "subtotal", "", "order subtotal (defaults to the sum of price*qty)")
	fs.StringVar(&delivery, "delivery", "", "delivery information")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if len(items) == 0 {
		return printError(stderr, "at least one --item is required")
	}
	createArgs := core.CreateOrderArgs{DeliveryInfo: delivery}
	sum := new(big.Int)
	for _, raw := range items {
		item, err := parseLineItem(raw)
		if err != nil {
			return printError(stderr, err.Error())
		}
		createArgs.ProductIDs = append(createArgs.ProductIDs, item.id)
		createArgs.ProductNames = append(createArgs.ProductNames, item.name)
		createArgs.Prices = append(createArgs.Prices, item.price.String())
		createArgs.Quantities = append(createArgs.Quantities, item.quantity.String())
		sum.Add(sum, new(big.Int).Mul(item.price, item.quantity))
	}
	createArgs.Subtotal = strings.TrimSpace(subtotal)
	if createArgs.Subtotal == "" {
		createArgs.Subtotal = sum.String()
	}
	createArgs.Buyer = strings.TrimSpace(buyer)
	if createArgs.Buyer == "" {
		if len(sf.keys) == 0 {
			return printError(stderr, "--buyer or --key is required")
		}
		key, err := loadSigner(sf.keys[0])
		if err != nil {
			return printError(stderr, err.Error())
		}
		createArgs.Buyer = key.PubKey().Address().String()
	}
	return submit(core.MethodCreateOrder, createArgs, sf, stdout, stderr)
}

func runOrdersSetStatus(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("orders set-status", stderr)
	var sf signingFlags
	var orderID uint64
	var status string
	fs.Uint64Var(&orderID, "order", 0, "order id")
	fs.StringVar(&status, "status", "", "new status name or code")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if orderID == 0 {
		return printError(stderr, "--order is required")
	}
	if strings.TrimSpace(status) == "" {
		return printError(stderr, "--status is required")
	}
	return submit(core.MethodUpdateOrderStatus, core.UpdateOrderStatusArgs{OrderID: orderID, Status: status}, sf, stdout, stderr)
}

func runOrdersCancel(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("orders cancel", stderr)
	var sf signingFlags
	var orderID uint64
	fs.Uint64Var(&orderID, "order", 0, "order id")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if orderID == 0 {
		return printError(stderr, "--order is required")
	}
	return submit(core.MethodCancelOrder, core.CancelOrderArgs{OrderID: orderID}, sf, stdout, stderr)
}

func runOrdersWithdraw(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("orders withdraw", stderr)
	var sf signingFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return submit(core.MethodWithdraw, struct{}{}, sf, stdout, stderr)
}

func runOrdersTransferOwnership(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("orders transfer-ownership", stderr)
	var sf signingFlags
	var newOwner string
	fs.StringVar(&newOwner, "new-owner", "", "account receiving ownership")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(newOwner) == "" {
		return printError(stderr, "--new-owner is required")
	}
	return submit(core.MethodTransferOwnership, core.TransferOwnershipArgs{NewOwner: newOwner}, sf, stdout, stderr)
}

func runOrdersByID(method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(method, stderr)
	var orderID uint64
	fs.Uint64Var(&orderID, "order", 0, "order id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if orderID == 0 {
		return printError(stderr, "--order is required")
	}
	return runQuery(method, map[string]uint64{"orderId": orderID}, stdout, stderr)
}
