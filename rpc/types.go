package rpc

import (
	"encoding/json"
	"net/http"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeNotFound       = -32004
	codeConflict       = -32009
	codeRateLimited    = -32020
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// ErrorData is attached to errors raised by the ledger.
type ErrorData struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// OrderResult is the wire form of an order record.
type OrderResult struct {
	OrderID   uint64 `json:"orderId"`
	Buyer     string `json:"buyer"`
	Total     string `json:"total"`
	Timestamp uint64 `json:"timestamp"`
	Status    string `json:"status"`
}

// OrderDetailsResult is the wire form of an order's line items.
type OrderDetailsResult struct {
	OrderID      uint64   `json:"orderId"`
	DeliveryInfo string   `json:"deliveryInfo"`
	ProductIDs   []string `json:"productIds"`
	ProductNames []string `json:"productNames"`
	Prices       []string `json:"prices"`
	Quantities   []string `json:"quantities"`
}

// TokenResult describes a registered token.
type TokenResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	Address  string `json:"address"`
	Supply   string `json:"supply"`
}

// BalanceResult is returned by token_balance.
type BalanceResult struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// NonceResult is returned by account_nonce. Next is the nonce the account's
// next authorization must carry.
type NonceResult struct {
	Account string `json:"account"`
	Nonce   uint64 `json:"nonce"`
	Next    uint64 `json:"next"`
}

// ParamsResult is returned by orders_params.
type ParamsResult struct {
	TransactionFee            string `json:"transactionFee"`
	CancellationWindowSeconds uint64 `json:"cancellationWindowSeconds"`
	CustodyAddress            string `json:"custodyAddress"`
}

// OrderParams addresses a single order.
type OrderParams struct {
	OrderID uint64 `json:"orderId"`
}

// TokenParams addresses a token by symbol.
type TokenParams struct {
	Asset string `json:"asset"`
}

// BalanceParams addresses an account balance.
type BalanceParams struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
}

// AccountParams addresses an account.
type AccountParams struct {
	Account string `json:"account"`
}

// EventsParams pages through the notification log.
type EventsParams struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit"`
}

// OrderEventsParams pages through one order's notifications.
type OrderEventsParams struct {
	OrderID uint64 `json:"orderId"`
	Limit   int    `json:"limit"`
}
