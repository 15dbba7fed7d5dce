package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"chowfast/core"
	"chowfast/core/state"
	"chowfast/core/types"
	"chowfast/crypto"
	"chowfast/native/orders"
)

var invocationMethods = func() map[string]bool {
	out := make(map[string]bool)
	for _, m := range core.Methods() {
		out[m] = true
	}
	return out
}()

type queryHandler func(s *Server, req *RPCRequest) (interface{}, *callError)

var queryMethods = map[string]queryHandler{
	"chain_status":           handleChainStatus,
	"orders_owner":           handleOwner,
	"orders_totalOrders":     handleTotalOrders,
	"orders_getOrder":        handleGetOrder,
	"orders_getOrderDetails": handleGetOrderDetails,
	"orders_paymentAsset":    handlePaymentAsset,
	"orders_params":          handleParams,
	"token_info":             handleTokenInfo,
	"token_balance":          handleTokenBalance,
	"account_nonce":          handleAccountNonce,
	"events_list":            handleEventsList,
	"events_byOrder":         handleEventsByOrder,
}

// decodeParam decodes the single object parameter of a call. Calls whose
// parameter is optional pass optional=true and accept an empty list.
func decodeParam(req *RPCRequest, dst interface{}, optional bool) *callError {
	if len(req.Params) == 0 {
		if optional {
			return nil
		}
		return invalidParams("%s expects one parameter object", req.Method)
	}
	if len(req.Params) != 1 {
		return invalidParams("%s expects one parameter object", req.Method)
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidParams("invalid params: %v", err)
	}
	return nil
}

func parseAccountParam(field, raw string) ([20]byte, *callError) {
	addr, err := crypto.ParseAccount(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, invalidParams("invalid %s: %v", field, err)
	}
	return addr, nil
}

// firstSigner recovers the account behind the first authorization. Unsigned
// or unverifiable invocations are never cached; Invoke rejects them anyway.
func firstSigner(inv *types.Invocation) (string, bool) {
	if len(inv.Auth) == 0 {
		return "", false
	}
	args, err := types.CanonicalArgs(inv.Args)
	if err != nil {
		return "", false
	}
	signer, err := inv.Auth[0].Recover(inv.ChainID, inv.Method, args)
	if err != nil {
		return "", false
	}
	return crypto.FormatAddress(signer), true
}

func (s *Server) handleInvoke(r *http.Request, req *RPCRequest) (interface{}, *callError) {
	subject, err := s.auth.authenticate(r)
	if err != nil {
		s.logger.Warn("rpc auth rejected",
			slog.String("method", req.Method),
			slog.String("error", err.Error()))
		return nil, &callError{status: http.StatusUnauthorized, code: codeUnauthorized, message: "unauthorized", data: err.Error()}
	}
	var inv types.Invocation
	if callErr := decodeParam(req, &inv, false); callErr != nil {
		return nil, callErr
	}
	if inv.Method == "" {
		inv.Method = req.Method
	}
	if inv.Method != req.Method {
		return nil, invalidParams("invocation method %q does not match call %q", inv.Method, req.Method)
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	var storeKey, digest string
	signer, signed := firstSigner(&inv)
	if key != "" && signed && s.cfg.Idempotency != nil {
		var compact bytes.Buffer
		if err := json.Compact(&compact, req.Params[0]); err != nil {
			return nil, invalidParams("invalid params: %v", err)
		}
		storeKey = idempotencyKey(subject, signer, req.Method, key)
		digest = paramsDigest(compact.Bytes())
		record, ok, err := s.cfg.Idempotency.Get(storeKey, s.now())
		if err != nil {
			s.logger.Error("idempotency lookup failed", slog.String("error", err.Error()))
			return nil, &callError{status: http.StatusInternalServerError, code: codeServerError, message: "internal error"}
		}
		if ok {
			if record.Digest != digest {
				return nil, &callError{status: http.StatusConflict, code: codeConflict, message: ErrIdempotencyConflict.Error(), data: &ErrorData{Reason: "idempotency_conflict"}}
			}
			return record.Result, nil
		}
	}

	receipt, err := s.node.Invoke(r.Context(), inv)
	if err != nil {
		return nil, fromLedger(err)
	}
	if storeKey != "" {
		encoded, err := json.Marshal(receipt)
		if err == nil {
			now := s.now()
			err = s.cfg.Idempotency.Put(storeKey, IdempotencyRecord{
				Digest:    digest,
				Result:    encoded,
				StoredAt:  now,
				ExpiresAt: now.Add(s.cfg.IdempotencyTTL),
			})
		}
		if err != nil {
			s.logger.Warn("idempotency persist failed",
				slog.String("method", req.Method),
				slog.String("error", err.Error()))
		}
	}
	return receipt, nil
}

func handleChainStatus(s *Server, req *RPCRequest) (interface{}, *callError) {
	if len(req.Params) > 0 {
		return nil, invalidParams("%s takes no parameters", req.Method)
	}
	return s.node.Status(), nil
}

func handleOwner(s *Server, req *RPCRequest) (interface{}, *callError) {
	owner, err := s.node.Owner()
	if err != nil {
		return nil, fromLedger(err)
	}
	return crypto.FormatAddress(owner), nil
}

func handleTotalOrders(s *Server, req *RPCRequest) (interface{}, *callError) {
	total, err := s.node.TotalOrders()
	if err != nil {
		return nil, fromLedger(err)
	}
	return total, nil
}

func handleGetOrder(s *Server, req *RPCRequest) (interface{}, *callError) {
	var params OrderParams
	if callErr := decodeParam(req, &params, false); callErr != nil {
		return nil, callErr
	}
	order, err := s.node.Order(params.OrderID)
	if err != nil {
		return nil, fromLedger(err)
	}
	return formatOrder(params.OrderID, order), nil
}

func handleGetOrderDetails(s *Server, req *RPCRequest) (interface{}, *callError) {
	var params OrderParams
	if callErr := decodeParam(req, &params, false); callErr != nil {
		return nil, callErr
	}
	details, err := s.node.OrderDetails(params.OrderID)
	if err != nil {
		return nil, fromLedger(err)
	}
	return formatOrderDetails(params.OrderID, details), nil
}

func handlePaymentAsset(s *Server, req *RPCRequest) (interface{}, *callError) {
	meta, err := s.node.PaymentAsset()
	if err != nil {
		return nil, fromLedger(err)
	}
	return formatToken(meta), nil
}

func handleParams(s *Server, req *RPCRequest) (interface{}, *callError) {
	p := s.node.Params()
	return ParamsResult{
		TransactionFee:            p.TransactionFee.String(),
		CancellationWindowSeconds: p.CancellationWindow,
		CustodyAddress:            crypto.FormatAddress(core.CustodyAddress),
	}, nil
}

func handleTokenInfo(s *Server, req *RPCRequest) (interface{}, *callError) {
	var params TokenParams
	if callErr := decodeParam(req, &params, false); callErr != nil {
		return nil, callErr
	}
	meta, err := s.node.TokenInfo(params.Asset)
	if err != nil {
		return nil, fromLedger(err)
	}
	return formatToken(meta), nil
}

func handleTokenBalance(s *Server, req *RPCRequest) (interface{}, *callError) {
	var params BalanceParams
	if callErr := decodeParam(req, &params, false); callErr != nil {
		return nil, callErr
	}
	account, callErr := parseAccountParam("account", params.Account)
	if callErr != nil {
		return nil, callErr
	}
	balance, err := s.node.TokenBalance(params.Asset, account)
	if err != nil {
		return nil, fromLedger(err)
	}
	return BalanceResult{
		Asset:   state.NormalizeSymbol(params.Asset),
		Account: crypto.FormatAddress(account),
		Balance: balance.String(),
	}, nil
}

func handleAccountNonce(s *Server, req *RPCRequest) (interface{}, *callError) {
	var params AccountParams
	if callErr := decodeParam(req, &params, false); callErr != nil {
		return nil, callErr
	}
	account, callErr := parseAccountParam("account", params.Account)
	if callErr != nil {
		return nil, callErr
	}
	nonce, err := s.node.AccountNonce(account)
	if err != nil {
		return nil, fromLedger(err)
	}
	return NonceResult{Account: crypto.FormatAddress(account), Nonce: nonce, Next: nonce + 1}, nil
}

func handleEventsList(s *Server, req *RPCRequest) (interface{}, *callError) {
	var params EventsParams
	if callErr := decodeParam(req, &params, true); callErr != nil {
		return nil, callErr
	}
	if params.Limit < 0 {
		return nil, invalidParams("limit must not be negative")
	}
	entries, err := s.node.Events(params.From, params.Limit)
	if err != nil {
		return nil, fromLedger(err)
	}
	return entries, nil
}

func handleEventsByOrder(s *Server, req *RPCRequest) (interface{}, *callError) {
	var params OrderEventsParams
	if callErr := decodeParam(req, &params, false); callErr != nil {
		return nil, callErr
	}
	if params.Limit < 0 {
		return nil, invalidParams("limit must not be negative")
	}
	entries, err := s.node.OrderEvents(params.OrderID, params.Limit)
	if err != nil {
		return nil, fromLedger(err)
	}
	return entries, nil
}

func formatOrder(id uint64, order *orders.Order) OrderResult {
	return OrderResult{
		OrderID:   id,
		Buyer:     crypto.FormatAddress(order.Buyer),
		Total:     amountString(order.Total),
		Timestamp: order.Timestamp,
		Status:    order.Status.String(),
	}
}

func formatOrderDetails(id uint64, details *orders.OrderDetails) OrderDetailsResult {
	return OrderDetailsResult{
		OrderID:      id,
		DeliveryInfo: details.DeliveryInfo,
		ProductIDs:   details.ProductIDs,
		ProductNames: details.ProductNames,
		Prices:       amountStrings(details.Prices),
		Quantities:   amountStrings(details.Quantities),
	}
}

func formatToken(meta *state.TokenMetadata) TokenResult {
	return TokenResult{
		Symbol:   meta.Symbol,
		Name:     meta.Name,
		Decimals: meta.Decimals,
		Address:  fmt.Sprintf("0x%x", meta.Address),
		Supply:   amountString(meta.Supply),
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func amountStrings(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = amountString(v)
	}
	return out
}
