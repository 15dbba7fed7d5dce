package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"chowfast/core"
	"chowfast/core/genesis"
	"chowfast/core/types"
	"chowfast/crypto"
	"chowfast/storage"
	"chowfast/storage/eventlog"
)

const testChainID = 77

type fixture struct {
	t      *testing.T
	node   *core.Node
	server *Server
	owner  *crypto.PrivateKey
	buyer  *crypto.PrivateKey
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func accountOf(key *crypto.PrivateKey) string {
	return key.PubKey().Address().String()
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	log, err := eventlog.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	f := &fixture{t: t, owner: mustKey(t), buyer: mustKey(t)}
	spec, err := genesis.Parse([]byte(fmt.Sprintf(`chainId: %d
tokens:
  - symbol: USDC
    name: USD Coin
    decimals: 7
    balances:
      %s: "100000000"
`, testChainID, accountOf(f.buyer))))
	require.NoError(t, err)

	node, err := core.NewNode(db, log, spec, core.Options{
		Clock:  func() time.Time { return time.Unix(1_700_000_000, 0) },
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	f.node = node

	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	server, err := NewServer(node, cfg)
	require.NoError(t, err)
	f.server = server
	return f
}

func (f *fixture) invocation(method string, args interface{}, signers ...*crypto.PrivateKey) types.Invocation {
	f.t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(f.t, err)
	inv := types.Invocation{ChainID: testChainID, Method: method, Args: raw}
	for _, signer := range signers {
		nonce, err := f.node.AccountNonce(signer.PubKey().Address().Raw())
		require.NoError(f.t, err)
		require.NoError(f.t, inv.Sign(signer, nonce+1))
	}
	return inv
}

type call struct {
	method  string
	params  []interface{}
	headers map[string]string
}

func (f *fixture) do(c call) (*httptest.ResponseRecorder, RPCResponse) {
	f.t.Helper()
	params := make([]json.RawMessage, 0, len(c.params))
	for _, p := range c.params {
		raw, err := json.Marshal(p)
		require.NoError(f.t, err)
		params = append(params, raw)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: c.method, Params: params, ID: 1})
	require.NoError(f.t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:1234"
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	var resp RPCResponse
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func (f *fixture) initContract() {
	f.t.Helper()
	inv := f.invocation(core.MethodInit, core.InitArgs{Owner: accountOf(f.owner), PaymentAsset: "USDC"}, f.owner)
	rec, resp := f.do(call{method: core.MethodInit, params: []interface{}{inv}})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	require.Nil(f.t, resp.Error)
}

func (f *fixture) orderArgs(subtotal string) core.CreateOrderArgs {
	return core.CreateOrderArgs{
		Buyer:        accountOf(f.buyer),
		ProductIDs:   []string{"p1"},
		ProductNames: []string{"Widget"},
		Prices:       []string{"1000"},
		Quantities:   []string{"2"},
		Subtotal:     subtotal,
		DeliveryInfo: "1 Main St",
	}
}

func decodeResult(t *testing.T, resp RPCResponse, dst interface{}) {
	t.Helper()
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func errorReason(t *testing.T, resp RPCResponse) string {
	t.Helper()
	require.NotNil(t, resp.Error)
	data, ok := resp.Error.Data.(map[string]interface{})
	require.True(t, ok, "error data missing: %+v", resp.Error)
	reason, _ := data["reason"].(string)
	return reason
}

func TestChainStatus(t *testing.T) {
	f := newFixture(t, Config{})
	rec, resp := f.do(call{method: "chain_status"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var status core.Status
	decodeResult(t, resp, &status)
	require.Equal(t, uint64(testChainID), status.ChainID)
	require.Zero(t, status.Height)
	require.Equal(t, crypto.FormatAddress(core.CustodyAddress), status.CustodyAddress)
}

func TestOrderFlowOverRPC(t *testing.T) {
	f := newFixture(t, Config{})
	f.initContract()

	inv := f.invocation(core.MethodCreateOrder, f.orderArgs("2000"), f.buyer)
	rec, resp := f.do(call{method: core.MethodCreateOrder, params: []interface{}{inv}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var receipt types.Receipt
	decodeResult(t, resp, &receipt)
	require.Equal(t, uint64(2), receipt.Height)
	var created core.CreateOrderResult
	require.NoError(t, json.Unmarshal(receipt.Result, &created))
	require.Equal(t, uint64(1), created.OrderID)
	require.Equal(t, "10002000", created.Total)

	_, resp = f.do(call{method: "orders_getOrder", params: []interface{}{OrderParams{OrderID: 1}}})
	var order OrderResult
	decodeResult(t, resp, &order)
	require.Equal(t, accountOf(f.buyer), order.Buyer)
	require.Equal(t, "Paid", order.Status)
	require.Equal(t, "10002000", order.Total)

	_, resp = f.do(call{method: "orders_getOrderDetails", params: []interface{}{OrderParams{OrderID: 1}}})
	var details OrderDetailsResult
	decodeResult(t, resp, &details)
	require.Equal(t, []string{"p1"}, details.ProductIDs)
	require.Equal(t, []string{"2"}, details.Quantities)

	_, resp = f.do(call{method: "token_balance", params: []interface{}{BalanceParams{
		Asset:   "usdc",
		Account: crypto.FormatAddress(core.CustodyAddress),
	}}})
	var balance BalanceResult
	decodeResult(t, resp, &balance)
	require.Equal(t, "USDC", balance.Asset)
	require.Equal(t, "10002000", balance.Balance)

	_, resp = f.do(call{method: "account_nonce", params: []interface{}{AccountParams{Account: accountOf(f.buyer)}}})
	var nonce NonceResult
	decodeResult(t, resp, &nonce)
	require.Equal(t, uint64(1), nonce.Nonce)
	require.Equal(t, uint64(2), nonce.Next)

	_, resp = f.do(call{method: "events_byOrder", params: []interface{}{OrderEventsParams{OrderID: 1}}})
	var entries []eventlog.Entry
	decodeResult(t, resp, &entries)
	require.NotEmpty(t, entries)

	_, resp = f.do(call{method: "orders_paymentAsset"})
	var asset TokenResult
	decodeResult(t, resp, &asset)
	require.Equal(t, "USDC", asset.Symbol)
	require.Equal(t, "100000000", asset.Supply)
}

func TestLedgerErrorsMapToCodes(t *testing.T) {
	f := newFixture(t, Config{})

	rec, resp := f.do(call{method: "orders_owner"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, codeConflict, resp.Error.Code)
	require.Equal(t, "not_initialized", errorReason(t, resp))

	f.initContract()

	rec, resp = f.do(call{method: "orders_getOrder", params: []interface{}{OrderParams{OrderID: 9}}})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, codeNotFound, resp.Error.Code)
	require.Equal(t, "not_found", errorReason(t, resp))

	// Buyer signature missing.
	inv := f.invocation(core.MethodCreateOrder, f.orderArgs("2000"), f.owner)
	rec, resp = f.do(call{method: core.MethodCreateOrder, params: []interface{}{inv}})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "not_authorized", errorReason(t, resp))

	inv = f.invocation(core.MethodCreateOrder, f.orderArgs("2000"), f.buyer)
	inv.ChainID = testChainID + 1
	rec, resp = f.do(call{method: core.MethodCreateOrder, params: []interface{}{inv}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "chain_id_mismatch", errorReason(t, resp))
}

func TestRequestShapeErrors(t *testing.T) {
	f := newFixture(t, Config{MaxBodyBytes: 1024})

	rec, resp := f.do(call{method: "orders_nope"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	rec, resp = f.do(call{method: "orders_getOrder"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	rec, resp = f.do(call{method: "orders_getOrder", params: []interface{}{map[string]interface{}{"orderId": 1, "extra": true}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	inv := f.invocation(core.MethodInit, core.InitArgs{Owner: accountOf(f.owner), PaymentAsset: "USDC"}, f.owner)
	rec, resp = f.do(call{method: core.MethodWithdraw, params: []interface{}{inv}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	big := `{"jsonrpc":"2.0","method":"chain_status","id":1,"params":[{"pad":"` + strings.Repeat("x", 2048) + `"}]}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIdempotentReplay(t *testing.T) {
	store, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idem.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := newFixture(t, Config{Idempotency: store, IdempotencyTTL: time.Hour})
	f.initContract()

	inv := f.invocation(core.MethodCreateOrder, f.orderArgs("2000"), f.buyer)
	headers := map[string]string{IdempotencyHeader: "order-1"}
	rec, first := f.do(call{method: core.MethodCreateOrder, params: []interface{}{inv}, headers: headers})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The nonce is consumed; without the cache this would be rejected.
	rec, second := f.do(call{method: core.MethodCreateOrder, params: []interface{}{inv}, headers: headers})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, first.Result, second.Result)

	total, err := f.node.TotalOrders()
	require.NoError(t, err)
	require.Equal(t, uint64(1), total)

	other := f.invocation(core.MethodCreateOrder, f.orderArgs("3000"), f.buyer)
	rec, resp := f.do(call{method: core.MethodCreateOrder, params: []interface{}{other}, headers: headers})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "idempotency_conflict", errorReason(t, resp))

	rec, resp = f.do(call{method: core.MethodCreateOrder, params: []interface{}{inv}})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "invalid_nonce", errorReason(t, resp))
}

func TestIdempotencyKeysAreScopedPerSigner(t *testing.T) {
	store, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idem.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := newFixture(t, Config{Idempotency: store, IdempotencyTTL: time.Hour})
	headers := map[string]string{IdempotencyHeader: "shared"}

	toOwner := f.invocation(core.MethodTokenTransfer, core.TokenTransferArgs{
		Asset: "USDC", From: accountOf(f.buyer), To: accountOf(f.owner), Amount: "500",
	}, f.buyer)
	rec, _ := f.do(call{method: core.MethodTokenTransfer, params: []interface{}{toOwner}, headers: headers})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	toBuyer := f.invocation(core.MethodTokenTransfer, core.TokenTransferArgs{
		Asset: "USDC", From: accountOf(f.owner), To: accountOf(f.buyer), Amount: "200",
	}, f.owner)
	rec, resp := f.do(call{method: core.MethodTokenTransfer, params: []interface{}{toBuyer}, headers: headers})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Nil(t, resp.Error)

	balance, err := f.node.TokenBalance("USDC", f.owner.PubKey().Address().Raw())
	require.NoError(t, err)
	require.Equal(t, "300", balance.String())
}

func TestIdempotencyStoreExpiry(t *testing.T) {
	store, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idem.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Unix(1_700_000_000, 0)
	require.NoError(t, store.Put("a", IdempotencyRecord{Digest: "d", Result: json.RawMessage(`{}`), StoredAt: now, ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Put("b", IdempotencyRecord{Digest: "d", Result: json.RawMessage(`{}`), StoredAt: now, ExpiresAt: now.Add(time.Hour)}))

	record, ok, err := store.Get("a", now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "d", record.Digest)

	_, ok, err = store.Get("a", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, ok)

	removed, err := store.Prune(now.Add(2 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	_, ok, err = store.Get("b", now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimitPerSecond: 0.001, RateLimitBurst: 1})
	rec, _ := f.do(call{method: "chain_status"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, resp := f.do(call{method: "chain_status"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestClientSourceHonoursTrustedProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "10.0.0.1", clientSource(req, false))
	require.Equal(t, "203.0.113.9", clientSource(req, true))
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTGuardsInvocations(t *testing.T) {
	const secret = "test-secret"
	f := newFixture(t, Config{JWT: JWTConfig{
		Enable:   true,
		Secret:   secret,
		Issuer:   "chowfast-tests",
		Audience: []string{"chowfast-rpc"},
	}})

	// Queries stay open.
	rec, _ := f.do(call{method: "chain_status"})
	require.Equal(t, http.StatusOK, rec.Code)

	inv := f.invocation(core.MethodInit, core.InitArgs{Owner: accountOf(f.owner), PaymentAsset: "USDC"}, f.owner)
	rec, resp := f.do(call{method: core.MethodInit, params: []interface{}{inv}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	exp := time.Now().Add(time.Hour).Unix()
	wrongAud := signToken(t, secret, jwt.MapClaims{"iss": "chowfast-tests", "aud": "elsewhere", "sub": "ops", "exp": exp})
	rec, _ = f.do(call{method: core.MethodInit, params: []interface{}{inv}, headers: map[string]string{"Authorization": "Bearer " + wrongAud}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	forged := signToken(t, "other-secret", jwt.MapClaims{"iss": "chowfast-tests", "aud": "chowfast-rpc", "sub": "ops", "exp": exp})
	rec, _ = f.do(call{method: core.MethodInit, params: []interface{}{inv}, headers: map[string]string{"Authorization": "Bearer " + forged}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	valid := signToken(t, secret, jwt.MapClaims{"iss": "chowfast-tests", "aud": []string{"chowfast-rpc"}, "sub": "ops", "exp": exp})
	rec, resp = f.do(call{method: core.MethodInit, params: []interface{}{inv}, headers: map[string]string{"Authorization": "Bearer " + valid}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Nil(t, resp.Error)
}

func TestNewServerRejectsEmptySecret(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := NewServer(f.node, Config{JWT: JWTConfig{Enable: true}})
	require.Error(t, err)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}
