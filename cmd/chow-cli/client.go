package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chowfast/cmd/internal/passphrase"
	"chowfast/core/types"
	"chowfast/crypto"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// callOptions carry per-call transport settings.
type callOptions struct {
	requireAuth    bool
	idempotencyKey string
}

var (
	rpcCall        = callRPC
	loadSigner     = loadKeystoreSigner
	keystoreScrypt = crypto.StandardScrypt
	httpClient     = &http.Client{Timeout: 30 * time.Second}
	passSource     = passphrase.NewSource(keystorePassEnv, "signer keystore")
)

func callRPC(method string, params []interface{}, opts callOptions) (json.RawMessage, *rpcError, error) {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.requireAuth && strings.TrimSpace(rpcAuthToken) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}
	if opts.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", opts.idempotencyKey)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error, nil
	}
	return rpcResp.Result, nil, nil
}

func loadKeystoreSigner(path string) (*crypto.PrivateKey, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("--key is required")
	}
	pass, err := passSource.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", path, err)
	}
	return key, nil
}

// queryResult performs a read-only call and decodes the result into dst.
func queryResult(method string, param interface{}, dst interface{}) error {
	var params []interface{}
	if param != nil {
		params = []interface{}{param}
	}
	result, rpcErr, err := rpcCall(method, params, callOptions{})
	if err != nil {
		return err
	}
	if rpcErr != nil {
		return fmt.Errorf("%s: %s (code %d)", method, rpcErr.Message, rpcErr.Code)
	}
	return json.Unmarshal(result, dst)
}

// signingFlags are shared by every mutating subcommand.
type signingFlags struct {
	keys           stringList
	chainID        uint64
	idempotencyKey string
}

func (s *signingFlags) register(fs *flag.FlagSet) {
	fs.Var(&s.keys, "key", "keystore of a signer (repeatable)")
	fs.Uint64Var(&s.chainID, "chain-id", 0, "chain id (defaults to the node's)")
	fs.StringVar(&s.idempotencyKey, "idempotency-key", "", "retry-safe request key")
}

// buildInvocation signs method with every configured key using each signer's
// next nonce.
func buildInvocation(method string, args interface{}, sf signingFlags) (types.Invocation, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return types.Invocation{}, err
	}
	chainID := sf.chainID
	if chainID == 0 {
		var status struct {
			ChainID uint64 `json:"chainId"`
		}
		if err := queryResult("chain_status", nil, &status); err != nil {
			return types.Invocation{}, err
		}
		chainID = status.ChainID
	}
	inv := types.Invocation{ChainID: chainID, Method: method, Args: raw}
	if len(sf.keys) == 0 {
		return types.Invocation{}, errors.New("at least one --key is required")
	}
	for _, path := range sf.keys {
		key, err := loadSigner(path)
		if err != nil {
			return types.Invocation{}, err
		}
		var nonce struct {
			Next uint64 `json:"next"`
		}
		if err := queryResult("account_nonce", map[string]string{"account": key.PubKey().Address().String()}, &nonce); err != nil {
			return types.Invocation{}, err
		}
		if err := inv.Sign(key, nonce.Next); err != nil {
			return types.Invocation{}, err
		}
	}
	return inv, nil
}

// submit signs and sends a mutating call and prints the receipt.
func submit(method string, args interface{}, sf signingFlags, stdout, stderr io.Writer) int {
	inv, err := buildInvocation(method, args, sf)
	if err != nil {
		return printError(stderr, err.Error())
	}
	result, rpcErr, err := rpcCall(method, []interface{}{inv}, callOptions{
		requireAuth:    true,
		idempotencyKey: sf.idempotencyKey,
	})
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runQuery(method string, param interface{}, stdout, stderr io.Writer) int {
	var params []interface{}
	if param != nil {
		params = []interface{}{param}
	}
	result, rpcErr, err := rpcCall(method, params, callOptions{})
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if len(err.Data) > 0 {
		fmt.Fprintf(w, "RPC error %d: %s %s\n", err.Code, err.Message, string(err.Data))
	} else {
		fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	}
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 || string(result) == "null" {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(w, string(result))
		return
	}
	fmt.Fprintln(w, pretty.String())
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("empty value")
	}
	*s = append(*s, value)
	return nil
}
