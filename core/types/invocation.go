package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"chowfast/crypto"
)

// Authorization is a signer's approval of a single invocation. The signature
// covers the chain id, the method, the compacted JSON arguments and the
// signer's next nonce.
type Authorization struct {
	Signer    string `json:"signer"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// Invocation is a request to run one contract entry point.
type Invocation struct {
	ChainID uint64          `json:"chainId"`
	Method  string          `json:"method"`
	Args    json.RawMessage `json:"args"`
	Auth    []Authorization `json:"auth,omitempty"`
}

// CanonicalArgs compacts the raw JSON arguments so whitespace differences do
// not change the signed payload. Empty input canonicalises to "{}".
func CanonicalArgs(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	return buf.Bytes(), nil
}

// SigningHash returns the digest a signer approves for the invocation.
func SigningHash(chainID uint64, method string, args []byte, nonce uint64) ([]byte, error) {
	canonical, err := CanonicalArgs(args)
	if err != nil {
		return nil, err
	}
	payload := struct {
		ChainID uint64
		Method  string
		Args    []byte
		Nonce   uint64
	}{chainID, method, canonical, nonce}
	encoded, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(encoded), nil
}

// Sign appends an authorization produced by key for the given nonce.
func (inv *Invocation) Sign(key *crypto.PrivateKey, nonce uint64) error {
	if key == nil {
		return errors.New("invocation: nil signing key")
	}
	hash, err := SigningHash(inv.ChainID, inv.Method, inv.Args, nonce)
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return err
	}
	sig[64] += 27
	inv.Auth = append(inv.Auth, Authorization{
		Signer:    key.PubKey().Address().String(),
		Nonce:     nonce,
		Signature: "0x" + hex.EncodeToString(sig),
	})
	return nil
}

// Recover verifies the authorization against the invocation and returns the
// signer's raw address. The recovered key must match the declared signer.
func (a Authorization) Recover(chainID uint64, method string, args []byte) ([20]byte, error) {
	var zero [20]byte
	declared, err := crypto.ParseAccount(strings.TrimSpace(a.Signer))
	if err != nil {
		return zero, fmt.Errorf("invalid signer: %w", err)
	}
	sigHex := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(a.Signature), "0x"), "0X")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return zero, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != 65 {
		return zero, fmt.Errorf("signature must be 65 bytes")
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	hash, err := SigningHash(chainID, method, args, a.Nonce)
	if err != nil {
		return zero, err
	}
	recovered, err := crypto.RecoverSigner(hash, sig)
	if err != nil {
		return zero, fmt.Errorf("recover signer: %w", err)
	}
	if recovered != declared {
		return zero, fmt.Errorf("signature does not match signer %s", a.Signer)
	}
	return declared, nil
}

// ID returns a stable identifier for the invocation derived from its signed
// content.
func (inv *Invocation) ID() (string, error) {
	canonical, err := CanonicalArgs(inv.Args)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(struct {
		ChainID uint64          `json:"chainId"`
		Method  string          `json:"method"`
		Args    json.RawMessage `json:"args"`
		Auth    []Authorization `json:"auth"`
	}{inv.ChainID, inv.Method, canonical, inv.Auth})
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
