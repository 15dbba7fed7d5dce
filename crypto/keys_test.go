package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := [20]byte{}
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	encoded := FormatAddress(raw)
	if !strings.HasPrefix(encoded, "chow1") {
		t.Fatalf("unexpected prefix: %s", encoded)
	}
	decoded, err := ParseAccount(encoded)
	if err != nil {
		t.Fatalf("parse account: %v", err)
	}
	if decoded != raw {
		t.Fatalf("decoded mismatch: %x", decoded)
	}
}

func TestParseAccountRejectsForeignPrefix(t *testing.T) {
	foreign := MustNewAddress(AddressPrefix("other"), make([]byte, 20)).String()
	if _, err := ParseAccount(foreign); err == nil {
		t.Fatalf("expected prefix error")
	}
	if _, err := ParseAccount("not-bech32"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewAddressLength(t *testing.T) {
	if _, err := NewAddress(AccountPrefix, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	digest := ethcrypto.Keccak256([]byte("payload"))
	sig, err := key.Sign(digest)
	require.NoError(t, err)

	signer, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Raw(), signer)

	other := ethcrypto.Keccak256([]byte("tampered"))
	recovered, err := RecoverSigner(other, sig)
	if err == nil {
		require.NotEqual(t, key.PubKey().Address().Raw(), recovered)
	}

	_, err = RecoverSigner(digest, sig[:10])
	require.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "operator.json")
	require.NoError(t, SaveToKeystoreWithParams(path, key, "secret", LightScrypt))

	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.True(t, bytes.Equal(key.Bytes(), loaded.Bytes()))

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
