package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"chowfast/config"
	"chowfast/core"
	"chowfast/crypto"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(values map[string]string) envLookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeNodeFiles(t *testing.T, chainID uint64) (string, string) {
	t.Helper()
	dir := t.TempDir()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	genesisPath := filepath.Join(dir, "genesis.yaml")
	require.NoError(t, os.WriteFile(genesisPath, []byte(fmt.Sprintf(`chainId: %d
tokens:
  - symbol: USDC
    name: USD Coin
    decimals: 7
    balances:
      %s: "1000"
`, chainID, key.PubKey().Address().String())), 0o644))

	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`RPCAddress = "127.0.0.1:0"
DataDir = %q
GenesisFile = %q

[rpc]
MaxBodyBytes = 4096
`, filepath.Join(dir, "data"), genesisPath)), 0o644))
	return configPath, dir
}

func TestRunStartsAndStops(t *testing.T) {
	configPath, dir := writeNodeFiles(t, 11)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"-config", configPath}, noEnv, &out))
	require.Contains(t, out.String(), "genesis applied")
	require.Contains(t, out.String(), "chowd stopped")
	require.DirExists(t, filepath.Join(dir, "data", "state"))
	require.FileExists(t, filepath.Join(dir, "data", "idempotency.db"))

	// Restart reopens the stored ledger instead of re-applying genesis.
	out.Reset()
	require.NoError(t, run(ctx, []string{"-config", configPath}, noEnv, &out))
	require.Contains(t, out.String(), "ledger opened")
}

func TestRunRejectsForeignGenesis(t *testing.T) {
	configPath, dir := writeNodeFiles(t, 11)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, []string{"-config", configPath}, noEnv, io.Discard))

	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte(`chainId: 12
tokens:
  - symbol: USDC
    name: USD Coin
    decimals: 7
`), 0o644))
	err := run(ctx, []string{"-config", configPath, "-genesis", other}, noEnv, io.Discard)
	require.ErrorContains(t, err, "does not match stored chain id")
}

func TestRunRejectsChangedContractParams(t *testing.T) {
	configPath, _ := writeNodeFiles(t, 11)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, []string{"-config", configPath}, noEnv, io.Discard))

	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("\n[orders]\nCancellationWindowSeconds = 600\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = run(ctx, []string{"-config", configPath}, noEnv, io.Discard)
	require.ErrorIs(t, err, core.ErrParamsMismatch)
}

func TestRunRejectsUnknownConfigKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("Bogus = true\n"), 0o644))
	err := run(context.Background(), []string{"-config", configPath}, noEnv, io.Discard)
	require.ErrorContains(t, err, "unknown field")
}

func TestResolveGenesisPath(t *testing.T) {
	lookup := envMap(map[string]string{genesisPathEnv: " /env/genesis.yaml "})
	require.Equal(t, "/cli.yaml", resolveGenesisPath("/cli.yaml", "/cfg.yaml", lookup))
	require.Equal(t, "/env/genesis.yaml", resolveGenesisPath("", "/cfg.yaml", lookup))
	require.Equal(t, "/cfg.yaml", resolveGenesisPath("", "/cfg.yaml", noEnv))
	require.Empty(t, resolveGenesisPath("", "", nil))
}

func TestBuildRPCConfigReadsJWTSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.RPC.JWTEnable = true
	cfg.RPC.JWTIssuer = "ops"
	cfg.RPC.JWTAudience = []string{"chowfast-rpc"}

	_, err := buildRPCConfig(cfg, noEnv, logger)
	require.Error(t, err)

	out, err := buildRPCConfig(cfg, envMap(map[string]string{cfg.RPC.JWTSecretEnv: "s3cret"}), logger)
	require.NoError(t, err)
	require.True(t, out.JWT.Enable)
	require.Equal(t, "s3cret", out.JWT.Secret)
	require.Equal(t, []string{"chowfast-rpc"}, out.JWT.Audience)
	require.Equal(t, cfg.RPC.IdempotencyTTL(), out.IdempotencyTTL)
}
