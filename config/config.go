package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"chowfast/native/orders"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`
	// ChainID, when non-zero, must match the chain id in the genesis file.
	ChainID     uint64 `toml:"ChainID"`
	Environment string `toml:"Environment"`

	Logging   Logging   `toml:"logging"`
	Orders    Orders    `toml:"orders"`
	RPC       RPC       `toml:"rpc"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		RPCAddress:  "127.0.0.1:8545",
		DataDir:     "./chowfast-data",
		GenesisFile: "genesis.yaml",
		Environment: "local",
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Orders: Orders{
			TransactionFee:            strconv.FormatInt(orders.DefaultTransactionFee, 10),
			CancellationWindowSeconds: orders.DefaultCancellationWindow,
		},
		RPC: RPC{
			ReadHeaderTimeout:     5,
			ReadTimeout:           15,
			WriteTimeout:          15,
			IdleTimeout:           60,
			MaxBodyBytes:          1 << 20,
			RateLimitPerSecond:    20,
			RateLimitBurst:        40,
			JWTSecretEnv:          "CHOWFAST_RPC_JWT_SECRET",
			IdempotencyDB:         "idempotency.db",
			IdempotencyTTLSeconds: 86400,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

// Load loads the configuration from the given path. A missing file is created
// with the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown field %s", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ResolvePath anchors a relative path inside DataDir.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
