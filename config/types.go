package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"chowfast/native/orders"
)

// Orders tunes the order escrow contract.
type Orders struct {
	// TransactionFee is the flat surcharge, in base units, added to every
	// order subtotal. Base-10 integer string.
	TransactionFee            string `toml:"TransactionFee"`
	CancellationWindowSeconds uint64 `toml:"CancellationWindowSeconds"`
}

// Params converts the section into contract parameters.
func (o Orders) Params() (orders.Params, error) {
	fee, ok := new(big.Int).SetString(strings.TrimSpace(o.TransactionFee), 10)
	if !ok {
		return orders.Params{}, fmt.Errorf("orders.TransactionFee: invalid integer %q", o.TransactionFee)
	}
	p := orders.Params{TransactionFee: fee, CancellationWindow: o.CancellationWindowSeconds}
	if err := p.Validate(); err != nil {
		return orders.Params{}, err
	}
	return p, nil
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	ReadHeaderTimeout int   `toml:"ReadHeaderTimeout"`
	ReadTimeout       int   `toml:"ReadTimeout"`
	WriteTimeout      int   `toml:"WriteTimeout"`
	IdleTimeout       int   `toml:"IdleTimeout"`
	MaxBodyBytes      int64 `toml:"MaxBodyBytes"`

	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	TrustProxyHeaders  bool    `toml:"TrustProxyHeaders"`

	// JWT guards mutating methods when enabled. The HS256 secret is read
	// from the environment variable named by JWTSecretEnv.
	JWTEnable    bool     `toml:"JWTEnable"`
	JWTSecretEnv string   `toml:"JWTSecretEnv"`
	JWTIssuer    string   `toml:"JWTIssuer"`
	JWTAudience  []string `toml:"JWTAudience"`

	// IdempotencyDB stores responses keyed by Idempotency-Key headers.
	// Relative paths resolve inside DataDir.
	IdempotencyDB         string `toml:"IdempotencyDB"`
	IdempotencyTTLSeconds int    `toml:"IdempotencyTTLSeconds"`
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

// ReadHeaderTimeoutDuration returns the header read timeout.
func (r RPC) ReadHeaderTimeoutDuration() time.Duration { return seconds(r.ReadHeaderTimeout) }

// ReadTimeoutDuration returns the request read timeout.
func (r RPC) ReadTimeoutDuration() time.Duration { return seconds(r.ReadTimeout) }

// WriteTimeoutDuration returns the response write timeout.
func (r RPC) WriteTimeoutDuration() time.Duration { return seconds(r.WriteTimeout) }

// IdleTimeoutDuration returns the keep-alive idle timeout.
func (r RPC) IdleTimeoutDuration() time.Duration { return seconds(r.IdleTimeout) }

// IdempotencyTTL returns how long cached responses are replayed.
func (r RPC) IdempotencyTTL() time.Duration { return seconds(r.IdempotencyTTLSeconds) }

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers uses the OTEL_EXPORTER_OTLP_HEADERS format: key=value,key=value.
	Headers string `toml:"Headers"`
}

// Logging configures structured log output.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}
