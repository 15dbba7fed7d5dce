package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if _, _, err := net.SplitHostPort(c.RPCAddress); err != nil {
		return fmt.Errorf("RPCAddress: %w", err)
	}
	if _, err := c.Orders.Params(); err != nil {
		return err
	}
	if c.RPC.ReadHeaderTimeout < 0 || c.RPC.ReadTimeout < 0 || c.RPC.WriteTimeout < 0 || c.RPC.IdleTimeout < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if c.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must be positive")
	}
	if c.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("rpc: RateLimitPerSecond must not be negative")
	}
	if c.RPC.RateLimitPerSecond > 0 && c.RPC.RateLimitBurst <= 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when rate limiting is enabled")
	}
	if c.RPC.JWTEnable && strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
		return fmt.Errorf("rpc: JWTSecretEnv required when JWTEnable is set")
	}
	if c.RPC.IdempotencyTTLSeconds < 0 {
		return fmt.Errorf("rpc: IdempotencyTTLSeconds must not be negative")
	}
	if (c.Telemetry.Metrics || c.Telemetry.Traces) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when exporters are enabled")
	}
	return nil
}
