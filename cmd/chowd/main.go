package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"chowfast/config"
	"chowfast/core"
	"chowfast/core/genesis"
	"chowfast/observability/logging"
	telemetry "chowfast/observability/otel"
	"chowfast/rpc"
	"chowfast/storage"
	"chowfast/storage/eventlog"
)

const (
	genesisPathEnv = "CHOWFAST_GENESIS"
	environmentEnv = "CHOWFAST_ENV"
)

// version is overridden at link time with -ldflags "-X main.version=...".
var version = "dev"

type envLookupFunc func(string) (string, bool)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chowd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup envLookupFunc, stdout io.Writer) error {
	fs := flag.NewFlagSet("chowd", flag.ContinueOnError)
	configFile := fs.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := fs.String("genesis", "", "Path to the genesis YAML file (overrides "+genesisPathEnv+" and config GenesisFile)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Environment
	if value, ok := lookup(environmentEnv); ok && strings.TrimSpace(value) != "" {
		env = strings.TrimSpace(value)
	}
	logger := logging.SetupWriter(stdout, "chowd", env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.ResolvePath(cfg.Logging.File),
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "chowd",
		Version:     version,
		Environment: env,
		ChainID:     cfg.ChainID,
		RPCAddress:  cfg.RPCAddress,
		DataDir:     cfg.DataDir,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	params, err := cfg.Orders.Params()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	events, err := eventlog.Open(filepath.Join(cfg.DataDir, "events"))
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer events.Close()
	if err := events.Verify(); err != nil {
		return fmt.Errorf("event log integrity: %w", err)
	}

	var spec *genesis.Spec
	if path := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, lookup); path != "" {
		spec, err = genesis.Load(path)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist):
			// A node that already holds state does not need the file.
			logger.Warn("genesis file not found", slog.String("path", path))
		default:
			return fmt.Errorf("load genesis: %w", err)
		}
	}

	node, err := core.NewNode(db, events, spec, core.Options{
		ChainID: cfg.ChainID,
		Params:  params,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	rpcCfg, err := buildRPCConfig(cfg, lookup, logger)
	if err != nil {
		return err
	}
	if dbPath := cfg.ResolvePath(cfg.RPC.IdempotencyDB); dbPath != "" {
		store, err := rpc.OpenIdempotencyStore(dbPath, nil)
		if err != nil {
			return fmt.Errorf("open idempotency store: %w", err)
		}
		defer store.Close()
		if removed, err := store.Prune(time.Now()); err != nil {
			logger.Warn("idempotency prune failed", slog.Any("error", err))
		} else if removed > 0 {
			logger.Info("idempotency records pruned", slog.Int("removed", removed))
		}
		rpcCfg.Idempotency = store
	}

	server, err := rpc.NewServer(node, rpcCfg)
	if err != nil {
		return err
	}
	status := node.Status()
	logger.Info("chowd starting",
		slog.String("version", version),
		slog.Uint64("chainId", status.ChainID),
		slog.Uint64("height", status.Height),
		slog.String("rpc", cfg.RPCAddress))
	if err := server.Serve(ctx, cfg.RPCAddress); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("chowd stopped")
	return nil
}

func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(cfgPath)
}

func buildRPCConfig(cfg *config.Config, lookup envLookupFunc, logger *slog.Logger) (rpc.Config, error) {
	out := rpc.Config{
		MaxBodyBytes:       cfg.RPC.MaxBodyBytes,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		TrustProxyHeaders:  cfg.RPC.TrustProxyHeaders,
		IdempotencyTTL:     cfg.RPC.IdempotencyTTL(),
		ReadHeaderTimeout:  cfg.RPC.ReadHeaderTimeoutDuration(),
		ReadTimeout:        cfg.RPC.ReadTimeoutDuration(),
		WriteTimeout:       cfg.RPC.WriteTimeoutDuration(),
		IdleTimeout:        cfg.RPC.IdleTimeoutDuration(),
		Logger:             logger,
	}
	if cfg.RPC.JWTEnable {
		secret, _ := lookup(cfg.RPC.JWTSecretEnv)
		if strings.TrimSpace(secret) == "" {
			return rpc.Config{}, fmt.Errorf("rpc: JWT enabled but %s is empty", cfg.RPC.JWTSecretEnv)
		}
		out.JWT = rpc.JWTConfig{
			Enable:   true,
			Secret:   secret,
			Issuer:   cfg.RPC.JWTIssuer,
			Audience: append([]string(nil), cfg.RPC.JWTAudience...),
		}
	}
	return out, nil
}
