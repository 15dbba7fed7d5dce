package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	rpcURLEnv       = "CHOWFAST_RPC_URL"
	rpcTokenEnv     = "CHOWFAST_RPC_TOKEN"
	keystorePassEnv = "CHOWFAST_KEYSTORE_PASS"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv(rpcTokenEnv)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "status":
		return runQuery("chain_status", nil, stdout, stderr)
	case "orders":
		return runOrdersCommand(args[1:], stdout, stderr)
	case "token":
		return runTokenCommand(args[1:], stdout, stderr)
	case "events":
		return runEventsCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return "http://127.0.0.1:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func usage() string {
	return strings.Join([]string{
		"Usage: chow-cli [--rpc URL] <command> [flags]",
		"",
		"Commands:",
		"  generate-key --out FILE        create an encrypted signing key",
		"  address --key FILE             print the account of a keystore",
		"  status                         show the ledger tip",
		"  orders <subcommand>            order escrow contract",
		"  token <subcommand>             payment tokens",
		"  events <subcommand>            notification log",
		"",
		"Signing keys are unlocked with " + keystorePassEnv + " or an interactive prompt.",
		"Mutating calls send " + rpcTokenEnv + " as a bearer token when set.",
	}, "\n")
}
