package main

import (
	"fmt"
	"io"
	"strings"

	"chowfast/core"
)

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, tokenUsage())
		return 1
	}
	switch args[0] {
	case "balance":
		fs := newFlagSet("token balance", stderr)
		var asset, account string
		fs.StringVar(&asset, "asset", "", "token symbol")
		fs.StringVar(&account, "account", "", "account to inspect")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if strings.TrimSpace(asset) == "" || strings.TrimSpace(account) == "" {
			return printError(stderr, "--asset and --account are required")
		}
		return runQuery("token_balance", map[string]string{"asset": asset, "account": account}, stdout, stderr)
	case "info":
		fs := newFlagSet("token info", stderr)
		var asset string
		fs.StringVar(&asset, "asset", "", "token symbol")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if strings.TrimSpace(asset) == "" {
			return printError(stderr, "--asset is required")
		}
		return runQuery("token_info", map[string]string{"asset": asset}, stdout, stderr)
	case "transfer":
		return runTokenTransfer(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown token subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, tokenUsage())
		return 1
	}
}

func tokenUsage() string {
	return strings.Join([]string{
		"Usage: chow-cli token <subcommand> [flags]",
		"  balance --asset SYMBOL --account ADDR",
		"  info --asset SYMBOL",
		"  transfer --asset SYMBOL --to ADDR --amount N [--from ADDR] --key FILE",
	}, "\n")
}

func runTokenTransfer(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token transfer", stderr)
	var sf signingFlags
	var asset, from, to, amount string
	fs.StringVar(&asset, "asset", "", "token symbol")
	fs.StringVar(&from, "from", "", "sending account (defaults to the first --key)")
	fs.StringVar(&to, "to", "", "receiving account")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(asset) == "" || strings.TrimSpace(to) == "" || strings.TrimSpace(amount) == "" {
		return printError(stderr, "--asset, --to and --amount are required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		if len(sf.keys) == 0 {
			return printError(stderr, "--from or --key is required")
		}
		key, err := loadSigner(sf.keys[0])
		if err != nil {
			return printError(stderr, err.Error())
		}
		from = key.PubKey().Address().String()
	}
	return submit(core.MethodTokenTransfer, core.TokenTransferArgs{
		Asset:  asset,
		From:   from,
		To:     to,
		Amount: amount,
	}, sf, stdout, stderr)
}
