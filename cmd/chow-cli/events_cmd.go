package main

import (
	"fmt"
	"io"
)

func runEventsCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: chow-cli events list [--from SEQ] [--limit N] | events order --order ID [--limit N]")
		return 1
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("events list", stderr)
		var from uint64
		var limit int
		fs.Uint64Var(&from, "from", 1, "first sequence number")
		fs.IntVar(&limit, "limit", 0, "maximum entries (0 uses the server default)")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		return runQuery("events_list", map[string]interface{}{"from": from, "limit": limit}, stdout, stderr)
	case "order":
		fs := newFlagSet("events order", stderr)
		var orderID uint64
		var limit int
		fs.Uint64Var(&orderID, "order", 0, "order id")
		fs.IntVar(&limit, "limit", 0, "maximum entries (0 uses the server default)")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if orderID == 0 {
			return printError(stderr, "--order is required")
		}
		return runQuery("events_byOrder", map[string]interface{}{"orderId": orderID, "limit": limit}, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown events subcommand: %s\n", args[0])
		return 1
	}
}
