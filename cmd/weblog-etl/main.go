package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "weblog-etl",
		Short: "Clean and enrich web server access logs",
		Long: `weblog-etl parses combined-format access logs, normalizes and
canonicalizes their fields, resolves user agents and geolocates client
addresses, then writes the finalized table to the configured sinks.

Configuration is read from the environment (and a .env file); flags
override it.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(), newLoadCmd(), newCanonicalizeCmd())
	return root
}
