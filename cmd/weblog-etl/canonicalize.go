package main

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/V4T54L/weblog-etl/internal/adapter/urlcanon"
)

func newCanonicalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "canonicalize [url...]",
		Short: "Print the canonical form of request targets",
		Long: `Print the canonical form of each argument, one per line. With no
arguments, targets are read from standard input.

Examples:
  weblog-etl canonicalize '/filter/27|13%20test'
  cut -d'"' -f2 access.log | cut -d' ' -f2 | weblog-etl canonicalize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				for _, raw := range args {
					fmt.Fprintln(out, canonicalOrRoot(raw))
				}
				return nil
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				fmt.Fprintln(out, canonicalOrRoot(scanner.Text()))
			}
			return scanner.Err()
		},
	}
}

// canonicalOrRoot applies the same empty-to-root rewrite as the url column.
func canonicalOrRoot(raw string) string {
	if c := urlcanon.Canonicalize(raw); c != "" {
		return c
	}
	return urlcanon.Root
}
