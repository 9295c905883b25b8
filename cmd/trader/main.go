// Command trader runs the Kalshi scanner and its inspection tools.
package main

import (
	"os"

	"kalshi-trader/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
