// Package main is the entry point for the sqlpreview CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/sqlpreview/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
