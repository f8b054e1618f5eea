// Package main is the entry point for the ledger CLI.
package main

import (
	"os"

	"github.com/dvloznov/finance-manager/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
