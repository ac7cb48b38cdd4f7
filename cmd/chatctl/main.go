// Package main is the entrypoint for chatctl.
package main

import (
	"fmt"
	"os"

	"github.com/kiranshivaraju/chatvault/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
