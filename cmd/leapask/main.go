// Package main provides the LeapAsk CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapask/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
