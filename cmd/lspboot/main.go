// Package main provides the lspboot CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/lspboot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
