// cmd/sqlscope/main.go
//
// sqlscope entry point.  All wiring lives in internal/cli.
package main

import (
	"os"

	"github.com/yanizio/sqlscope/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
