// Package main is the entry point for hpcctl, the terminal client of the HPC gateway.
package main

import (
	"os"

	"hpcgateway/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
