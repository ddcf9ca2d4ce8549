// Package main provides the entry point for the mosaicdb CLI.
package main

import (
	"os"

	"github.com/mosaicdb/mosaicdb/cmd/mosaicdb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
