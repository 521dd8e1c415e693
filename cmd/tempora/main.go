// Package main is the tempora entrypoint. The command tree lives in
// internal/cli; this file only executes it.
package main

import (
	"os"

	"tempora/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
