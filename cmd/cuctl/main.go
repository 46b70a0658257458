// Package main is the entry point for cuctl, the operator CLI for staging
// resources and driving Content Understanding operations.
package main

import (
	"os"

	"github.com/bryanwahyu/cu-orchestrator/cmd/cuctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
