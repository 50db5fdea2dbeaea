package main

import (
	"os"

	"github.com/tbh-ai/secure-agent-memory/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
