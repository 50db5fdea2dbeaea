// Package cli implements the secure-memory CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbh-ai/secure-agent-memory/config"
	"github.com/tbh-ai/secure-agent-memory/memory"
)

var (
	dbPath     string
	userFlag   string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "secure-memory",
	Short: "Secure, access-controlled memory for AI agents",
	Long: "An agent memory store with content validation, role-based access control,\n" +
		"encryption at rest and a full audit trail. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $SECURE_MEMORY_STORAGE_PATH or ~/.secure-memory/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "Acting user id (required)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func requireUser() string {
	if userFlag == "" {
		exitErr("flags", fmt.Errorf("--user is required"))
	}
	return userFlag
}

func openManager(cmd *cobra.Command) *memory.Manager {
	cfg, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	m, err := memory.NewManager(cfg, nil)
	if err != nil {
		exitErr("open memory", err)
	}
	if err := m.Initialize(cmd.Context()); err != nil {
		exitErr("initialize", err)
	}
	return m
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
