package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries for a user",
		Run:   runCleanup,
	}
	RootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	requireUser()

	m := openManager(cmd)
	defer m.Close()

	n, err := m.CleanupExpired(cmd.Context(), userFlag)
	if err != nil {
		exitErr("cleanup", err)
	}
	fmt.Printf("removed %d expired entries\n", n)
}
