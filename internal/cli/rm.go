package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbh-ai/secure-agent-memory/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Delete a memory",
		Run:   runRm,
	}

	cmd.Flags().StringP("key", "k", "", "Key (required)")
	cmd.Flags().String("type", "", "Memory type (all types probed when omitted)")
	cmd.MarkFlagRequired("key")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	user := requireUser()
	key, _ := cmd.Flags().GetString("key")
	typeStr, _ := cmd.Flags().GetString("type")

	m := openManager(cmd)
	defer m.Close()

	if err := m.Delete(cmd.Context(), user, key, model.MemoryType(typeStr), nil); err != nil {
		exitErr("rm", err)
	}
	fmt.Printf("deleted %s\n", key)
}
