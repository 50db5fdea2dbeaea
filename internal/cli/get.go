package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbh-ai/secure-agent-memory/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Retrieve a memory by key",
		Run:   runGet,
	}

	cmd.Flags().StringP("key", "k", "", "Key (required)")
	cmd.Flags().String("type", "", "Memory type (all types probed when omitted)")
	cmd.MarkFlagRequired("key")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	user := requireUser()
	key, _ := cmd.Flags().GetString("key")
	typeStr, _ := cmd.Flags().GetString("type")

	m := openManager(cmd)
	defer m.Close()

	entry, err := m.Get(cmd.Context(), user, key, model.MemoryType(typeStr), nil)
	if err != nil {
		exitErr("get", err)
	}

	if formatFlag == "text" {
		fmt.Println(entry.Content)
		return
	}
	b, _ := json.MarshalIndent(entry, "", "  ")
	fmt.Println(string(b))
}
