package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbh-ai/secure-agent-memory/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update [content]",
		Short: "Replace the content of an existing memory",
		Run:   runUpdate,
	}

	cmd.Flags().StringP("key", "k", "", "Key (required)")
	cmd.Flags().String("type", "working", "Memory type")
	cmd.MarkFlagRequired("key")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	user := requireUser()
	key, _ := cmd.Flags().GetString("key")
	typeStr, _ := cmd.Flags().GetString("type")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("update", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	m := openManager(cmd)
	defer m.Close()

	if err := m.Update(cmd.Context(), user, key, model.MemoryType(typeStr), strings.TrimSpace(content), nil); err != nil {
		exitErr("update", err)
	}
	fmt.Printf("updated %s\n", key)
}
