package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbh-ai/secure-agent-memory/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories with bounded previews",
		Run:   runList,
	}

	cmd.Flags().String("types", "", "Comma-separated memory types")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("keys-only", false, "Only output keys")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	user := requireUser()
	typesStr, _ := cmd.Flags().GetString("types")
	limit, _ := cmd.Flags().GetInt("limit")
	keysOnly, _ := cmd.Flags().GetBool("keys-only")

	var types []model.MemoryType
	for _, t := range strings.Split(typesStr, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			types = append(types, model.MemoryType(t))
		}
	}

	m := openManager(cmd)
	defer m.Close()

	summaries, err := m.List(cmd.Context(), user, types, limit, nil)
	if err != nil {
		exitErr("list", err)
	}

	if keysOnly {
		for _, s := range summaries {
			fmt.Printf("%s/%s\n", s.Type, s.Key)
		}
		return
	}
	b, _ := json.MarshalIndent(summaries, "", "  ")
	fmt.Println(string(b))
}
