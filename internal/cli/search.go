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
		Use:   "search [query]",
		Short: "Full-text search over memories",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().String("types", "", "Comma-separated memory types to search")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	user := requireUser()
	typesStr, _ := cmd.Flags().GetString("types")
	limit, _ := cmd.Flags().GetInt("limit")

	var types []model.MemoryType
	for _, t := range strings.Split(typesStr, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			types = append(types, model.MemoryType(t))
		}
	}

	m := openManager(cmd)
	defer m.Close()

	entries, err := m.Retrieve(cmd.Context(), user, strings.Join(args, " "), types, limit, nil)
	if err != nil {
		exitErr("search", err)
	}

	if formatFlag == "text" {
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\n", e.Key, e.Type, e.Content)
		}
		return
	}
	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}
