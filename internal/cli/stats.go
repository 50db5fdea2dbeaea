package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show storage statistics for a user",
		Run:   runStats,
	}
	RootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	requireUser()

	m := openManager(cmd)
	defer m.Close()

	st, err := m.Stats(cmd.Context(), userFlag)
	if err != nil {
		exitErr("stats", err)
	}

	b, _ := json.MarshalIndent(st, "", "  ")
	fmt.Println(string(b))
}
