package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbh-ai/secure-agent-memory/memory"
	"github.com/tbh-ai/secure-agent-memory/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().StringP("key", "k", "", "Key (generated when omitted)")
	cmd.Flags().String("type", "working", "Memory type: session, working, preference, long_term, pattern")
	cmd.Flags().StringP("priority", "p", "normal", "Priority: low, normal, high, critical")
	cmd.Flags().String("level", "private", "Access level: public, private, shared, system")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().Duration("ttl", 0, "Time to live (0 = no expiry)")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	user := requireUser()
	key, _ := cmd.Flags().GetString("key")
	typeStr, _ := cmd.Flags().GetString("type")
	priority, _ := cmd.Flags().GetString("priority")
	level, _ := cmd.Flags().GetString("level")
	tagsStr, _ := cmd.Flags().GetString("tags")
	ttl, _ := cmd.Flags().GetDuration("ttl")

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
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	m := openManager(cmd)
	defer m.Close()

	storedKey, err := m.Store(cmd.Context(), user, strings.TrimSpace(content),
		model.MemoryType(typeStr), model.Priority(priority), model.AccessLevel(level),
		memory.StoreOptions{Key: key, Tags: splitTags(tagsStr), TTL: ttl})
	if err != nil {
		exitErr("put", err)
	}

	b, _ := json.Marshal(map[string]interface{}{
		"key":         storedKey,
		"memory_type": typeStr,
		"stored_at":   time.Now().UTC().Format(time.RFC3339),
	})
	fmt.Println(string(b))
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
