package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbh-ai/secure-agent-memory/audit"
	"github.com/tbh-ai/secure-agent-memory/model"
)

func init() {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the security audit trail",
	}

	events := &cobra.Command{
		Use:   "events",
		Short: "Search audit events",
		Run:   runAuditEvents,
	}
	events.Flags().String("type", "", "Filter by event type")
	events.Flags().String("min-severity", "", "Minimum severity: low, medium, high, critical")
	events.Flags().IntP("limit", "l", 50, "Max results")
	events.Flags().String("export", "", "Export format: json or csv")

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Summarize audit activity",
		Run:   runAuditSummary,
	}
	summary.Flags().Duration("window", 24*time.Hour, "Summary window")

	report := &cobra.Command{
		Use:   "report [standard]",
		Short: "Generate a compliance report (soc2, gdpr)",
		Args:  cobra.ExactArgs(1),
		Run:   runAuditReport,
	}

	anomalies := &cobra.Command{
		Use:   "anomalies",
		Short: "List flagged behavioral anomalies",
		Run:   runAuditAnomalies,
	}
	anomalies.Flags().Duration("window", 24*time.Hour, "Lookback window")

	auditCmd.AddCommand(events, summary, report, anomalies)
	RootCmd.AddCommand(auditCmd)
}

func runAuditEvents(cmd *cobra.Command, args []string) {
	typeStr, _ := cmd.Flags().GetString("type")
	minSev, _ := cmd.Flags().GetString("min-severity")
	limit, _ := cmd.Flags().GetInt("limit")
	export, _ := cmd.Flags().GetString("export")

	m := openManager(cmd)
	defer m.Close()

	q := audit.EventQuery{
		UserID:      userFlag,
		MinSeverity: model.Severity(minSev),
		Limit:       limit,
	}
	if typeStr != "" {
		q.Types = []model.EventType{model.EventType(typeStr)}
	}

	if export != "" {
		raw, err := m.Security().Audit().Export(q, export)
		if err != nil {
			exitErr("export", err)
		}
		fmt.Print(string(raw))
		return
	}

	events := m.Security().Audit().SearchEvents(q)
	b, _ := json.MarshalIndent(events, "", "  ")
	fmt.Println(string(b))
}

func runAuditSummary(cmd *cobra.Command, args []string) {
	window, _ := cmd.Flags().GetDuration("window")

	m := openManager(cmd)
	defer m.Close()

	end := time.Now().UTC()
	s := m.Security().Audit().GetSummary(end.Add(-window), end)
	b, _ := json.MarshalIndent(s, "", "  ")
	fmt.Println(string(b))
}

func runAuditReport(cmd *cobra.Command, args []string) {
	m := openManager(cmd)
	defer m.Close()

	r, err := m.Security().Audit().GetComplianceReport(args[0])
	if err != nil {
		exitErr("report", err)
	}
	b, _ := json.MarshalIndent(r, "", "  ")
	fmt.Println(string(b))
}

func runAuditAnomalies(cmd *cobra.Command, args []string) {
	window, _ := cmd.Flags().GetDuration("window")

	m := openManager(cmd)
	defer m.Close()

	end := time.Now().UTC()
	anomalies := m.Security().Audit().Anomalies(userFlag, end.Add(-window), end)
	b, _ := json.MarshalIndent(anomalies, "", "  ")
	fmt.Println(string(b))
}
