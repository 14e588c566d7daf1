package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyDays  int
	historyQuery string
	historyReply string
	historyAgent string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyLogCmd)

	historyCmd.Flags().IntVar(&historyDays, "days", 0, "Window in days (default from config)")

	historyLogCmd.Flags().StringVar(&historyQuery, "query", "", "User query text (required)")
	historyLogCmd.Flags().StringVar(&historyReply, "response", "", "Agent response text (required)")
	historyLogCmd.Flags().StringVar(&historyAgent, "agent", "", "Agent name")
	_ = historyLogCmd.MarkFlagRequired("query")
	_ = historyLogCmd.MarkFlagRequired("response")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a user's recent conversation history",
	Long: `Render the user's recent conversation history, oldest first, formatted
for prompt injection.

Examples:
  recalld history --user alice
  recalld history --user alice --days 2`,
	RunE: runHistory,
}

var historyLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Record one user/agent exchange",
	Long: `Append one exchange to the user's conversation log.

Examples:
  recalld history log --user alice --query "best beach?" --response "Bondi." --agent planner`,
	RunE: runHistoryLog,
}

func runHistory(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer func() { _ = d.logger.Sync() }()

	ctx, err := tenantContext(cmd.Context())
	if err != nil {
		return err
	}

	history, err := d.convs.RecentHistory(ctx, historyDays)
	if err != nil {
		return err
	}
	if history == "" {
		fmt.Println("no recent conversations")
		return nil
	}
	fmt.Println(history)
	return nil
}

func runHistoryLog(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer func() { _ = d.logger.Sync() }()

	ctx, err := tenantContext(cmd.Context())
	if err != nil {
		return err
	}

	id, err := d.convs.Add(ctx, historyQuery, historyReply, historyAgent, time.Time{})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}
