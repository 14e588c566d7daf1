package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/ingest"
)

func init() {
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Vectorize text files for a user",
	Long: `Read the given files, record them in the user's file ledger, and index
their chunks. With no arguments, processes everything in the configured
inbox directory once.

Examples:
  recalld ingest --user alice notes.txt journal.md
  recalld ingest --user alice`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer func() { _ = d.logger.Sync() }()

	ctx, err := tenantContext(cmd.Context())
	if err != nil {
		return err
	}

	watcher, err := ingest.NewWatcher(ingest.Config{
		InboxDir:   d.cfg.Ingest.InboxDir,
		Extensions: d.cfg.Ingest.Extensions,
	}, d.files, d.logger)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		if d.cfg.Ingest.InboxDir == "" {
			return fmt.Errorf("no files given and ingest.inbox_dir is not configured")
		}
		return watcher.ScanOnce(ctx)
	}
	for _, path := range args {
		if err := watcher.ProcessFile(ctx, path); err != nil {
			return err
		}
		fmt.Printf("ingested %s\n", path)
	}
	return nil
}
