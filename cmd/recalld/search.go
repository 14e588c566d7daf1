package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	searchLimit    int
	searchFileName string
	searchJSON     bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of hits")
	searchCmd.Flags().StringVar(&searchFileName, "file", "", "Restrict hits to one file name")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output results as JSON")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search a user's indexed documents",
	Long: `Rank the user's indexed document chunks by similarity to the query.

Examples:
  recalld search --user alice "capital of France"
  recalld search --user alice --file notes.txt --limit 3 "plants"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer func() { _ = d.logger.Sync() }()

	ctx, err := tenantContext(cmd.Context())
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	hits, err := d.files.Search(ctx, query, searchLimit, searchFileName)
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		fmt.Println("no results")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tFILE\tCHUNK\tTEXT")
	for _, hit := range hits {
		fmt.Fprintf(w, "%.3f\t%s\t%d\t%s\n", hit.Similarity, hit.FileName, hit.ChunkIndex, oneLine(hit.ChunkText, 80))
	}
	return w.Flush()
}

// oneLine flattens text to a single line capped at max runes.
func oneLine(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-1]) + "…"
}
