package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/facts"
)

var (
	factCategory   string
	factSource     string
	factConfidence float64
	factLimit      int
	factJSON       bool
)

func init() {
	rootCmd.AddCommand(factsCmd)
	factsCmd.AddCommand(factsAddCmd)
	factsCmd.AddCommand(factsListCmd)
	factsCmd.AddCommand(factsSearchCmd)
	factsCmd.AddCommand(factsRmCmd)

	factsCmd.PersistentFlags().BoolVar(&factJSON, "json", false, "Output results as JSON")

	factsAddCmd.Flags().StringVar(&factCategory, "category", string(facts.CategoryOther), "Fact category")
	factsAddCmd.Flags().StringVar(&factSource, "source", "", "Source text the fact was extracted from")
	factsAddCmd.Flags().Float64Var(&factConfidence, "confidence", 0.8, "Extraction confidence in [0, 1]")

	factsListCmd.Flags().StringVar(&factCategory, "category", "", "Filter by category")

	factsSearchCmd.Flags().IntVar(&factLimit, "limit", 10, "Maximum number of hits")
}

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Manage a user's extracted facts",
}

var factsAddCmd = &cobra.Command{
	Use:   "add <fact>",
	Short: "Store a fact, merging near-duplicates",
	Long: `Store a fact about the user. A fact that closely matches an existing
one of the same category is merged into it instead of creating a
duplicate.

Examples:
  recalld facts add --user alice --category preference "Enjoys going to beaches"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFactsAdd,
}

var factsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's facts",
	RunE:  runFactsList,
}

var factsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search a user's facts by similarity",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFactsSearch,
}

var factsRmCmd = &cobra.Command{
	Use:   "rm <fact-id>",
	Short: "Delete a fact",
	Args:  cobra.ExactArgs(1),
	RunE:  runFactsRm,
}

func runFactsAdd(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer func() { _ = d.logger.Sync() }()

	ctx, err := tenantContext(cmd.Context())
	if err != nil {
		return err
	}

	fact := strings.Join(args, " ")
	id, err := d.facts.AddFact(ctx, fact, facts.Category(factCategory), factSource, factConfidence)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runFactsList(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer func() { _ = d.logger.Sync() }()

	ctx, err := tenantContext(cmd.Context())
	if err != nil {
		return err
	}

	var records []*facts.FactRecord
	if factCategory != "" {
		records, err = d.facts.FactsByCategory(ctx, facts.Category(factCategory))
	} else {
		records, err = d.facts.ListFacts(ctx)
	}
	if err != nil {
		return err
	}

	if factJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tCONF\tFACT")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", rec.ID, rec.Category, rec.Confidence, oneLine(rec.Fact, 80))
	}
	return w.Flush()
}

func runFactsSearch(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer func() { _ = d.logger.Sync() }()

	ctx, err := tenantContext(cmd.Context())
	if err != nil {
		return err
	}

	hits, err := d.facts.SearchFacts(ctx, strings.Join(args, " "), factLimit)
	if err != nil {
		return err
	}

	if factJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tID\tCATEGORY\tFACT")
	for _, hit := range hits {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", hit.Similarity, hit.Fact.ID, hit.Fact.Category, oneLine(hit.Fact.Fact, 80))
	}
	return w.Flush()
}

func runFactsRm(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer func() { _ = d.logger.Sync() }()

	ctx, err := tenantContext(cmd.Context())
	if err != nil {
		return err
	}

	removed, err := d.facts.DeleteFact(ctx, args[0])
	if err != nil {
		return err
	}
	if !removed {
		fmt.Println("no fact with id", args[0])
		return nil
	}
	fmt.Println("deleted", args[0])
	return nil
}
