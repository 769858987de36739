package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"eclicrawler/internal/types"
)

// searchCmd queries the stored documents.
var searchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search stored documents",
	Long: `Runs a ranked full-text search over stored documents. Case numbers and
ECLI identifiers weigh strongest, then titles and summaries, then body text.

With --title only titles are matched; with --ecli the term is treated as an
exact ECLI identifier.

Examples:
  eclicrawler search "Kündigung Betriebsrat"
  eclicrawler search --ecli ECLI:DE:BAG:2023:100523.U.5AZR123.22.0
  eclicrawler search --court BGH --limit 20`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Bool("title", false, "Match titles only")
	searchCmd.Flags().Bool("ecli", false, "Look up one document by ECLI identifier")
	searchCmd.Flags().String("court", "", "List a court's documents instead of searching")
	searchCmd.Flags().Int("limit", 25, "Maximum results")
	searchCmd.Flags().Int("offset", 0, "Paging offset for --court listings")
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		limit, _ := cmd.Flags().GetInt("limit")

		if court, _ := cmd.Flags().GetString("court"); court != "" {
			offset, _ := cmd.Flags().GetInt("offset")
			docs, err := a.docs.FindByCourt(ctx, court, limit, offset)
			if err != nil {
				return err
			}
			printDocuments(docs)
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("a search term is required")
		}
		term := args[0]

		if byEcli, _ := cmd.Flags().GetBool("ecli"); byEcli {
			doc, err := a.docs.FindByEcli(ctx, term)
			if err != nil {
				return err
			}
			if doc == nil {
				fmt.Println("No document with that ECLI identifier")
				return nil
			}
			printDocuments([]*types.LegalDocument{doc})
			return nil
		}

		var docs []*types.LegalDocument
		var err error
		if titleOnly, _ := cmd.Flags().GetBool("title"); titleOnly {
			docs, err = a.docs.SearchTitle(ctx, term)
		} else {
			docs, err = a.docs.SearchText(ctx, term, limit)
		}
		if err != nil {
			return err
		}
		printDocuments(docs)
		return nil
	})
}

func printDocuments(docs []*types.LegalDocument) {
	if len(docs) == 0 {
		fmt.Println("No matches")
		return
	}
	for _, doc := range docs {
		title := doc.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%-12s %-8s %s  %s\n",
			doc.DocumentID, doc.Court, doc.DecisionDate.Format("2006-01-02"), title)
		if doc.Ecli != "" {
			fmt.Printf("             %s\n", doc.Ecli)
		}
	}
	fmt.Printf("\n%d results\n", len(docs))
}
