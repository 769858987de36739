package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// statusCmd reports store contents and archive size.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document counts and storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			total, err := a.docs.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Documents: %d\n\n", total)

			byStatus, err := a.docs.CountByStatus(ctx)
			if err != nil {
				return err
			}
			fmt.Println("By status:")
			printCounts(byStatus)

			byCourt, err := a.docs.CountByCourt(ctx)
			if err != nil {
				return err
			}
			fmt.Println("\nBy court:")
			printCounts(byCourt)

			if a.archive != nil {
				stats, err := a.archive.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("\nArchive: %d files, %.1f MiB under %s\n",
					stats.FileCount, stats.TotalSizeMiB(), a.archive.BasePath())
			}
			return nil
		})
	},
}

func printCounts(counts map[string]int64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k, counts[k])
	}
	if len(keys) == 0 {
		fmt.Println("  (none)")
	}
}
