package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// retryCmd re-downloads failed documents.
var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-download documents that failed",
	Long: `Finds documents in the FAILED state whose last attempt is older than
one hour, resets them, and downloads them again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			recovered, err := a.orchestrator.RetryFailed(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Recovered %d documents\n", recovered)
			return nil
		})
	},
}
