package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eclicrawler/internal/config"
	"eclicrawler/internal/validation"
)

// validateCmd validates an XML file without storing anything.
var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate an XML document against the crawl pipeline",
	Long: `Runs a local XML file through the same validation pipeline the crawler
applies to downloaded documents: security sanitization, structure parsing,
LegalDocML checks, and ECLI extraction.

With --quick only the fast checks run. The report is printed as JSON.

Examples:
  eclicrawler validate decision.xml
  eclicrawler validate decision.xml --quick --strict`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().Bool("quick", false, "Fast path only: sanitize, parse, format detect")
	validateCmd.Flags().Bool("strict", false, "Fail the document on any error")
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	path := configPath
	if path == "" {
		path = config.ConfigPath(workspace)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	strict, _ := cmd.Flags().GetBool("strict")
	svc := validation.NewService(validation.Options{
		SchemaEnabled:     cfg.Validation.SchemaEnabled,
		LegalDocMLEnabled: cfg.Validation.LegalDocMLEnabled,
		EcliEnabled:       cfg.Validation.EcliEnabled,
		StrictMode:        strict || cfg.Validation.StrictMode,
		MaxSizeBytes:      cfg.Validation.MaxSizeMiB * 1024 * 1024,
	})

	var report any
	var valid bool
	if quick, _ := cmd.Flags().GetBool("quick"); quick {
		r := svc.Quick(string(data))
		report, valid = r, r.Valid
	} else {
		r := svc.Comprehensive(string(data))
		report, valid = r, r.Valid
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !valid {
		os.Exit(1)
	}
	return nil
}
