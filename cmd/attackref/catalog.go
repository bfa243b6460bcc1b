package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valentinpelus/attackref/pkg/catalog"
)

var (
	catalogInput  string
	catalogOutput string
	catalogDomain string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the technique catalog",
}

var catalogBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the technique CSV from a STIX ATT&CK bundle",
	Long: `Reads a STIX 2.x ATT&CK bundle (for example enterprise-attack.json) and writes one row per
active tactic/technique pair, each technique followed by its sub-techniques.`,
	Args: cobra.NoArgs,
	RunE: runCatalogBuild,
}

func init() {
	catalogBuildCmd.Flags().StringVar(&catalogInput, "input", "enterprise-attack.json", "STIX bundle to read")
	catalogBuildCmd.Flags().StringVar(&catalogOutput, "output", "attack_tactics_techniques.csv", "CSV file to write")
	catalogBuildCmd.Flags().StringVar(&catalogDomain, "domain", catalog.DefaultDomain, "ATT&CK domain: enterprise-attack, mobile-attack or ics-attack")
	catalogCmd.AddCommand(catalogBuildCmd)
}

func runCatalogBuild(cmd *cobra.Command, _ []string) error {
	in, err := os.Open(catalogInput)
	if err != nil {
		return fmt.Errorf("failed to open STIX bundle: %w", err)
	}
	defer in.Close()

	result, err := catalog.BuildFromSTIX(in, catalog.BuildOptions{Domain: catalogDomain})
	if err != nil {
		return err
	}

	if err := writeCatalog(catalogOutput, result.Rows); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "[+] Saved %d rows to %s\n", len(result.Rows), catalogOutput)
	fmt.Fprintf(out, "[i] Skipped %d technique/sub-technique objects lacking ID/description/platform.\n", result.Skipped)
	return nil
}

// writeCatalog replaces path atomically so a running server never reads a half-written file
func writeCatalog(path string, rows []catalog.Technique) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create catalog file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := catalog.Write(tmp, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace catalog file: %w", err)
	}
	return nil
}
