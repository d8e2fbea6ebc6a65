package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmuoria/talent-admin/internal/export"
	"github.com/fmuoria/talent-admin/internal/search"
)

var (
	exportOut     string
	exportUser    string
	exportQuery   string
	exportFilters map[string]string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's candidates to Excel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		found, err := e.Agent.FindCandidates(ctx, exportUser, search.Query{
			Text:    exportQuery,
			Filters: exportFilters,
		})
		if err != nil {
			return err
		}

		path, err := export.ExportCandidates(found, e.Agent.Catalog(), exportOut)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d candidates to %s\n", len(found), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "candidates.xlsx", "output path")
	exportCmd.Flags().StringVar(&exportUser, "user", "", "owner user id (required)")
	exportCmd.Flags().StringVar(&exportQuery, "q", "", "free-text search across every field")
	exportCmd.Flags().StringToStringVar(&exportFilters, "filter", nil, "per-field filters as FieldID=text")
	_ = exportCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(exportCmd)
}
