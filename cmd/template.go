package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmuoria/talent-admin/internal/export"
	"github.com/fmuoria/talent-admin/internal/models"
)

var templateOut string

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write a blank candidate spreadsheet template",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := export.ExportTemplate(models.DefaultCatalog(), templateOut)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", path)
		return nil
	},
}

func init() {
	templateCmd.Flags().StringVar(&templateOut, "out", "candidate-template.xlsx", "output path")
	rootCmd.AddCommand(templateCmd)
}
