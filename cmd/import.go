package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmuoria/talent-admin/internal/agent"
	"github.com/fmuoria/talent-admin/internal/mapping"
)

var (
	importFile    string
	importUser    string
	importMapping map[string]string
	importDryRun  bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import candidates from a spreadsheet",
	Long: "Reads a spreadsheet, suggests a column mapping and stores the candidates. " +
		"Use --map Header=FieldID to override suggestions; the import stops when a required field stays unmapped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		wf, err := e.Agent.OpenFile(ctx, importFile)
		if err != nil {
			return eris.Wrapf(err, "open %s", importFile)
		}
		for header, target := range importMapping {
			if err := wf.SetMapping(header, target); err != nil {
				return err
			}
		}

		printMapping(out, wf)
		if err := wf.Review(); err != nil {
			var missing *mapping.MissingFieldsError
			if errors.As(err, &missing) {
				fmt.Fprintf(out, "\nRequired fields are not mapped: %v\n", missing.Labels)
			}
			return err
		}
		if importDryRun {
			return wf.Cancel()
		}

		e.Agent.SetProgressCallback(func(current, total int, message string) {
			zap.L().Debug("import progress", zap.Int("current", current), zap.Int("total", total), zap.String("message", message))
		})
		res, err := e.Agent.Commit(ctx, importUser, wf)
		if err != nil {
			return eris.Wrap(err, "import")
		}
		printResult(out, res)
		return nil
	},
}

func printMapping(out io.Writer, wf *mapping.Workflow) {
	m := wf.Mapping()
	headers := wf.Dataset().Headers
	fmt.Fprintf(out, "%s: %d rows\n", wf.Dataset().Filename, len(wf.Dataset().AllRows))
	for _, h := range headers {
		target, ok := m[h]
		if !ok {
			target = "-"
		}
		fmt.Fprintf(out, "  %-30s -> %s\n", h, target)
	}
	for _, d := range wf.Duplicates() {
		fmt.Fprintf(out, "  warning: %s is mapped from %v\n", d.Target, d.Headers)
	}
	for _, w := range wf.Warnings() {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}

func printResult(out io.Writer, res *agent.UploadResult) {
	fmt.Fprintln(out, res.Summary)
	for _, f := range res.Run.Failures {
		fmt.Fprintf(out, "  row %d: %s\n", f.RowNumber, f.ErrorMessage)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to .xlsx, .xlsm, .csv or .tsv file (required)")
	importCmd.Flags().StringVar(&importUser, "user", "", "user id recorded as owner (required)")
	importCmd.Flags().StringToStringVar(&importMapping, "map", nil, "column overrides as Header=FieldID")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "print the mapping without storing anything")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(importCmd)
}
