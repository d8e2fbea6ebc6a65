package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmuoria/talent-admin/internal/ingestion"
	"github.com/fmuoria/talent-admin/internal/mapping"
)

var (
	gmailSubject string
	gmailUser    string
	gmailClean   bool
)

var gmailCmd = &cobra.Command{
	Use:   "gmail-fetch",
	Short: "Download spreadsheet attachments from Gmail",
	Long: "Downloads spreadsheet attachments of messages matching the subject into the upload directory. " +
		"With --user, every attachment whose required fields map automatically is imported.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if err := cfg.ValidateGmail(); err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		gh, err := ingestion.NewGmailHandler(ctx, ingestion.GmailOptions{
			CredentialsPath: cfg.Gmail.CredentialsPath,
			TokenPath:       cfg.Gmail.TokenPath,
			Files:           e.Agent.Files(),
			Prompt:          out,
			Answer:          os.Stdin,
		})
		if err != nil {
			return eris.Wrap(err, "gmail client")
		}

		if gmailClean {
			if err := e.Agent.Files().ClearUploads(); err != nil {
				return err
			}
		}

		e.Agent.SetProgressCallback(func(current, total int, message string) {
			zap.L().Info(message, zap.Int("current", current), zap.Int("total", total))
		})
		workflows, err := e.Agent.IngestFromGmail(ctx, gh, gmailSubject)
		if err != nil {
			return err
		}

		for _, wf := range workflows {
			printMapping(out, wf)
			if gmailUser == "" {
				continue
			}
			if err := wf.Review(); err != nil {
				var missing *mapping.MissingFieldsError
				if errors.As(err, &missing) {
					fmt.Fprintf(out, "  skipped, required fields are not mapped: %v\n", missing.Labels)
					continue
				}
				return err
			}
			res, err := e.Agent.Commit(ctx, gmailUser, wf)
			if err != nil {
				return err
			}
			printResult(out, res)
		}
		return nil
	},
}

func init() {
	gmailCmd.Flags().StringVar(&gmailSubject, "subject", "", "email subject to search for (required)")
	gmailCmd.Flags().StringVar(&gmailUser, "user", "", "import matching attachments on behalf of this user id")
	gmailCmd.Flags().BoolVar(&gmailClean, "clean", false, "empty the upload directory before downloading")
	_ = gmailCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(gmailCmd)
}
