package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"linotype/internal/api"
	"linotype/internal/config"
	"linotype/internal/logging"
	"linotype/internal/queue"
	"linotype/internal/services"
	"linotype/internal/submission"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		req     submission.Request
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a document for publication",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				directory, err := ctx.directory()
				if err != nil {
					return err
				}
				intake := submission.NewIntake(store, directory, cfg.Workflow.MaxAttempts, logging.NewNop())
				result, err := intake.Submit(cmd.Context(), req)
				if err != nil {
					if errors.Is(err, services.ErrValidation) {
						return fmt.Errorf("submission rejected: %w", err)
					}
					return err
				}

				if jsonOut {
					return writeJSON(cmd, api.SubmitResponse{
						SubmissionID: result.SubmissionID,
						JobID:        result.JobID,
						Deduplicated: result.Deduplicated,
					})
				}
				out := cmd.OutOrStdout()
				if result.Deduplicated {
					fmt.Fprintln(out, "Matched an earlier submission with the same idempotency key")
				}
				fmt.Fprintf(out, "Submission: %s\n", result.SubmissionID)
				fmt.Fprintf(out, "Job:        %s\n", result.JobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.ClientID, "client", "", "Submitting client identifier")
	cmd.Flags().StringVar(&req.TargetHost, "target", "", "Publish target host from the target directory")
	cmd.Flags().StringVar(&req.SourceKind, "source", "doc-link", "Source kind: doc-link or uploaded-file")
	cmd.Flags().StringVar(&req.DocURL, "doc-url", "", "Document URL for doc-link sources")
	cmd.Flags().StringVar(&req.FileURL, "file-url", "", "File URL for uploaded-file sources")
	cmd.Flags().StringVar(&req.LinkPlacement, "placement", "", "Source link placement: intro or conclusion")
	cmd.Flags().StringVar(&req.PublishState, "state", "", "Publish state: draft or publish")
	cmd.Flags().StringVar(&req.Title, "title", "", "Override the derived post title")
	cmd.Flags().StringVar(&req.ExcerptHint, "excerpt", "", "Excerpt hint for the published post")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "Free-form operator notes")
	cmd.Flags().StringVar(&req.IdempotencyKey, "idempotency-key", "", "Client-supplied idempotency key")
	cmd.Flags().BoolVar(&req.DeriveKey, "derive-key", false, "Derive an idempotency key from the request identity")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}
