package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"linotype/internal/api"
	"linotype/internal/config"
	"linotype/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		jobID        string
		submissionID string
		idemKey      string
		jsonOut      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status and event trail for a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				report, err := api.NewJobService(store).Resolve(cmd.Context(), api.StatusQuery{
					JobID:          jobID,
					SubmissionID:   submissionID,
					IdempotencyKey: idemKey,
				})
				if err != nil {
					return err
				}
				if report == nil {
					return fmt.Errorf("no matching submission or job")
				}
				if jsonOut {
					return writeJSON(cmd, report)
				}
				renderStatusReport(cmd, report)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Job identifier")
	cmd.Flags().StringVar(&submissionID, "submission", "", "Submission identifier")
	cmd.Flags().StringVar(&idemKey, "key", "", "Idempotency key")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func renderStatusReport(cmd *cobra.Command, report *api.StatusReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	if report.Submission != nil && report.Job == nil {
		sub := report.Submission
		fmt.Fprintln(out, renderStatusLine("Submission", statusKindForSubmission(sub.Status), sub.Status, colorize))
		if sub.RejectionReason != "" {
			fmt.Fprintln(out, renderStatusLine("Reason", statusError, sub.RejectionReason, colorize))
		}
		return
	}

	job := report.Job
	fmt.Fprintln(out, renderStatusLine("Job", statusKindForJob(job.Status), job.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("Stage", statusInfo, job.Stage, colorize))
	fmt.Fprintln(out, renderStatusLine("Attempts", statusInfo, fmt.Sprintf("%d of %d", job.AttemptCount, job.MaxAttempts), colorize))
	if job.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, job.LastError, colorize))
	}
	if job.NextAttemptAt != "" {
		fmt.Fprintln(out, renderStatusLine("Next attempt", statusWarn, job.NextAttemptAt, colorize))
	}
	if job.PostURL != "" {
		fmt.Fprintln(out, renderStatusLine("Post", statusOK, job.PostURL, colorize))
	}

	if len(report.Events) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Events", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, event := range report.Events {
		detail := event.Type
		if len(event.Payload) > 0 {
			detail = fmt.Sprintf("%s %s", event.Type, strings.TrimSpace(string(event.Payload)))
		}
		fmt.Fprintf(out, "%s%s  %s\n", statusIndent, shortTimestamp(event.CreatedAt), detail)
	}
}

func statusKindForJob(status string) statusKind {
	switch status {
	case string(queue.JobStatusSucceeded):
		return statusOK
	case string(queue.JobStatusFailed), string(queue.JobStatusCancelled):
		return statusError
	case string(queue.JobStatusRetrying):
		return statusWarn
	default:
		return statusInfo
	}
}

func statusKindForSubmission(status string) statusKind {
	switch status {
	case string(queue.SubmissionRejected):
		return statusError
	case string(queue.SubmissionQueued):
		return statusOK
	default:
		return statusInfo
	}
}
