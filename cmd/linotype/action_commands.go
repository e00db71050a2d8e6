package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"linotype/internal/api"
	"linotype/internal/config"
	"linotype/internal/queue"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job, cooperatively if it is already running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				result, err := api.CancelJob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				switch result.Outcome {
				case api.CancelJobDone:
					fmt.Fprintf(out, "Job %s cancelled\n", result.JobID)
				case api.CancelJobRequested:
					fmt.Fprintf(out, "Job %s is running; it will stop at the next stage boundary\n", result.JobID)
				case api.CancelJobNotFound:
					return fmt.Errorf("job %s not found", result.JobID)
				default:
					return fmt.Errorf("job %s cannot be cancelled from status %s", result.JobID, result.PriorStatus)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newRequeueCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Return a failed job to the queue with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				result, err := api.RequeueJob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				switch result.Outcome {
				case api.RequeueDone:
					fmt.Fprintf(out, "Job %s requeued\n", result.JobID)
				case api.RequeueNotFound:
					return fmt.Errorf("job %s not found", result.JobID)
				default:
					return fmt.Errorf("job %s is %s; only failed jobs can be requeued", result.JobID, result.PriorStatus)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
