package api

import (
	"context"

	"linotype/internal/workflow"
)

// StorePinger reports store reachability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// WorkflowReporter surfaces workflow diagnostics.
type WorkflowReporter interface {
	Status(ctx context.Context) workflow.StatusSummary
}

// Health probes the store and collects workflow state into one report.
// Healthy means the store answers and every stage reports ready; a stopped
// workflow alone does not mark the daemon unhealthy.
func Health(ctx context.Context, store StorePinger, wf WorkflowReporter) HealthReport {
	report := HealthReport{Store: ComponentHealth{OK: true}}
	if store != nil {
		if err := store.Ping(ctx); err != nil {
			report.Store = ComponentHealth{OK: false, Detail: err.Error()}
		}
	}
	if wf != nil {
		report.Workflow = FromStatusSummary(wf.Status(ctx))
	}

	report.Healthy = report.Store.OK
	for _, h := range report.Workflow.StageHealth {
		if !h.Ready {
			report.Healthy = false
			break
		}
	}
	return report
}
