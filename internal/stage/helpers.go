package stage

import (
	"encoding/json"
	"strings"

	"linotype/internal/queue"
	"linotype/internal/services"
)

// ParseDraft decodes the converter output persisted on a job. Stages after
// convert depend on it; a missing or corrupt draft is a validation failure
// because re-running will not repair it.
func ParseDraft(raw string) (queue.Draft, error) {
	var draft queue.Draft
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return draft, services.Wrap(
			services.ErrValidation, "stage", "parse draft",
			"draft missing; convert stage has not produced output", nil)
	}
	if err := json.Unmarshal([]byte(trimmed), &draft); err != nil {
		return draft, services.Wrap(
			services.ErrValidation, "stage", "parse draft",
			"stored draft is not valid JSON", err)
	}
	if draft.CleanHTML == "" {
		return draft, services.Wrap(
			services.ErrValidation, "stage", "parse draft",
			"stored draft has no content", nil)
	}
	return draft, nil
}
