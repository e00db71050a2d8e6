package services_test

import (
	"errors"
	"strings"
	"testing"

	"linotype/internal/queue"
	"linotype/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "publish", "upload media", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"publish", "upload media", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFailureStatusMapping(t *testing.T) {
	validationErr := services.Wrap(services.ErrValidation, "convert", "prepare", "invalid", nil)
	if status := services.FailureStatus(validationErr); status != queue.JobStatusFailed {
		t.Fatalf("expected failed for validation error, got %s", status)
	}

	tooLarge := services.Wrap(services.ErrPayloadTooLarge, "publish", "upload media", "all sizes rejected", nil)
	if status := services.FailureStatus(tooLarge); status != queue.JobStatusFailed {
		t.Fatalf("expected failed for payload-too-large error, got %s", status)
	}

	transientErr := services.Wrap(services.ErrTransient, "illustrate", "poll", "timeout", errors.New("io"))
	if status := services.FailureStatus(transientErr); status != queue.JobStatusRetrying {
		t.Fatalf("expected retrying for transient error, got %s", status)
	}

	untagged := errors.New("connection reset")
	if status := services.FailureStatus(untagged); status != queue.JobStatusRetrying {
		t.Fatalf("expected retrying for untagged error, got %s", status)
	}
}

func TestIsTransientTimeout(t *testing.T) {
	err := services.Wrap(services.ErrTimeout, "illustrate", "poll", "deadline", nil)
	if !services.IsTransient(err) {
		t.Fatal("expected timeout to be transient")
	}
}
