package main

import (
	"context"
	"errors"

	"github.com/koustreak/imgbed/internal/errs"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	switch errs.KindOf(err) {
	case errs.ErrKindDriverNotConfigured:
		lines = append(lines, "hint: enable and configure a driver with 'imgbed config set <driver> <json>'.")
	case errs.ErrKindIndexReadFailure:
		lines = append(lines, "hint: the index document is unreadable; fix or remove it before uploading.")
	case errs.ErrKindBackendRequestFailed, errs.ErrKindBackendUnavailable:
		lines = append(lines, "hint: run 'imgbed probe' to check backend connectivity.")
	}

	if errors.Is(err, context.DeadlineExceeded) || errs.IsTimeout(err) {
		lines = append(lines, "hint: request timed out; check network access to the backend.")
	}
	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := lines[:0]
	for _, l := range lines {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
