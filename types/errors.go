package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used across the engines. Callers classify failures with
// errors.Is; the CLI maps them to exit codes and messages.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIOFailure       = errors.New("io failure")
	ErrConflict        = errors.New("conflict")
)

// WrapError tags err with one of the sentinel markers above while keeping the
// original error in the chain. detail parts are joined with ": " and empty
// parts are dropped.
func WrapError(marker error, err error, detail ...string) error {
	msg := joinDetail(detail)
	if err != nil {
		if msg == "" {
			return fmt.Errorf("%w: %w", marker, err)
		}
		return fmt.Errorf("%w: %s: %w", marker, msg, err)
	}
	return fmt.Errorf("%w: %s", marker, msg)
}

func joinDetail(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ": ")
}
