// Package errors provides error classification helpers for metric tagging.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/ladlehq/ladle/internal/domain/model"
)

// Classify returns a normalized error class suitable for tagging metrics and
// logs. Domain sentinels get stable names; everything else falls back to the
// innermost concrete type converted to snake_case-ish.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, model.ErrNoJobsAvailable):
		return "no_jobs"
	case goerrors.Is(err, model.ErrInsufficientStock):
		return "insufficient_stock"
	case model.IsPermanent(err):
		return "permanent"
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
