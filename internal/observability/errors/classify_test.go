package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ladlehq/ladle/internal/domain/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, ""},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"empty queue", fmt.Errorf("reserve: %w", model.ErrNoJobsAvailable), "no_jobs"},
		{"stock guard", model.ErrInsufficientStock, "insufficient_stock"},
		{"permanent marker", model.Permanent(errors.New("bad address")), "permanent"},
		{"plain error falls back to type", errors.New("boom"), "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
