package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunFailureError(t *testing.T) {
	err := &RunFailureError{
		Message: "run completed with 2 failed task(s); see results/assessment_errors_full_gpt-4o.txt",
	}

	assert.Equal(t, "run completed with 2 failed task(s); see results/assessment_errors_full_gpt-4o.txt", err.Error())
}

func TestErrorTypeDetection(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{
			name:     "RunFailureError",
			err:      &RunFailureError{Message: "run failure"},
			wantType: "RunFailureError",
		},
		{
			name:     "regular error",
			err:      errors.New("config error"),
			wantType: "other",
		},
		{
			name:     "wrapped RunFailureError",
			err:      errors.Join(&RunFailureError{Message: "run failure"}, errors.New("additional context")),
			wantType: "RunFailureError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runFailureErr *RunFailureError
			isRunFailure := errors.As(tt.err, &runFailureErr)

			if tt.wantType == "RunFailureError" {
				assert.True(t, isRunFailure, "expected error to be detected as RunFailureError")
			} else {
				assert.False(t, isRunFailure, "expected error NOT to be detected as RunFailureError")
			}
		})
	}
}
