package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("resolve: %w", NewError(KindNetwork, "resolve", errors.New("connection refused")))

	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	err := Errorf(KindExtraction, "extract", "no pattern matched in %d bytes", 42)

	assert.Equal(t, "extraction error in extract: no pattern matched in 42 bytes", err.Error())
	assert.Equal(t, "validation error", (&Error{Kind: KindValidation}).Error())
}

func TestStrategyExhaustedError(t *testing.T) {
	err := &StrategyExhaustedError{
		Attempts: []DownloadAttempt{
			{Strategy: "external_tool", Outcome: OutcomeSkipped},
			{Strategy: "direct_stream", Outcome: OutcomeValidationError},
		},
		Cause: context.Canceled,
	}

	assert.ErrorIs(t, err, ErrStrategyExhausted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "external_tool=skipped")
	assert.Contains(t, err.Error(), "direct_stream=validation_error")

	var exhausted *StrategyExhaustedError
	assert.True(t, errors.As(fmt.Errorf("run: %w", err), &exhausted))
	assert.Len(t, exhausted.Attempts, 2)
}
