package domain

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Outcome is the result category of a single strategy attempt
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeNetworkError    Outcome = "network_error"
	OutcomeValidationError Outcome = "validation_error"
	OutcomeSkipped         Outcome = "skipped"
)

// DownloadAttempt records one strategy invocation
type DownloadAttempt struct {
	Strategy    string        `json:"strategy"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Outcome     Outcome       `json:"outcome"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	SavedPath   string        `json:"saved_path,omitempty"`
}

// AttemptResult is what a strategy returns to the chain
type AttemptResult struct {
	Outcome Outcome
	File    *SavedFile
	Err     error
}

// Succeeded builds a success result
func Succeeded(file *SavedFile) AttemptResult {
	return AttemptResult{Outcome: OutcomeSuccess, File: file}
}

// Failed builds a failure result whose outcome follows the error kind
func Failed(err error) AttemptResult {
	return AttemptResult{Outcome: OutcomeFor(err), Err: err}
}

// OutcomeFor maps an error to the attempt outcome it is recorded as
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrValidation):
		return OutcomeValidationError
	case errors.Is(err, ErrUnavailable):
		return OutcomeSkipped
	default:
		return OutcomeNetworkError
	}
}

// Strategy is one acquisition method of the download chain
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, ref *VideoReference, ws *Workspace) AttemptResult
}

// AttemptLog is the ordered, append-only attempt log of one chain run.
// Nothing can be recorded after a success.
type AttemptLog struct {
	mu        sync.Mutex
	attempts  []DownloadAttempt
	succeeded bool
}

// Record appends an attempt
func (l *AttemptLog) Record(a DownloadAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.succeeded {
		return ErrAttemptAfterSuccess
	}
	if a.Outcome == OutcomeSuccess {
		l.succeeded = true
	}
	l.attempts = append(l.attempts, a)
	return nil
}

// Attempts returns a copy of the recorded attempts
func (l *AttemptLog) Attempts() []DownloadAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]DownloadAttempt, len(l.attempts))
	copy(out, l.attempts)
	return out
}

// Succeeded reports whether a success was recorded
func (l *AttemptLog) Succeeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.succeeded
}

// Len returns the number of recorded attempts
func (l *AttemptLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}
