package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/dy-extract-go/internal/domain"
	"github.com/yourusername/dy-extract-go/pkg/logger"
	"go.uber.org/zap"
)

type runIDKey struct{}

// WithRunID attaches a run ID to ctx for attempt logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run ID attached to ctx, if any
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// DownloadStrategyChain tries its strategies in order until one saves a file
type DownloadStrategyChain struct {
	strategies  []domain.Strategy
	config      *domain.DownloadConfig
	disabled    map[string]bool
	multiLogger *logger.MultiLogger
	logger      *zap.Logger
}

// NewDownloadStrategyChain creates a chain over strategies, in priority order
func NewDownloadStrategyChain(
	strategies []domain.Strategy,
	config *domain.DownloadConfig,
	multiLogger *logger.MultiLogger,
	logger *zap.Logger,
) *DownloadStrategyChain {
	disabled := make(map[string]bool, len(config.DisabledStrategies))
	for _, name := range config.DisabledStrategies {
		disabled[name] = true
	}

	return &DownloadStrategyChain{
		strategies:  strategies,
		config:      config,
		disabled:    disabled,
		multiLogger: multiLogger,
		logger:      logger,
	}
}

// Names returns the strategy names in chain order
func (c *DownloadStrategyChain) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run executes the chain for ref. Every invocation, skip and failure is returned
// in the attempt log. On total failure the error is a *domain.StrategyExhaustedError.
// The workspace is closed before Run returns, keeping only the winning file.
func (c *DownloadStrategyChain) Run(ctx context.Context, ref *domain.VideoReference, ws *domain.Workspace) (*domain.SavedFile, []domain.DownloadAttempt, error) {
	if err := ref.Advance(domain.StatusDownloading); err != nil {
		return nil, nil, fmt.Errorf("failed to start chain: %w", err)
	}

	runID := RunIDFrom(ctx)
	attemptLog := &domain.AttemptLog{}
	var saved *domain.SavedFile
	var lastErr error

	for i, strategy := range c.strategies {
		if ctx.Err() != nil {
			for _, rest := range c.strategies[i:] {
				if err := c.record(attemptLog, runID, skippedAttempt(rest.Name(), ctx.Err())); err != nil {
					ws.Close("")
					return nil, attemptLog.Attempts(), err
				}
			}
			break
		}

		if c.disabled[strategy.Name()] {
			lastErr = domain.Errorf(domain.KindUnavailable, strategy.Name(), "disabled by configuration")
			if err := c.record(attemptLog, runID, skippedAttempt(strategy.Name(), lastErr)); err != nil {
				ws.Close("")
				return nil, attemptLog.Attempts(), err
			}
			continue
		}

		attempt, result := c.invoke(ctx, strategy, ref, ws)
		if err := c.record(attemptLog, runID, attempt); err != nil {
			ws.Close("")
			return nil, attemptLog.Attempts(), err
		}

		if result.Outcome == domain.OutcomeSuccess {
			saved = result.File
			break
		}
		lastErr = result.Err
	}

	attempts := attemptLog.Attempts()

	if saved != nil {
		ws.Close(saved.Path)
		if err := ref.MarkSaved(*saved); err != nil {
			return nil, attempts, err
		}
		c.logger.Info("Download completed",
			zap.String("run_id", runID),
			zap.String("url", ref.ShareURL),
			zap.String("file", saved.Path),
			zap.Int("attempts", len(attempts)))
		return saved, attempts, nil
	}

	ws.Close("")
	if ctx.Err() != nil {
		lastErr = ctx.Err()
	}
	if lastErr == nil {
		lastErr = errors.New("no strategies configured")
	}

	exhausted := &domain.StrategyExhaustedError{Attempts: attempts, Cause: lastErr}
	ref.MarkFailed(exhausted)
	c.logger.Error("Download failed after all strategies",
		zap.String("run_id", runID),
		zap.String("url", ref.ShareURL),
		zap.Error(exhausted))
	return nil, attempts, exhausted
}

// invoke runs one strategy under the per-strategy timeout. A panicking strategy
// is recorded as a network error instead of taking the run down.
func (c *DownloadStrategyChain) invoke(ctx context.Context, strategy domain.Strategy, ref *domain.VideoReference, ws *domain.Workspace) (attempt domain.DownloadAttempt, result domain.AttemptResult) {
	started := time.Now()
	attempt = domain.DownloadAttempt{Strategy: strategy.Name(), StartedAt: started}

	defer func() {
		if r := recover(); r != nil {
			result = domain.Failed(domain.Errorf(domain.KindNetwork, strategy.Name(), "strategy panicked: %v", r))
		}
		if result.Outcome == domain.OutcomeSuccess && result.File == nil {
			result = domain.Failed(domain.Errorf(domain.KindValidation, strategy.Name(), "reported success without a file"))
		}

		attempt.Duration = time.Since(started)
		attempt.Outcome = result.Outcome
		if result.Err != nil {
			attempt.ErrorDetail = result.Err.Error()
		}
		if result.File != nil {
			attempt.SavedPath = result.File.Path
		}
	}()

	c.logger.Debug("Trying strategy",
		zap.String("run_id", RunIDFrom(ctx)),
		zap.String("strategy", strategy.Name()),
		zap.String("url", ref.DownloadURL()))

	attemptCtx, cancel := withOptionalTimeout(ctx, c.config.StrategyTimeout)
	defer cancel()

	result = strategy.Attempt(attemptCtx, ref, ws)
	return attempt, result
}

func (c *DownloadStrategyChain) record(attemptLog *domain.AttemptLog, runID string, attempt domain.DownloadAttempt) error {
	if err := attemptLog.Record(attempt); err != nil {
		return fmt.Errorf("chain invariant violated by %s: %w", attempt.Strategy, err)
	}

	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.String("strategy", attempt.Strategy),
		zap.String("outcome", string(attempt.Outcome)),
		zap.Time("started_at", attempt.StartedAt),
		zap.Duration("duration", attempt.Duration),
	}
	if attempt.ErrorDetail != "" {
		fields = append(fields, zap.String("error", attempt.ErrorDetail))
	}
	if attempt.SavedPath != "" {
		fields = append(fields, zap.String("saved_path", attempt.SavedPath))
	}

	if c.multiLogger != nil {
		c.multiLogger.LogAttempt("strategy_attempt", fields...)
	}
	if attempt.Outcome == domain.OutcomeSuccess || attempt.Outcome == domain.OutcomeSkipped {
		c.logger.Info("Strategy attempt", fields...)
	} else {
		c.logger.Warn("Strategy attempt failed", fields...)
	}
	return nil
}

func skippedAttempt(name string, cause error) domain.DownloadAttempt {
	a := domain.DownloadAttempt{
		Strategy:  name,
		StartedAt: time.Now(),
		Outcome:   domain.OutcomeSkipped,
	}
	if cause != nil {
		a.ErrorDetail = cause.Error()
	}
	return a
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
