package app

import (
	"context"
	"sync"

	"github.com/yourusername/dy-extract-go/internal/domain"
	"github.com/yourusername/dy-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// Engine is anything that can run one acquisition
type Engine interface {
	Acquire(ctx context.Context, shareURL string) (*domain.Result, error)
}

// BatchRunner runs independent acquisitions with bounded concurrency
type BatchRunner struct {
	engine      Engine
	limit       int
	multiLogger *logger.MultiLogger
	logger      *zap.Logger
}

// NewBatchRunner creates a batch runner. limit < 1 means one at a time.
func NewBatchRunner(engine Engine, limit int, multiLogger *logger.MultiLogger, logger *zap.Logger) *BatchRunner {
	if limit < 1 {
		limit = 1
	}
	return &BatchRunner{
		engine:      engine,
		limit:       limit,
		multiLogger: multiLogger,
		logger:      logger,
	}
}

// Run acquires every URL and returns the results in input order. It waits for
// all runs, including ones still in flight when ctx is cancelled.
func (b *BatchRunner) Run(ctx context.Context, shareURLs []string) []*domain.Result {
	results := make([]*domain.Result, len(shareURLs))
	sem := make(chan struct{}, b.limit)
	var wg sync.WaitGroup

	b.logger.Info("Batch started",
		zap.Int("urls", len(shareURLs)),
		zap.Int("concurrency", b.limit))

	for i, shareURL := range shareURLs {
		if ctx.Err() == nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			for j := i; j < len(shareURLs); j++ {
				results[j] = cancelledResult(shareURLs[j], ctx.Err())
			}
			break
		}

		wg.Add(1)
		go func(i int, shareURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := b.engine.Acquire(ctx, shareURL)
			if result == nil {
				result = cancelledResult(shareURL, err)
			}
			results[i] = result

			if err != nil {
				b.logger.Warn("Batch item failed",
					zap.String("url", shareURL),
					zap.String("run_id", result.RunID),
					zap.Error(err))
				if b.multiLogger != nil {
					b.multiLogger.LogAppError("Batch item failed",
						zap.String("url", shareURL),
						zap.String("run_id", result.RunID),
						zap.Error(err))
				}
			}
		}(i, shareURL)
	}

	wg.Wait()
	b.logger.Info("Batch finished", zap.Int("saved", countSaved(results)), zap.Int("total", len(results)))
	return results
}

// cancelledResult stands in for runs that never started
func cancelledResult(shareURL string, err error) *domain.Result {
	ref := domain.NewVideoReference(shareURL)
	ref.MarkFailed(err)
	return domain.NewResult("", ref, nil, err)
}

func countSaved(results []*domain.Result) int {
	n := 0
	for _, r := range results {
		if r != nil && r.Saved() {
			n++
		}
	}
	return n
}
