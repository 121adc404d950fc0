package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/yourusername/dy-extract-go/internal/domain"
	"go.uber.org/zap"
)

// DirectStreamStrategy streams the candidate URL straight to disk with browser
// headers. The first chunk must classify as media before any file is created.
type DirectStreamStrategy struct {
	client       *http.Client
	httpConfig   *domain.HTTPConfig
	retry        *RetryPolicy
	writer       *MediaWriter
	logger       *zap.Logger
	cookieHeader string
}

// NewDirectStreamStrategy creates the direct stream strategy. The client has no
// overall timeout; the chain's per-strategy deadline bounds the transfer.
func NewDirectStreamStrategy(httpConfig *domain.HTTPConfig, retry *RetryPolicy, writer *MediaWriter, logger *zap.Logger) *DirectStreamStrategy {
	if retry == nil {
		retry = &RetryPolicy{MaxAttempts: 1}
	}

	s := &DirectStreamStrategy{
		client:     &http.Client{},
		httpConfig: httpConfig,
		retry:      retry,
		writer:     writer,
		logger:     logger,
	}
	if httpConfig.CookieFile != "" && fileExists(httpConfig.CookieFile) {
		if header, err := CookieHeaderFromFile(httpConfig.CookieFile); err == nil {
			s.cookieHeader = header
		}
	}
	return s
}

// Name returns the strategy name
func (s *DirectStreamStrategy) Name() string {
	return StrategyDirectStream
}

// Attempt downloads ref's candidate URL, or its share URL when none was found
func (s *DirectStreamStrategy) Attempt(ctx context.Context, ref *domain.VideoReference, ws *domain.Workspace) domain.AttemptResult {
	target := ref.DownloadURL()

	resp, err := s.open(ctx, target)
	if err != nil {
		return domain.Failed(err)
	}
	defer resp.Body.Close()

	saved, err := s.writer.Save(ctx, resp.Body, resp.Header.Get("Content-Type"), resp.Request.URL.String(), ws, "")
	if err != nil {
		return domain.Failed(err)
	}

	s.logger.Debug("Direct stream saved",
		zap.String("url", target),
		zap.String("path", saved.Path),
		zap.Int64("bytes", saved.ByteSize))
	return domain.Succeeded(saved)
}

// open issues the GET under the retry policy. Transport errors and 5xx are
// retried; other non-2xx statuses fail at once.
func (s *DirectStreamStrategy) open(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "direct stream", err)
	}
	req.Header = MediaHeaders(s.httpConfig)
	if s.cookieHeader != "" {
		req.Header.Set("Cookie", s.cookieHeader)
	}

	policy := *s.retry
	policy.Retryable = func(err error) bool {
		var statusErr *statusError
		if errors.As(err, &statusErr) {
			return statusErr.code >= 500
		}
		return true
	}

	var resp *http.Response
	err = policy.Do(ctx, func(ctx context.Context) error {
		r, err := s.client.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
			r.Body.Close()
			return &statusError{code: r.StatusCode}
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewError(domain.KindNetwork, "direct stream", err)
	}
	return resp, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}
