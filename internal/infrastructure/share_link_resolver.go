package infrastructure

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"go.uber.org/zap"
)

const defaultMaxPageBytes = 16 << 20

// Resolution is the outcome of fetching a share link
type Resolution struct {
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// ShareLinkResolver fetches share links, following redirects, with browser-like headers
type ShareLinkResolver struct {
	client       *http.Client
	config       *domain.HTTPConfig
	retry        *RetryPolicy
	logger       *zap.Logger
	cookieHeader string
	maxBodyBytes int64
}

// NewShareLinkResolver creates a resolver. A nil retry policy means a single attempt.
func NewShareLinkResolver(config *domain.HTTPConfig, retry *RetryPolicy, logger *zap.Logger) *ShareLinkResolver {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retry == nil {
		retry = &RetryPolicy{MaxAttempts: 1}
	}

	r := &ShareLinkResolver{
		client:       &http.Client{Timeout: timeout},
		config:       config,
		retry:        retry,
		logger:       logger,
		maxBodyBytes: defaultMaxPageBytes,
	}

	if config.CookieFile != "" && fileExists(config.CookieFile) {
		header, err := CookieHeaderFromFile(config.CookieFile)
		if err != nil {
			logger.Warn("Ignoring unreadable cookie file",
				zap.String("path", config.CookieFile),
				zap.Error(err))
		} else {
			r.cookieHeader = header
		}
	}

	return r
}

// Resolve fetches rawURL. A non-2xx final status still returns the body; only
// transport failures, after retries, are errors.
func (r *ShareLinkResolver) Resolve(ctx context.Context, rawURL string) (*Resolution, error) {
	u, err := ParseShareURL(rawURL)
	if err != nil {
		return nil, err
	}

	var res *Resolution
	err = r.retry.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		res, fetchErr = r.fetch(ctx, u.String())
		if fetchErr != nil {
			r.logger.Debug("Share link fetch failed",
				zap.String("url", rawURL),
				zap.Error(fetchErr))
		}
		return fetchErr
	})
	if err != nil {
		return nil, domain.NewError(domain.KindNetwork, "resolve", err)
	}

	r.logger.Debug("Share link resolved",
		zap.String("url", rawURL),
		zap.String("final_url", res.FinalURL),
		zap.Int("status", res.StatusCode),
		zap.Int("bytes", len(res.Body)))

	return res, nil
}

// ParseShareURL accepts only absolute http(s) URLs with a host
func ParseShareURL(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "parse share url", "empty URL")
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "parse share url", "not an absolute http(s) URL: %q", rawURL)
	}
	return u, nil
}

func (r *ShareLinkResolver) fetch(ctx context.Context, target string) (*Resolution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header = RequestHeaders(r.config)
	if r.cookieHeader != "" {
		req.Header.Set("Cookie", r.cookieHeader)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	body, err := decodeBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}

	return &Resolution{
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// decodeBody undoes Content-Encoding; setting Accept-Encoding ourselves turns off
// the transport's transparent gzip handling.
func decodeBody(raw []byte, encoding string) ([]byte, error) {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			// some servers send raw deflate without the zlib wrapper
			reader = flate.NewReader(bytes.NewReader(raw))
		} else {
			defer zr.Close()
			reader = zr
		}
	case "br", "brotli":
		reader = brotli.NewReader(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}

	body, err := io.ReadAll(reader)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return body, nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
