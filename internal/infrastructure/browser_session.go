package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/dy-extract-go/internal/domain"
	"go.uber.org/zap"
)

const (
	captureBufferSize    = 16
	videoElementTarget   = "video"
	defaultWarmupTimeout = 10 * time.Second
)

// BrowserLauncher opens browser sessions with a fixed configuration
type BrowserLauncher struct {
	engine    BrowserEngine
	config    *domain.BrowserConfig
	userAgent string
	extractor *PatternExtractor
	writer    *MediaWriter
	logger    *zap.Logger
}

// NewBrowserLauncher creates a launcher for engine
func NewBrowserLauncher(
	engine BrowserEngine,
	config *domain.BrowserConfig,
	userAgent string,
	extractor *PatternExtractor,
	writer *MediaWriter,
	logger *zap.Logger,
) *BrowserLauncher {
	return &BrowserLauncher{
		engine:    engine,
		config:    config,
		userAgent: userAgent,
		extractor: extractor,
		writer:    writer,
		logger:    logger,
	}
}

// Enabled reports whether browser strategies may run at all
func (l *BrowserLauncher) Enabled() bool {
	return l.config.Enabled && l.engine != nil
}

// Open launches a browser and returns a session owning it. The caller must
// Close the session; WithBrowserSession does that for you.
func (l *BrowserLauncher) Open(ctx context.Context) (*BrowserSession, error) {
	if !l.Enabled() {
		return nil, domain.Errorf(domain.KindUnavailable, "open browser", "browser disabled")
	}

	browser, err := l.engine.Launch(ctx, LaunchOptions{
		ProfileDir: l.config.ProfileDir,
		UserAgent:  l.userAgent,
		ExecPath:   l.config.ExecPath,
		Headless:   l.config.Headless,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if domain.KindOf(err) == "" {
			err = domain.NewError(domain.KindUnavailable, "open browser", err)
		}
		return nil, err
	}

	return &BrowserSession{
		launcher: l,
		browser:  browser,
		logger:   l.logger,
	}, nil
}

// WithBrowserSession opens a session, runs fn and closes the session on every
// exit path including panics.
func WithBrowserSession(ctx context.Context, launcher *BrowserLauncher, fn func(*BrowserSession) error) (err error) {
	session, err := launcher.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			launcher.logger.Warn("Failed to close browser session", zap.Error(closeErr))
		}
	}()
	return fn(session)
}

// BrowserSession owns one running browser. It is used by a single strategy
// invocation and never shared between runs.
type BrowserSession struct {
	launcher *BrowserLauncher
	browser  BrowserContext
	logger   *zap.Logger

	mu     sync.Mutex
	pages  []BrowserPage
	warmup *responseCapture

	closeOnce sync.Once
	closeErr  error
}

// Close closes every page and the browser. It is safe to call more than once.
func (s *BrowserSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		pages := s.pages
		s.pages = nil
		s.mu.Unlock()

		for _, p := range pages {
			p.Close()
		}
		s.closeErr = s.browser.Close()
	})
	return s.closeErr
}

// renderResult is what a rendered page yielded
type renderResult struct {
	captured *NetworkResponse
	domURL   string
}

func (r *renderResult) mediaURL() string {
	if r.captured != nil {
		return r.captured.URL
	}
	return r.domURL
}

// RenderAndExtract loads url in a fresh page and returns the first media URL
// seen on the network, or failing that one found in the rendered DOM.
func (s *BrowserSession) RenderAndExtract(ctx context.Context, url string, timeout time.Duration) (string, error) {
	res, err := s.render(ctx, url, timeout, nil)
	if err != nil {
		return "", err
	}
	if mediaURL := res.mediaURL(); mediaURL != "" {
		return mediaURL, nil
	}
	return "", domain.Errorf(domain.KindExtraction, "render and extract", "no media URL found on %s", url)
}

// FetchAndCapture fetches url through the browser's authenticated stack. A media
// body is saved as _browser. Anything else falls through to rendering the page
// and saving the captured or DOM-extracted media as _captured. timeout starts
// after the warm-up, which has its own bound.
func (s *BrowserSession) FetchAndCapture(ctx context.Context, url string, ws *domain.Workspace, timeout time.Duration) (*domain.SavedFile, error) {
	s.warmUp(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	saved, err := s.Download(ctx, url, ws, "browser")
	if err == nil {
		return saved, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.logger.Debug("Direct browser fetch did not return media, rendering page",
		zap.String("url", url),
		zap.Error(err))
	lastErr := err

	res, err := s.render(ctx, url, s.launcher.config.NavigationTimeout, s.warmup)
	if err != nil {
		return nil, err
	}

	if res.captured != nil {
		saved, err := s.saveCaptured(ctx, *res.captured, ws)
		if err == nil {
			return saved, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	if res.domURL != "" {
		return s.Download(ctx, res.domURL, ws, "captured")
	}
	return nil, lastErr
}

// Download fetches mediaURL with the session's cookies and saves it when it
// classifies as media
func (s *BrowserSession) Download(ctx context.Context, mediaURL string, ws *domain.Workspace, suffix string) (*domain.SavedFile, error) {
	resp, err := s.browser.Get(ctx, mediaURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if domain.KindOf(err) == "" {
			err = domain.NewError(domain.KindNetwork, "browser fetch", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.Status < 200 || resp.Status >= 300 {
		return nil, domain.Errorf(domain.KindNetwork, "browser fetch", "unexpected status %d for %s", resp.Status, mediaURL)
	}

	return s.launcher.writer.Save(ctx, resp.Body, resp.Header.Get("Content-Type"), mediaURL, ws, suffix)
}

// saveCaptured loads a captured response body from the browser, falling back to
// an authenticated re-fetch when the engine cannot return it
func (s *BrowserSession) saveCaptured(ctx context.Context, resp NetworkResponse, ws *domain.Workspace) (*domain.SavedFile, error) {
	if resp.Body == nil {
		return s.Download(ctx, resp.URL, ws, "captured")
	}

	body, err := resp.Body(ctx)
	if err == nil && len(body) > 0 {
		var saved *domain.SavedFile
		saved, err = s.launcher.writer.Save(ctx, bytes.NewReader(body), resp.ContentType, resp.URL, ws, "captured")
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
	}
	s.logger.Debug("Captured body not usable, fetching again",
		zap.String("url", resp.URL),
		zap.Error(err))
	return s.Download(ctx, resp.URL, ws, "captured")
}

// warmUp visits the platform home page so the profile picks up fresh cookies.
// It gives up after WarmupTimeout; failures are logged and ignored.
func (s *BrowserSession) warmUp(ctx context.Context) {
	warmupURL := s.launcher.config.WarmupURL
	if warmupURL == "" {
		return
	}

	page, err := s.newPage(ctx)
	if err != nil {
		s.logger.Debug("Warm-up skipped", zap.Error(err))
		return
	}

	s.warmup = newResponseCapture(s.logger)
	page.OnResponse(s.warmup.listen)

	timeout := s.launcher.config.WarmupTimeout
	if timeout <= 0 {
		timeout = defaultWarmupTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.Goto(navCtx, warmupURL); err != nil {
		s.logger.Debug("Warm-up navigation failed",
			zap.String("url", warmupURL),
			zap.Error(err))
	}
}

// render navigates a fresh page to url, waits for it to settle, pokes the video
// element and collects what it found. extra is an earlier capture whose hits
// also count.
func (s *BrowserSession) render(ctx context.Context, url string, timeout time.Duration, extra *responseCapture) (*renderResult, error) {
	cfg := s.launcher.config

	page, err := s.newPage(ctx)
	if err != nil {
		return nil, err
	}

	capture := newResponseCapture(s.logger)
	page.OnResponse(capture.listen)

	navCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()
	if err := page.Goto(navCtx, url); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if hit, ok := firstCapture(capture, extra); ok {
			return &renderResult{captured: &hit}, nil
		}
		if domain.KindOf(err) == "" {
			err = domain.NewError(domain.KindNetwork, "navigate", err)
		}
		return nil, err
	}

	if err := sleepContext(ctx, cfg.SettleTime); err != nil {
		return nil, err
	}

	if cfg.ClickTimeout > 0 {
		clickCtx, cancel := context.WithTimeout(ctx, cfg.ClickTimeout)
		if err := page.Click(clickCtx, videoElementTarget); err != nil {
			s.logger.Debug("Video element click failed", zap.Error(err))
		}
		cancel()
		if err := sleepContext(ctx, cfg.ClickWait); err != nil {
			return nil, err
		}
	}

	if hit, ok := firstCapture(capture, extra); ok {
		return &renderResult{captured: &hit}, nil
	}

	html, err := page.Content(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("Failed to read rendered page", zap.Error(err))
		return &renderResult{}, nil
	}

	info := s.launcher.extractor.ExtractFromRendered(html)
	if !info.Success {
		return &renderResult{}, nil
	}
	return &renderResult{domURL: info.MediaURL}, nil
}

func (s *BrowserSession) newPage(ctx context.Context) (BrowserPage, error) {
	page, err := s.browser.NewPage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()
	return page, nil
}

// responseCapture collects media-looking responses from a page listener. The
// listener never blocks; once the buffer is full later hits are dropped, which
// keeps the first one.
type responseCapture struct {
	ch     chan NetworkResponse
	logger *zap.Logger

	mu    sync.Mutex
	first *NetworkResponse
}

func newResponseCapture(logger *zap.Logger) *responseCapture {
	return &responseCapture{ch: make(chan NetworkResponse, captureBufferSize), logger: logger}
}

func (c *responseCapture) listen(resp NetworkResponse) {
	if !IsMediaResponse(resp.URL, resp.ContentType) {
		return
	}
	c.logger.Debug("Media response captured",
		zap.String("url", resp.URL),
		zap.String("content_type", resp.ContentType),
		zap.Int("status", resp.Status))

	select {
	case c.ch <- resp:
	default:
	}
}

// take returns the earliest capture so far. Later captures are drained and
// logged as unused candidates.
func (c *responseCapture) take() (NetworkResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		select {
		case resp := <-c.ch:
			if c.first == nil {
				r := resp
				c.first = &r
				continue
			}
			c.logger.Debug("Ignoring additional media candidate", zap.String("url", resp.URL))
		default:
			if c.first == nil {
				return NetworkResponse{}, false
			}
			return *c.first, true
		}
	}
}

// firstCapture prefers the page's own capture over an earlier one
func firstCapture(primary, extra *responseCapture) (NetworkResponse, bool) {
	if resp, ok := primary.take(); ok {
		return resp, true
	}
	if extra != nil {
		return extra.take()
	}
	return NetworkResponse{}, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
