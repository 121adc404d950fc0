package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	neturl "net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"go.uber.org/zap"
)

// browserCloseTimeout bounds the graceful shutdown before the process is killed
const browserCloseTimeout = 5 * time.Second

// ChromedpEngine is a BrowserEngine backed by a local Chrome/Chromium via chromedp
type ChromedpEngine struct {
	httpConfig *domain.HTTPConfig
	logger     *zap.Logger
}

// NewChromedpEngine creates a chromedp engine. httpConfig supplies headers for
// the authenticated Get.
func NewChromedpEngine(httpConfig *domain.HTTPConfig, logger *zap.Logger) *ChromedpEngine {
	return &ChromedpEngine{httpConfig: httpConfig, logger: logger}
}

// Launch starts a browser process. The browser outlives ctx; ctx only bounds the
// launch itself.
func (e *ChromedpEngine) Launch(ctx context.Context, opts LaunchOptions) (BrowserContext, error) {
	userAgent := firstNonEmpty(opts.UserAgent, e.httpConfig.UserAgent, domain.DefaultUserAgent)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.UserAgent(userAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.ProfileDir != "" {
		if err := os.MkdirAll(opts.ProfileDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create browser profile directory: %w", err)
		}
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		e.logger.Debug(fmt.Sprintf(format, args...))
	}))
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// The first Run allocates the browser, so it must not carry a deadline
	if err := runDetached(ctx, browserCtx, network.Enable()); err != nil {
		cancel()
		return nil, err
	}

	e.logger.Debug("Browser launched",
		zap.String("profile", opts.ProfileDir),
		zap.Bool("headless", opts.Headless))

	return &chromedpContext{
		ctx:       browserCtx,
		cancel:    cancel,
		userAgent: userAgent,
		headers:   MediaHeaders(e.httpConfig),
		client:    &http.Client{},
	}, nil
}

type chromedpContext struct {
	ctx       context.Context
	cancel    context.CancelFunc
	userAgent string
	headers   http.Header
	client    *http.Client
	closeOnce sync.Once
}

func (c *chromedpContext) NewPage(ctx context.Context) (BrowserPage, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.ctx)
	if err := runDetached(ctx, tabCtx, network.Enable()); err != nil {
		tabCancel()
		return nil, err
	}

	p := &chromedpPage{ctx: tabCtx, cancel: tabCancel}
	chromedp.ListenTarget(tabCtx, p.handleEvent)
	return p, nil
}

// Get copies the browser's cookies for url into a plain HTTP request
func (c *chromedpContext) Get(ctx context.Context, url string) (*FetchedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "browser get", err)
	}

	var cookies []*network.Cookie
	err = runBound(ctx, c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read browser cookies: %w", err)
	}

	req.Header = c.headers.Clone()
	req.Header.Set("User-Agent", c.userAgent)
	if header := cookieHeaderFor(req.URL, cookies, time.Now()); header != "" {
		req.Header.Set("Cookie", header)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindNetwork, "browser get", err)
	}
	return &FetchedResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     resp.Body,
		FinalURL: resp.Request.URL.String(),
	}, nil
}

// cookieHeaderFor keeps the cookies a browser would send to u: domain and
// path must match, secure cookies need https and expired ones are dropped
func cookieHeaderFor(u *neturl.URL, cookies []*network.Cookie, now time.Time) string {
	host := u.Hostname()
	reqPath := u.EscapedPath()
	if reqPath == "" {
		reqPath = "/"
	}

	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		cookieDomain := strings.TrimPrefix(ck.Domain, ".")
		if host != cookieDomain && !strings.HasSuffix(host, "."+cookieDomain) {
			continue
		}
		if !cookiePathMatches(reqPath, ck.Path) {
			continue
		}
		if ck.Secure && u.Scheme != "https" {
			continue
		}
		if !ck.Session && ck.Expires > 0 && now.After(time.Unix(int64(ck.Expires), 0)) {
			continue
		}
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

func cookiePathMatches(reqPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" || reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func (c *chromedpContext) Close() error {
	c.closeOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			_ = chromedp.Cancel(c.ctx)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(browserCloseTimeout):
		}
		c.cancel()
	})
	return nil
}

type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handlers []func(NetworkResponse)
}

func (p *chromedpPage) OnResponse(fn func(NetworkResponse)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, fn)
}

// handleEvent reports a response as soon as its headers arrive. Media streams
// may never finish loading while the player holds them open, so the body is
// only fetched on demand.
func (p *chromedpPage) handleEvent(ev interface{}) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Response == nil {
		return
	}

	id := e.RequestID
	resp := NetworkResponse{
		URL:         e.Response.URL,
		ContentType: e.Response.MimeType,
		Status:      int(e.Response.Status),
		Body: func(ctx context.Context) ([]byte, error) {
			var body []byte
			err := runBound(ctx, p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				body, err = network.GetResponseBody(id).Do(ctx)
				return err
			}))
			return body, err
		},
	}

	p.mu.Lock()
	handlers := append([]func(NetworkResponse){}, p.handlers...)
	p.mu.Unlock()

	for _, fn := range handlers {
		fn(resp)
	}
}

func (p *chromedpPage) Goto(ctx context.Context, url string) error {
	if err := runBound(ctx, p.ctx, chromedp.Navigate(url)); err != nil {
		return domain.NewError(domain.KindNetwork, "navigate", err)
	}
	return nil
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	return runBound(ctx, p.ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var html string
	if err := runBound(ctx, p.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}

// runBound runs actions on target, aborting when caller is done
func runBound(caller, target context.Context, actions ...chromedp.Action) error {
	ctx, cancel := context.WithCancel(target)
	defer cancel()
	stop := context.AfterFunc(caller, cancel)
	defer stop()

	err := chromedp.Run(ctx, actions...)
	if err != nil && caller.Err() != nil {
		return caller.Err()
	}
	return err
}

// runDetached runs the first actions of a chromedp context, which allocate the
// browser or tab. The run itself is tied to target only; the caller may give up
// waiting without tearing the allocation down halfway.
func runDetached(caller, target context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(target, actions...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return domain.NewError(domain.KindUnavailable, "browser launch", err)
		}
		return nil
	case <-caller.Done():
		return caller.Err()
	}
}
