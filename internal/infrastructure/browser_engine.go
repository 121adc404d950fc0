package infrastructure

import (
	"context"
	"io"
	"net/http"
)

// LaunchOptions configures a browser launch. An empty ProfileDir gives an
// ephemeral session.
type LaunchOptions struct {
	ProfileDir string
	UserAgent  string
	ExecPath   string
	Headless   bool
}

// BrowserEngine launches browser contexts
type BrowserEngine interface {
	Launch(ctx context.Context, opts LaunchOptions) (BrowserContext, error)
}

// BrowserContext is one running browser with its cookie jar
type BrowserContext interface {
	NewPage(ctx context.Context) (BrowserPage, error)
	// Get fetches url through the context's authenticated network stack
	Get(ctx context.Context, url string) (*FetchedResponse, error)
	Close() error
}

// BrowserPage is a single tab
type BrowserPage interface {
	// OnResponse registers fn for every response the page receives. fn runs on the
	// engine's event loop and must not block.
	OnResponse(fn func(NetworkResponse))
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Content(ctx context.Context) (string, error)
	Close() error
}

// NetworkResponse describes a response observed by a page listener
type NetworkResponse struct {
	URL         string
	ContentType string
	Status      int
	// Body loads the response body on demand. It may be nil.
	Body func(ctx context.Context) ([]byte, error)
}

// FetchedResponse is the result of BrowserContext.Get. The caller closes Body.
type FetchedResponse struct {
	Status   int
	Header   http.Header
	Body     io.ReadCloser
	FinalURL string
}
