package infrastructure

import (
	"context"

	"github.com/yourusername/dy-extract-go/internal/domain"
	"go.uber.org/zap"
)

// BrowserFetchStrategy fetches the candidate URL through a browser session's
// authenticated network stack
type BrowserFetchStrategy struct {
	launcher *BrowserLauncher
	config   *domain.BrowserConfig
	logger   *zap.Logger
}

// NewBrowserFetchStrategy creates the browser fetch strategy
func NewBrowserFetchStrategy(launcher *BrowserLauncher, config *domain.BrowserConfig, logger *zap.Logger) *BrowserFetchStrategy {
	return &BrowserFetchStrategy{launcher: launcher, config: config, logger: logger}
}

// Name returns the strategy name
func (s *BrowserFetchStrategy) Name() string {
	return StrategyBrowserFetch
}

// Attempt runs FetchAndCapture on the candidate URL, or the share URL
func (s *BrowserFetchStrategy) Attempt(ctx context.Context, ref *domain.VideoReference, ws *domain.Workspace) domain.AttemptResult {
	var saved *domain.SavedFile
	err := WithBrowserSession(ctx, s.launcher, func(session *BrowserSession) error {
		var err error
		saved, err = session.FetchAndCapture(ctx, ref.DownloadURL(), ws, s.config.NavigationTimeout)
		return err
	})
	if err != nil {
		return domain.Failed(err)
	}
	return domain.Succeeded(saved)
}

// BrowserCaptureStrategy loads the original share page fresh and saves the first
// media response seen on the network
type BrowserCaptureStrategy struct {
	launcher *BrowserLauncher
	config   *domain.BrowserConfig
	logger   *zap.Logger
}

// NewBrowserCaptureStrategy creates the browser capture strategy
func NewBrowserCaptureStrategy(launcher *BrowserLauncher, config *domain.BrowserConfig, logger *zap.Logger) *BrowserCaptureStrategy {
	return &BrowserCaptureStrategy{launcher: launcher, config: config, logger: logger}
}

// Name returns the strategy name
func (s *BrowserCaptureStrategy) Name() string {
	return StrategyBrowserCapture
}

// Attempt always renders the share URL, never the candidate
func (s *BrowserCaptureStrategy) Attempt(ctx context.Context, ref *domain.VideoReference, ws *domain.Workspace) domain.AttemptResult {
	var saved *domain.SavedFile
	err := WithBrowserSession(ctx, s.launcher, func(session *BrowserSession) error {
		mediaURL, err := session.RenderAndExtract(ctx, ref.ShareURL, s.config.CaptureNavigationTimeout)
		if err != nil {
			return err
		}
		s.logger.Debug("Captured media URL",
			zap.String("share_url", ref.ShareURL),
			zap.String("media_url", mediaURL))

		saved, err = session.Download(ctx, mediaURL, ws, "captured")
		return err
	})
	if err != nil {
		return domain.Failed(err)
	}
	return domain.Succeeded(saved)
}
