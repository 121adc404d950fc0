package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"github.com/yourusername/dy-extract-go/internal/infrastructure"
	"github.com/yourusername/dy-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// LinkResolver fetches a share link and returns the final URL and page body
type LinkResolver interface {
	Resolve(ctx context.Context, rawURL string) (*infrastructure.Resolution, error)
}

// PageRenderer finds a media URL by rendering a page in a browser
type PageRenderer interface {
	RenderMediaURL(ctx context.Context, pageURL string) (string, error)
}

// Acquirer turns one share link into one saved media file
type Acquirer struct {
	config      *domain.DownloadConfig
	resolver    LinkResolver
	extractor   *infrastructure.PatternExtractor
	renderer    PageRenderer
	chain       *DownloadStrategyChain
	notifier    *infrastructure.NotificationService
	multiLogger *logger.MultiLogger
	logger      *zap.Logger
}

// NewAcquirer creates an acquirer. renderer, notifier and multiLogger may be nil.
func NewAcquirer(
	config *domain.DownloadConfig,
	resolver LinkResolver,
	extractor *infrastructure.PatternExtractor,
	renderer PageRenderer,
	chain *DownloadStrategyChain,
	notifier *infrastructure.NotificationService,
	multiLogger *logger.MultiLogger,
	logger *zap.Logger,
) *Acquirer {
	return &Acquirer{
		config:      config,
		resolver:    resolver,
		extractor:   extractor,
		renderer:    renderer,
		chain:       chain,
		notifier:    notifier,
		multiLogger: multiLogger,
		logger:      logger,
	}
}

// Acquire runs validate, resolve, extract, browser fallback and the strategy
// chain for shareURL. The result is never nil, even when err is not.
func (a *Acquirer) Acquire(ctx context.Context, shareURL string) (*domain.Result, error) {
	runID := uuid.New().String()
	ref := domain.NewVideoReference(shareURL)
	log := a.logger.With(zap.String("run_id", runID))

	if _, err := infrastructure.ParseShareURL(shareURL); err != nil {
		ref.MarkFailed(err)
		log.Warn("Rejected share URL", zap.String("url", shareURL), zap.Error(err))
		return domain.NewResult(runID, ref, nil, err), err
	}

	ws, err := domain.NewWorkspace(a.config.OutputDir)
	if err != nil {
		ref.MarkFailed(err)
		a.logError(runID, "Failed to prepare output directory", err)
		return domain.NewResult(runID, ref, nil, err), err
	}

	log.Info("Processing share link", zap.String("url", shareURL))
	started := time.Now()

	a.resolve(ctx, log, ref)
	a.extract(ctx, log, ref)

	_, attempts, err := a.chain.Run(WithRunID(ctx, runID), ref, ws)
	result := domain.NewResult(runID, ref, attempts, err)

	if err != nil {
		a.logError(runID, "Acquisition failed", err)
		a.notifier.NotifyFailed(shareURL, err)
		return result, err
	}

	log.Info("Acquisition completed",
		zap.String("url", shareURL),
		zap.String("file", result.SavedPath),
		zap.Duration("elapsed", time.Since(started)))
	a.notifier.NotifyAcquired(shareURL, result.Title, result.SavedPath)
	return result, nil
}

// resolve sets the video ID and title. A failed fetch is not fatal: the chain
// still gets the share URL.
func (a *Acquirer) resolve(ctx context.Context, log *zap.Logger, ref *domain.VideoReference) {
	ref.Advance(domain.StatusResolving)

	res, err := a.resolver.Resolve(ctx, ref.ShareURL)
	if err != nil {
		log.Warn("Share link resolution failed, continuing with share URL",
			zap.String("url", ref.ShareURL),
			zap.Error(err))
		if id, ok := infrastructure.ExtractVideoID(ref.ShareURL); ok {
			ref.ExtractedID = id
		}
		return
	}

	if id, ok := infrastructure.ExtractVideoID(res.FinalURL); ok {
		ref.ExtractedID = id
	} else if id, ok := infrastructure.ExtractVideoID(ref.ShareURL); ok {
		ref.ExtractedID = id
	}

	ref.Advance(domain.StatusExtracting)
	info := a.extractor.ExtractFromHTML(string(res.Body))
	ref.Title = info.Title
	if info.Success {
		ref.CandidateMediaURL = info.MediaURL
		log.Debug("Media URL extracted from page", zap.String("media_url", info.MediaURL))
	}
}

// extract falls back to rendering the share page when the static page had no media URL
func (a *Acquirer) extract(ctx context.Context, log *zap.Logger, ref *domain.VideoReference) {
	ref.Advance(domain.StatusExtracting)
	if ref.CandidateMediaURL != "" || a.renderer == nil || ctx.Err() != nil {
		return
	}

	mediaURL, err := a.renderer.RenderMediaURL(ctx, ref.ShareURL)
	if err != nil {
		if !errors.Is(err, domain.ErrUnavailable) {
			log.Info("Browser extraction found no media URL, using share URL", zap.Error(err))
		}
		return
	}
	ref.CandidateMediaURL = mediaURL
	log.Debug("Media URL extracted from rendered page", zap.String("media_url", mediaURL))
}

func (a *Acquirer) logError(runID, msg string, err error) {
	a.logger.Error(msg, zap.String("run_id", runID), zap.Error(err))
	if a.multiLogger != nil {
		a.multiLogger.LogAppError(msg, zap.String("run_id", runID), zap.Error(err))
	}
}

// browserRenderer runs RenderAndExtract in its own browser session
type browserRenderer struct {
	launcher *infrastructure.BrowserLauncher
	timeout  time.Duration
}

// NewBrowserRenderer adapts a launcher to PageRenderer
func NewBrowserRenderer(launcher *infrastructure.BrowserLauncher, timeout time.Duration) PageRenderer {
	return &browserRenderer{launcher: launcher, timeout: timeout}
}

func (r *browserRenderer) RenderMediaURL(ctx context.Context, pageURL string) (string, error) {
	if !r.launcher.Enabled() {
		return "", domain.Errorf(domain.KindUnavailable, "render", "browser disabled")
	}

	var mediaURL string
	err := infrastructure.WithBrowserSession(ctx, r.launcher, func(session *infrastructure.BrowserSession) error {
		var err error
		mediaURL, err = session.RenderAndExtract(ctx, pageURL, r.timeout)
		return err
	})
	return mediaURL, err
}

// StrategyNames returns the chain's strategy names in order
func (a *Acquirer) StrategyNames() []string {
	return a.chain.Names()
}
