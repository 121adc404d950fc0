package app

import (
	"github.com/yourusername/dy-extract-go/internal/domain"
	"github.com/yourusername/dy-extract-go/internal/infrastructure"
	"github.com/yourusername/dy-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// NewStrategies builds the four strategies in chain order
func NewStrategies(config *domain.Config, launcher *infrastructure.BrowserLauncher, log *zap.Logger) []domain.Strategy {
	validator := infrastructure.NewContentValidator(config.Download.MinMediaBytes)
	writer := infrastructure.NewMediaWriter(validator, config.Download.FirstChunkBytes, config.Download.MaxBodyBytes)

	retry := newRetryPolicy(config, log, "direct_stream")

	return []domain.Strategy{
		infrastructure.NewExternalToolStrategy(&config.ExternalTool, &config.HTTP, validator,
			infrastructure.NewToolLog(config.Download.LogsDir), log.Named("external_tool")),
		infrastructure.NewDirectStreamStrategy(&config.HTTP, retry, writer, log.Named("direct_stream")),
		infrastructure.NewBrowserFetchStrategy(launcher, &config.Browser, log.Named("browser_fetch")),
		infrastructure.NewBrowserCaptureStrategy(launcher, &config.Browser, log.Named("browser_capture")),
	}
}

// NewBrowserLauncher builds the chromedp-backed launcher shared by the browser steps
func NewBrowserLauncher(config *domain.Config, log *zap.Logger) *infrastructure.BrowserLauncher {
	validator := infrastructure.NewContentValidator(config.Download.MinMediaBytes)
	writer := infrastructure.NewMediaWriter(validator, config.Download.FirstChunkBytes, config.Download.MaxBodyBytes)

	return infrastructure.NewBrowserLauncher(
		infrastructure.NewChromedpEngine(&config.HTTP, log.Named("chromedp")),
		&config.Browser,
		config.HTTP.UserAgent,
		infrastructure.NewPatternExtractor(),
		writer,
		log.Named("browser"),
	)
}

// NewEngine wires an Acquirer from configuration. multiLogger may be nil.
func NewEngine(config *domain.Config, multiLogger *logger.MultiLogger, log *zap.Logger) *Acquirer {
	launcher := NewBrowserLauncher(config, log)

	chain := NewDownloadStrategyChain(
		NewStrategies(config, launcher, log),
		&config.Download,
		multiLogger,
		log.Named("chain"),
	)

	resolver := infrastructure.NewShareLinkResolver(&config.HTTP, newRetryPolicy(config, log, "resolve"), log.Named("resolver"))

	var renderer PageRenderer
	if launcher.Enabled() {
		renderer = NewBrowserRenderer(launcher, config.Browser.NavigationTimeout)
	}

	return NewAcquirer(
		&config.Download,
		resolver,
		infrastructure.NewPatternExtractor(),
		renderer,
		chain,
		infrastructure.NewNotificationService(&config.Notification, log.Named("notification")),
		multiLogger,
		log,
	)
}

// newRetryPolicy turns download.max_retries into total attempts
func newRetryPolicy(config *domain.Config, log *zap.Logger, op string) *infrastructure.RetryPolicy {
	policy := infrastructure.NewRetryPolicy(config.Download.MaxRetries+1, config.Download.RetryDelay)
	policy.OnRetry = func(attempt int, err error) {
		log.Info("Retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", config.Download.MaxRetries),
			zap.Error(err))
	}
	return policy
}
