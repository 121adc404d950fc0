package infrastructure

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"go.uber.org/zap"
)

func TestBrowserFetchStrategy_Attempt(t *testing.T) {
	t.Run("candidate fetched as media", func(t *testing.T) {
		browser := newFakeBrowser()
		browser.fetches["https://cdn.example.com/v.mp4"] = fakeFetch{status: 200, contentType: "video/mp4", body: mp4Body(1024)}
		cfg := testBrowserConfig()
		strategy := NewBrowserFetchStrategy(newTestLauncher(&fakeEngine{browser: browser}, cfg), cfg, zap.NewNop())
		ws, _ := newTestWorkspace(t)
		ref := domain.NewVideoReference("https://v.douyin.com/abc/")
		ref.CandidateMediaURL = "https://cdn.example.com/v.mp4"

		result := strategy.Attempt(context.Background(), ref, ws)

		require.Equal(t, domain.OutcomeSuccess, result.Outcome, "err: %v", result.Err)
		assert.Regexp(t, `^video_\d+_browser\.mp4$`, filepath.Base(result.File.Path))
		assert.Equal(t, []string{"https://cdn.example.com/v.mp4"}, browser.gets)
		assert.Equal(t, 1, browser.closed)
	})

	t.Run("browser disabled", func(t *testing.T) {
		engine := &fakeEngine{browser: newFakeBrowser()}
		cfg := testBrowserConfig()
		cfg.Enabled = false
		strategy := NewBrowserFetchStrategy(newTestLauncher(engine, cfg), cfg, zap.NewNop())
		ws, dir := newTestWorkspace(t)

		result := strategy.Attempt(context.Background(), domain.NewVideoReference("https://v.douyin.com/abc/"), ws)

		assert.Equal(t, domain.OutcomeSkipped, result.Outcome)
		assert.Equal(t, 0, engine.launches)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("hanging warm-up", func(t *testing.T) {
		browser := newFakeBrowser()
		browser.sites["https://www.douyin.com/"] = fakeSite{hang: true}
		browser.fetches["https://cdn.example.com/v.mp4"] = fakeFetch{status: 200, contentType: "video/mp4", body: mp4Body(1024)}
		cfg := testBrowserConfig()
		cfg.WarmupURL = "https://www.douyin.com/"
		cfg.WarmupTimeout = 20 * time.Millisecond
		strategy := NewBrowserFetchStrategy(newTestLauncher(&fakeEngine{browser: browser}, cfg), cfg, zap.NewNop())
		ws, _ := newTestWorkspace(t)
		ref := domain.NewVideoReference("https://v.douyin.com/abc/")
		ref.CandidateMediaURL = "https://cdn.example.com/v.mp4"

		result := strategy.Attempt(context.Background(), ref, ws)

		require.Equal(t, domain.OutcomeSuccess, result.Outcome, "err: %v", result.Err)
		assert.Contains(t, filepath.Base(result.File.Path), "_browser")
	})

	t.Run("only markup available", func(t *testing.T) {
		shareURL := "https://www.douyin.com/video/7"
		browser := newFakeBrowser()
		browser.fetches[shareURL] = fakeFetch{status: 200, contentType: "text/html", body: []byte("<html>verify</html>")}
		browser.sites[shareURL] = fakeSite{html: "<html>verify</html>"}
		cfg := testBrowserConfig()
		strategy := NewBrowserFetchStrategy(newTestLauncher(&fakeEngine{browser: browser}, cfg), cfg, zap.NewNop())
		ws, dir := newTestWorkspace(t)

		result := strategy.Attempt(context.Background(), domain.NewVideoReference(shareURL), ws)

		assert.Equal(t, domain.OutcomeValidationError, result.Outcome)
		assert.Nil(t, result.File)
		assert.Empty(t, dirEntries(t, dir))
		assert.Equal(t, 1, browser.closed)
	})
}

func TestBrowserCaptureStrategy_Attempt(t *testing.T) {
	t.Run("renders the share page, not the candidate", func(t *testing.T) {
		shareURL := "https://www.douyin.com/video/9"
		browser := newFakeBrowser()
		browser.sites[shareURL] = fakeSite{
			responses: []NetworkResponse{{URL: "https://v3.douyinvod.com/play", ContentType: "video/mp4", Status: 200}},
		}
		browser.fetches["https://v3.douyinvod.com/play"] = fakeFetch{status: 200, contentType: "video/mp4", body: mp4Body(700)}
		cfg := testBrowserConfig()
		strategy := NewBrowserCaptureStrategy(newTestLauncher(&fakeEngine{browser: browser}, cfg), cfg, zap.NewNop())
		ws, _ := newTestWorkspace(t)
		ref := domain.NewVideoReference(shareURL)
		ref.CandidateMediaURL = "https://cdn.example.com/stale.mp4"

		result := strategy.Attempt(context.Background(), ref, ws)

		require.Equal(t, domain.OutcomeSuccess, result.Outcome, "err: %v", result.Err)
		assert.Regexp(t, `^video_\d+_captured\.mp4$`, filepath.Base(result.File.Path))
		assert.Equal(t, int64(700), result.File.ByteSize)
		assert.Equal(t, []string{shareURL}, browser.visits)
		assert.Equal(t, []string{"https://v3.douyinvod.com/play"}, browser.gets)
	})

	t.Run("nothing on the page", func(t *testing.T) {
		shareURL := "https://www.douyin.com/video/9"
		browser := newFakeBrowser()
		browser.sites[shareURL] = fakeSite{html: "<html>login</html>"}
		cfg := testBrowserConfig()
		strategy := NewBrowserCaptureStrategy(newTestLauncher(&fakeEngine{browser: browser}, cfg), cfg, zap.NewNop())
		ws, dir := newTestWorkspace(t)

		result := strategy.Attempt(context.Background(), domain.NewVideoReference(shareURL), ws)

		assert.Equal(t, domain.OutcomeNetworkError, result.Outcome)
		assert.ErrorIs(t, result.Err, domain.ErrExtraction)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("captured URL serves markup", func(t *testing.T) {
		shareURL := "https://www.douyin.com/video/9"
		browser := newFakeBrowser()
		browser.sites[shareURL] = fakeSite{html: `<video src="https://cdn.example.com/dom.mp4"></video>`}
		browser.fetches["https://cdn.example.com/dom.mp4"] = fakeFetch{status: 200, contentType: "text/html", body: []byte("<!DOCTYPE html><html></html>")}
		cfg := testBrowserConfig()
		strategy := NewBrowserCaptureStrategy(newTestLauncher(&fakeEngine{browser: browser}, cfg), cfg, zap.NewNop())
		ws, dir := newTestWorkspace(t)

		result := strategy.Attempt(context.Background(), domain.NewVideoReference(shareURL), ws)

		assert.Equal(t, domain.OutcomeValidationError, result.Outcome)
		assert.Empty(t, dirEntries(t, dir))
	})
}
