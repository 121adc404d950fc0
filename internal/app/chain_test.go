package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"github.com/yourusername/dy-extract-go/pkg/logger"
	"go.uber.org/zap"
)

type fakeStrategy struct {
	name    string
	calls   int32
	attempt func(ctx context.Context, ref *domain.VideoReference, ws *domain.Workspace) domain.AttemptResult
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Attempt(ctx context.Context, ref *domain.VideoReference, ws *domain.Workspace) domain.AttemptResult {
	atomic.AddInt32(&f.calls, 1)
	return f.attempt(ctx, ref, ws)
}

func (f *fakeStrategy) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func failing(name string, err error) *fakeStrategy {
	return &fakeStrategy{name: name, attempt: func(context.Context, *domain.VideoReference, *domain.Workspace) domain.AttemptResult {
		return domain.Failed(err)
	}}
}

func saving(name, suffix string) *fakeStrategy {
	return &fakeStrategy{name: name, attempt: func(_ context.Context, _ *domain.VideoReference, ws *domain.Workspace) domain.AttemptResult {
		file, err := ws.WriteFile(suffix, "mp4", []byte("\x00\x00\x00\x18ftypmp42 fake media payload"))
		if err != nil {
			return domain.Failed(err)
		}
		return domain.Succeeded(file)
	}}
}

// leaving writes a candidate file and then fails, like a strategy whose output was rejected
func leaving(name string) *fakeStrategy {
	return &fakeStrategy{name: name, attempt: func(_ context.Context, _ *domain.VideoReference, ws *domain.Workspace) domain.AttemptResult {
		if _, err := ws.WriteFile(name, "mp4", []byte("<html>blocked</html>")); err != nil {
			return domain.Failed(err)
		}
		return domain.Failed(domain.Errorf(domain.KindValidation, name, "downloaded file is MARKUP"))
	}}
}

func newChainFixture(t *testing.T, strategies []domain.Strategy, cfg *domain.DownloadConfig) (*DownloadStrategyChain, *domain.Workspace, *domain.VideoReference) {
	t.Helper()
	if cfg == nil {
		cfg = &domain.DownloadConfig{StrategyTimeout: 5 * time.Second}
	}
	ws, err := domain.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	ref := domain.NewVideoReference("https://v.douyin.com/abc123/")
	return NewDownloadStrategyChain(strategies, cfg, nil, zap.NewNop()), ws, ref
}

func TestChain_SecondStrategySucceeds(t *testing.T) {
	first := leaving("external_tool")
	second := saving("direct_stream", "")
	third := saving("browser_fetch", "browser")
	fourth := saving("browser_capture", "captured")

	chain, ws, ref := newChainFixture(t, []domain.Strategy{first, second, third, fourth}, nil)

	saved, attempts, err := chain.Run(context.Background(), ref, ws)
	require.NoError(t, err)
	require.NotNil(t, saved)

	require.Len(t, attempts, 2)
	assert.Equal(t, "external_tool", attempts[0].Strategy)
	assert.Equal(t, domain.OutcomeValidationError, attempts[0].Outcome)
	assert.Equal(t, "direct_stream", attempts[1].Strategy)
	assert.Equal(t, domain.OutcomeSuccess, attempts[1].Outcome)
	assert.Equal(t, saved.Path, attempts[1].SavedPath)

	assert.Equal(t, 1, first.Calls())
	assert.Equal(t, 1, second.Calls())
	assert.Zero(t, third.Calls())
	assert.Zero(t, fourth.Calls())

	assert.Equal(t, domain.StatusSaved, ref.Status)
	require.NotNil(t, ref.SavedFile)
	assert.Equal(t, saved.Path, ref.SavedFile.Path)

	entries, err := os.ReadDir(ws.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the winning file survives")
	assert.Equal(t, saved.Path, filepath.Join(ws.Dir(), entries[0].Name()))
}

func TestChain_AllStrategiesFail(t *testing.T) {
	strategies := []domain.Strategy{
		failing("external_tool", domain.Errorf(domain.KindUnavailable, "external tool", "yt-dlp not found")),
		leaving("direct_stream"),
		failing("browser_fetch", domain.Errorf(domain.KindNetwork, "browser fetch", "status 403")),
		failing("browser_capture", domain.Errorf(domain.KindExtraction, "render", "no media URL")),
	}
	chain, ws, ref := newChainFixture(t, strategies, nil)

	saved, attempts, err := chain.Run(context.Background(), ref, ws)
	assert.Nil(t, saved)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStrategyExhausted))

	var exhausted *domain.StrategyExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Len(t, exhausted.Attempts, 4)
	assert.True(t, errors.Is(err, domain.ErrExtraction), "cause is the last strategy's error")

	require.Len(t, attempts, 4)
	expected := []struct {
		strategy string
		outcome  domain.Outcome
	}{
		{"external_tool", domain.OutcomeSkipped},
		{"direct_stream", domain.OutcomeValidationError},
		{"browser_fetch", domain.OutcomeNetworkError},
		{"browser_capture", domain.OutcomeNetworkError},
	}
	for i, want := range expected {
		assert.Equal(t, want.strategy, attempts[i].Strategy)
		assert.Equal(t, want.outcome, attempts[i].Outcome)
		assert.NotEmpty(t, attempts[i].ErrorDetail)
		assert.Empty(t, attempts[i].SavedPath)
	}

	assert.Equal(t, domain.StatusFailed, ref.Status)
	entries, err := os.ReadDir(ws.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	result := domain.NewResult("run", ref, attempts, err)
	assert.False(t, result.Saved())
	assert.Empty(t, result.SavedPath)
}

func TestChain_DisabledStrategiesAreSkipped(t *testing.T) {
	first := saving("external_tool", "ytdlp")
	second := saving("direct_stream", "")
	cfg := &domain.DownloadConfig{StrategyTimeout: time.Second, DisabledStrategies: []string{"external_tool"}}

	chain, ws, ref := newChainFixture(t, []domain.Strategy{first, second}, cfg)

	saved, attempts, err := chain.Run(context.Background(), ref, ws)
	require.NoError(t, err)
	require.NotNil(t, saved)

	assert.Zero(t, first.Calls())
	require.Len(t, attempts, 2)
	assert.Equal(t, domain.OutcomeSkipped, attempts[0].Outcome)
	assert.Contains(t, attempts[0].ErrorDetail, "disabled")
	assert.Equal(t, domain.OutcomeSuccess, attempts[1].Outcome)
}

func TestChain_CancellationSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &fakeStrategy{name: "external_tool", attempt: func(ctx context.Context, _ *domain.VideoReference, _ *domain.Workspace) domain.AttemptResult {
		cancel()
		<-ctx.Done()
		return domain.Failed(ctx.Err())
	}}
	rest := []*fakeStrategy{saving("direct_stream", ""), saving("browser_fetch", "browser"), saving("browser_capture", "captured")}

	chain, ws, ref := newChainFixture(t, []domain.Strategy{first, rest[0], rest[1], rest[2]}, nil)

	saved, attempts, err := chain.Run(ctx, ref, ws)
	assert.Nil(t, saved)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, domain.ErrStrategyExhausted))

	require.Len(t, attempts, 4)
	assert.Equal(t, domain.OutcomeNetworkError, attempts[0].Outcome)
	for _, a := range attempts[1:] {
		assert.Equal(t, domain.OutcomeSkipped, a.Outcome)
	}
	for _, s := range rest {
		assert.Zero(t, s.Calls())
	}
}

func TestChain_StrategyTimeout(t *testing.T) {
	slow := &fakeStrategy{name: "external_tool", attempt: func(ctx context.Context, _ *domain.VideoReference, _ *domain.Workspace) domain.AttemptResult {
		<-ctx.Done()
		return domain.Failed(ctx.Err())
	}}
	fast := saving("direct_stream", "")
	cfg := &domain.DownloadConfig{StrategyTimeout: 20 * time.Millisecond}

	chain, ws, ref := newChainFixture(t, []domain.Strategy{slow, fast}, cfg)

	saved, attempts, err := chain.Run(context.Background(), ref, ws)
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Len(t, attempts, 2)
	assert.Equal(t, domain.OutcomeNetworkError, attempts[0].Outcome)
	assert.Contains(t, attempts[0].ErrorDetail, "deadline")
}

func TestChain_PanickingStrategyIsRecorded(t *testing.T) {
	boom := &fakeStrategy{name: "external_tool", attempt: func(context.Context, *domain.VideoReference, *domain.Workspace) domain.AttemptResult {
		panic("unexpected nil")
	}}
	chain, ws, ref := newChainFixture(t, []domain.Strategy{boom, saving("direct_stream", "")}, nil)

	saved, attempts, err := chain.Run(context.Background(), ref, ws)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, domain.OutcomeNetworkError, attempts[0].Outcome)
	assert.Contains(t, attempts[0].ErrorDetail, "panicked")
}

func TestChain_SuccessWithoutFileIsRejected(t *testing.T) {
	liar := &fakeStrategy{name: "external_tool", attempt: func(context.Context, *domain.VideoReference, *domain.Workspace) domain.AttemptResult {
		return domain.AttemptResult{Outcome: domain.OutcomeSuccess}
	}}
	chain, ws, ref := newChainFixture(t, []domain.Strategy{liar}, nil)

	_, attempts, err := chain.Run(context.Background(), ref, ws)
	require.Error(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.OutcomeValidationError, attempts[0].Outcome)
}

func TestChain_RejectsTerminalReference(t *testing.T) {
	chain, ws, ref := newChainFixture(t, []domain.Strategy{saving("direct_stream", "")}, nil)
	ref.MarkFailed(errors.New("earlier failure"))

	_, attempts, err := chain.Run(context.Background(), ref, ws)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	assert.Empty(t, attempts)
}

func TestChain_AttemptsGoToAttemptLog(t *testing.T) {
	logsDir := t.TempDir()
	ml, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "info", LogsDir: logsDir})
	require.NoError(t, err)

	ws, err := domain.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	ref := domain.NewVideoReference("https://v.douyin.com/abc123/")
	chain := NewDownloadStrategyChain(
		[]domain.Strategy{leaving("external_tool"), saving("direct_stream", "")},
		&domain.DownloadConfig{StrategyTimeout: time.Second},
		ml, zap.NewNop())

	_, _, err = chain.Run(WithRunID(context.Background(), "run-42"), ref, ws)
	require.NoError(t, err)
	require.NoError(t, ml.Close())

	entries, err := logger.NewLogReader(logsDir).ReadTodayLogs(logger.CategoryAttempt, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "strategy_attempt", e.Message)
		assert.Equal(t, "run-42", e.Fields["run_id"])
	}
	assert.Equal(t, "validation_error", entries[0].Fields["outcome"])
	assert.Equal(t, "success", entries[1].Fields["outcome"])
}

func TestChain_Names(t *testing.T) {
	chain, _, _ := newChainFixture(t, []domain.Strategy{saving("a", ""), saving("b", "")}, nil)
	assert.Equal(t, []string{"a", "b"}, chain.Names())
}
