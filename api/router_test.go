package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"go.uber.org/zap"
)

type stubEngine struct {
	calls  int32
	result func(shareURL string) (*domain.Result, error)
}

func (s *stubEngine) Acquire(ctx context.Context, shareURL string) (*domain.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.result(shareURL)
}

func savedResult(shareURL string) (*domain.Result, error) {
	ref := domain.NewVideoReference(shareURL)
	ref.Advance(domain.StatusDownloading)
	ref.MarkSaved(domain.SavedFile{Path: "/out/video_1.mp4", ByteSize: 2048})
	attempts := []domain.DownloadAttempt{{Strategy: "direct_stream", Outcome: domain.OutcomeSuccess, SavedPath: "/out/video_1.mp4"}}
	return domain.NewResult("run-1", ref, attempts, nil), nil
}

func exhaustedResult(shareURL string) (*domain.Result, error) {
	ref := domain.NewVideoReference(shareURL)
	attempts := []domain.DownloadAttempt{
		{Strategy: "external_tool", Outcome: domain.OutcomeSkipped},
		{Strategy: "direct_stream", Outcome: domain.OutcomeValidationError},
		{Strategy: "browser_fetch", Outcome: domain.OutcomeNetworkError},
		{Strategy: "browser_capture", Outcome: domain.OutcomeNetworkError},
	}
	err := &domain.StrategyExhaustedError{Attempts: attempts, Cause: domain.Errorf(domain.KindNetwork, "browser capture", "timeout")}
	ref.MarkFailed(err)
	return domain.NewResult("run-2", ref, attempts, err), err
}

func newTestRouter(t *testing.T, engine *stubEngine) (*gin.Engine, *domain.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := domain.DefaultConfig()
	cfg.Download.OutputDir = t.TempDir()
	cfg.Download.LogsDir = t.TempDir()

	router := SetupRouter(engine, RouterOptions{
		Config:     cfg,
		Strategies: []string{"external_tool", "direct_stream", "browser_fetch", "browser_capture"},
		Logger:     zap.NewNop(),
	})
	return router, cfg
}

func postAcquisition(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/acquisitions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAcquire_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     func(string) (*domain.Result, error)
		wantStatus int
		wantCalls  int32
	}{
		{"saved", `{"url":"https://v.douyin.com/abc/"}`, savedResult, http.StatusOK, 1},
		{"exhausted", `{"url":"https://v.douyin.com/abc/"}`, exhaustedResult, http.StatusUnprocessableEntity, 1},
		{"missing url", `{}`, savedResult, http.StatusBadRequest, 0},
		{"invalid url", `{"url":"not a link"}`, savedResult, http.StatusBadRequest, 0},
		{"malformed json", `{"url":`, savedResult, http.StatusBadRequest, 0},
		{"cancelled", `{"url":"https://v.douyin.com/abc/"}`, func(u string) (*domain.Result, error) {
			ref := domain.NewVideoReference(u)
			err := &domain.StrategyExhaustedError{Cause: context.Canceled}
			return domain.NewResult("run-3", ref, nil, err), err
		}, http.StatusServiceUnavailable, 1},
		{"unexpected", `{"url":"https://v.douyin.com/abc/"}`, func(u string) (*domain.Result, error) {
			err := fmt.Errorf("output directory vanished")
			return domain.NewResult("run-4", domain.NewVideoReference(u), nil, err), err
		}, http.StatusInternalServerError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubEngine{result: tt.result}
			router, _ := newTestRouter(t, engine)

			w := postAcquisition(router, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&engine.calls))
		})
	}
}

func TestAcquire_ResponseBody(t *testing.T) {
	router, _ := newTestRouter(t, &stubEngine{result: exhaustedResult})

	w := postAcquisition(router, `{"url":"https://v.douyin.com/abc/"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-2", body["run_id"])
	assert.Nil(t, body["saved_path"])
	assert.Len(t, body["attempts"], 4)
	assert.Equal(t, "failed", body["status"])

	router, _ = newTestRouter(t, &stubEngine{result: savedResult})
	w = postAcquisition(router, `{"url":"https://v.douyin.com/abc/"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "/out/video_1.mp4", body["saved_path"])
}

func TestVideoID(t *testing.T) {
	router, _ := newTestRouter(t, &stubEngine{result: savedResult})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/video-id?url=https%3A%2F%2Fwww.douyin.com%2Fvideo%2F7301234567890123456", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "7301234567890123456", body["video_id"])
	assert.Equal(t, true, body["found"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/video-id", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	router, _ := newTestRouter(t, &stubEngine{result: savedResult})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["strategies"], 4)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogsEndpoints(t *testing.T) {
	router, cfg := newTestRouter(t, &stubEngine{result: savedResult})

	day := time.Now()
	content := `{"level":"info","ts":"t1","msg":"strategy_attempt","run_id":"r1","outcome":"network_error"}
{"level":"info","ts":"t2","msg":"strategy_attempt","run_id":"r1","outcome":"success"}
`
	path := filepath.Join(cfg.Download.LogsDir, "attempt-"+day.Format("20060102")+".log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	get := func(url string) (*httptest.ResponseRecorder, map[string]interface{}) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
		var body map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &body)
		return w, body
	}

	w, body := get("/api/v1/logs/categories")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"attempt", "error"}, body["categories"])

	w, body = get("/api/v1/logs/attempt")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])

	w, body = get("/api/v1/logs/attempt/search?q=success")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, _ = get("/api/v1/logs/attempt/search")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = get("/api/v1/logs/queue")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = get("/api/v1/logs/attempt?date=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = get("/api/v1/logs/attempt/export")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attempt-")
}

func TestRecoveryMiddleware(t *testing.T) {
	engine := &stubEngine{result: func(string) (*domain.Result, error) { panic("boom") }}
	router, _ := newTestRouter(t, engine)

	w := postAcquisition(router, `{"url":"https://v.douyin.com/abc/"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, body["request_id"], w.Header().Get("X-Request-ID"))
}

func TestRequestIDPropagated(t *testing.T) {
	router, _ := newTestRouter(t, &stubEngine{result: savedResult})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t, &stubEngine{result: savedResult})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/downloads", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
