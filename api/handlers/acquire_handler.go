package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"github.com/yourusername/dy-extract-go/internal/infrastructure"
	"go.uber.org/zap"
)

// Acquirer runs one acquisition
type Acquirer interface {
	Acquire(ctx context.Context, shareURL string) (*domain.Result, error)
}

// AcquireHandler runs acquisitions synchronously, at most limit at a time
type AcquireHandler struct {
	engine Acquirer
	sem    chan struct{}
	logger *zap.Logger
}

// NewAcquireHandler creates a new acquire handler
func NewAcquireHandler(engine Acquirer, limit int, logger *zap.Logger) *AcquireHandler {
	if limit < 1 {
		limit = 1
	}
	return &AcquireHandler{
		engine: engine,
		sem:    make(chan struct{}, limit),
		logger: logger,
	}
}

// AcquireRequest represents a request to acquire a share link
type AcquireRequest struct {
	URL string `json:"url" binding:"required"`
}

// Acquire handles POST /api/v1/acquisitions
func (h *AcquireHandler) Acquire(c *gin.Context) {
	var req AcquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := infrastructure.ParseShareURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-ctx.Done():
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled while waiting for a free slot"})
		return
	}

	result, err := h.engine.Acquire(ctx, req.URL)
	c.JSON(statusFor(err), result)

	if err != nil {
		h.logger.Warn("Acquisition failed",
			zap.String("url", req.URL),
			zap.Error(err))
	}
}

// statusFor maps an acquisition error to the response status
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrStrategyExhausted):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// VideoID handles GET /api/v1/video-id?url=
func (h *AcquireHandler) VideoID(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'url' is required"})
		return
	}

	id, found := infrastructure.ExtractVideoID(rawURL)
	c.JSON(http.StatusOK, gin.H{
		"url":      rawURL,
		"video_id": id,
		"found":    found,
	})
}
