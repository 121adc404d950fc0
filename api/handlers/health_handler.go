package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	strategies     []string
	outputDir      string
	browserEnabled bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(strategies []string, outputDir string, browserEnabled bool) *HealthHandler {
	return &HealthHandler{
		strategies:     strategies,
		outputDir:      outputDir,
		browserEnabled: browserEnabled,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status         string   `json:"status"`
	Version        string   `json:"version"`
	Strategies     []string `json:"strategies"`
	BrowserEnabled bool     `json:"browser_enabled"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:         "ok",
		Version:        Version,
		Strategies:     h.strategies,
		BrowserEnabled: h.browserEnabled,
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := probeWritable(h.outputDir); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "output directory not writable",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// probeWritable creates dir if needed and proves a file can be written there
func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return err
	}
	name := f.Name()
	closeErr := f.Close()
	if err := os.Remove(name); err != nil {
		return err
	}
	return closeErr
}
