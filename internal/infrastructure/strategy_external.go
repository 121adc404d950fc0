package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yourusername/dy-extract-go/internal/domain"
	"go.uber.org/zap"
)

// Strategy names, in chain order
const (
	StrategyExternalTool   = "external_tool"
	StrategyDirectStream   = "direct_stream"
	StrategyBrowserFetch   = "browser_fetch"
	StrategyBrowserCapture = "browser_capture"
)

// leftover extensions the tool writes while a download is in progress
var partialExtensions = []string{".part", ".ytdl", ".temp"}

// ExternalToolStrategy downloads through an external downloader binary (yt-dlp)
type ExternalToolStrategy struct {
	config     *domain.ExternalToolConfig
	httpConfig *domain.HTTPConfig
	validator  *ContentValidator
	toolLog    *ToolLog
	logger     *zap.Logger
}

// NewExternalToolStrategy creates the external tool strategy
func NewExternalToolStrategy(config *domain.ExternalToolConfig, httpConfig *domain.HTTPConfig, validator *ContentValidator, toolLog *ToolLog, logger *zap.Logger) *ExternalToolStrategy {
	return &ExternalToolStrategy{
		config:     config,
		httpConfig: httpConfig,
		validator:  validator,
		toolLog:    toolLog,
		logger:     logger,
	}
}

// Name returns the strategy name
func (s *ExternalToolStrategy) Name() string {
	return StrategyExternalTool
}

// Attempt runs the tool against the best URL for ref and validates what it saved
func (s *ExternalToolStrategy) Attempt(ctx context.Context, ref *domain.VideoReference, ws *domain.Workspace) domain.AttemptResult {
	binary, err := exec.LookPath(s.config.Binary)
	if err != nil {
		return domain.Failed(domain.NewError(domain.KindUnavailable, "external tool", err))
	}

	stem, err := ws.Reserve("ytdlp")
	if err != nil {
		return domain.Failed(err)
	}

	target := s.TargetURL(ref)
	args := s.buildArgs(stem, target)

	runID := ref.ExtractedID
	if runID == "" {
		runID = filepath.Base(stem)
	}
	run, err := s.toolLog.Begin(runID, binary, args)
	if err != nil {
		return domain.Failed(err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = io.MultiWriter(&stdout, run.Writer())
	cmd.Stderr = io.MultiWriter(&stderr, run.Writer())

	s.logger.Debug("Running external tool",
		zap.String("binary", binary),
		zap.String("url", target))

	if err := cmd.Run(); err != nil {
		ws.Discard(stem)
		if ctx.Err() != nil {
			run.End(false, ctx.Err().Error())
			return domain.Failed(ctx.Err())
		}
		detail := lastLine(stderr.String())
		run.End(false, fmt.Sprintf("%s failed: %v", s.config.Binary, err))
		return domain.Failed(domain.Errorf(domain.KindNetwork, "external tool", "%s: %v: %s", s.config.Binary, err, detail))
	}

	path, err := s.savedPath(stdout.String(), stem)
	if err != nil {
		ws.Discard(stem)
		run.End(false, err.Error())
		return domain.Failed(err)
	}

	if err := s.validate(path); err != nil {
		ws.Discard(stem)
		run.End(false, err.Error())
		return domain.Failed(err)
	}

	saved, err := ws.Finalize(path)
	if err != nil {
		ws.Discard(stem)
		run.End(false, err.Error())
		return domain.Failed(err)
	}

	run.End(true, fmt.Sprintf("Downloaded: %s", saved.Path))
	return domain.Succeeded(saved)
}

// TargetURL picks what the tool is pointed at: the canonical video page for share
// URLs it cannot parse, else the candidate media URL, else the share URL
func (s *ExternalToolStrategy) TargetURL(ref *domain.VideoReference) string {
	id := ref.ExtractedID
	if id == "" {
		id, _ = ExtractVideoID(ref.ShareURL)
	}
	if canonical, ok := CanonicalVideoURL(ref.ShareURL, id, s.config.CanonicalURL, s.config.RewriteMarkers); ok {
		return canonical
	}
	return ref.DownloadURL()
}

func (s *ExternalToolStrategy) buildArgs(stem, target string) []string {
	args := []string{
		"-f", s.config.Format,
		"--merge-output-format", s.config.MergeFormat,
		"--http-chunk-size", s.config.ChunkSize,
		"--socket-timeout", strconv.Itoa(int(s.config.SocketTimeout.Seconds())),
		"--retries", strconv.Itoa(s.config.Retries),
		"--no-playlist",
		"-o", stem + ".%(ext)s",
		"--print", "after_move:filepath",
		"--add-header", "User-Agent:" + firstNonEmpty(s.httpConfig.UserAgent, domain.DefaultUserAgent),
	}
	if s.httpConfig.Referer != "" {
		args = append(args, "--add-header", "Referer:"+s.httpConfig.Referer)
	}
	if s.config.CookieFile != "" && fileExists(s.config.CookieFile) {
		args = append(args, "--cookies", s.config.CookieFile)
	}
	return append(args, target)
}

// savedPath takes the path the tool printed, falling back to whatever finished
// file carries the reserved stem
func (s *ExternalToolStrategy) savedPath(stdout, stem string) (string, error) {
	if printed := lastLine(stdout); printed != "" && fileExists(printed) {
		return printed, nil
	}

	matches, err := filepath.Glob(stem + ".*")
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if !isPartialFile(m) {
			return m, nil
		}
	}
	return "", domain.Errorf(domain.KindNetwork, "external tool", "%s exited cleanly but produced no file", s.config.Binary)
}

func (s *ExternalToolStrategy) validate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open downloaded file: %w", err)
	}
	defer f.Close()

	head := make([]byte, defaultFirstChunkBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read downloaded file: %w", err)
	}

	if class := s.validator.ClassifyResponse(head[:n], "", path); class != ClassMedia {
		return domain.Errorf(domain.KindValidation, "external tool", "downloaded file is %s", class)
	}
	return nil
}

func isPartialFile(path string) bool {
	for _, ext := range partialExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	var last string
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	return last
}
