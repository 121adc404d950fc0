package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yourusername/dy-extract-go/internal/domain"
)

const defaultFirstChunkBytes = 4096

// MediaWriter classifies the head of a response stream and, when it is media,
// streams the whole body into the workspace
type MediaWriter struct {
	validator       *ContentValidator
	firstChunkBytes int
	maxBodyBytes    int64
}

// NewMediaWriter creates a writer. Non-positive sizes select defaults; a
// non-positive maxBodyBytes means no limit; a larger body is rejected.
func NewMediaWriter(validator *ContentValidator, firstChunkBytes int, maxBodyBytes int64) *MediaWriter {
	if firstChunkBytes <= 0 {
		firstChunkBytes = defaultFirstChunkBytes
	}
	return &MediaWriter{validator: validator, firstChunkBytes: firstChunkBytes, maxBodyBytes: maxBodyBytes}
}

// Save reads the first chunk of body and classifies it. MARKUP and UNKNOWN are
// validation errors and no file is created. Otherwise the stream is written to
// video_<ts>[_suffix].<ext>; any failure removes the partial file.
func (m *MediaWriter) Save(ctx context.Context, body io.Reader, contentType, sourceURL string, ws *domain.Workspace, suffix string) (*domain.SavedFile, error) {
	head := make([]byte, m.firstChunkBytes)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, domain.NewError(domain.KindNetwork, "read first chunk", err)
	}
	head = head[:n]

	if class := m.validator.ClassifyResponse(head, contentType, sourceURL); class != ClassMedia {
		return nil, domain.Errorf(domain.KindValidation, "classify", "response is %s (content type %q, %d bytes)", class, contentType, n)
	}

	f, err := ws.Create(suffix, DetectExtension(head, contentType, sourceURL))
	if err != nil {
		return nil, err
	}
	path := f.Name()

	var src io.Reader = io.MultiReader(bytes.NewReader(head), body)
	if m.maxBodyBytes > 0 {
		src = io.LimitReader(src, m.maxBodyBytes+1)
	}
	written, copyErr := io.Copy(f, &contextReader{ctx: ctx, r: src})
	closeErr := f.Close()
	if copyErr == nil && m.maxBodyBytes > 0 && written > m.maxBodyBytes {
		ws.Discard(path)
		return nil, domain.Errorf(domain.KindValidation, "stream body", "body exceeds %d bytes", m.maxBodyBytes)
	}
	if copyErr != nil || closeErr != nil {
		ws.Discard(path)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if copyErr != nil {
			return nil, domain.NewError(domain.KindNetwork, "stream body", copyErr)
		}
		return nil, fmt.Errorf("failed to close output file: %w", closeErr)
	}

	saved, err := ws.Finalize(path)
	if err != nil {
		ws.Discard(path)
		return nil, err
	}
	return saved, nil
}

// contextReader stops a copy loop once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
