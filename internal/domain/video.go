package domain

import (
	"fmt"
	"time"
)

// VideoStatus represents the progress of a single acquisition run
type VideoStatus string

const (
	StatusPending     VideoStatus = "pending"
	StatusResolving   VideoStatus = "resolving"
	StatusExtracting  VideoStatus = "extracting"
	StatusDownloading VideoStatus = "downloading"
	StatusSaved       VideoStatus = "saved"
	StatusFailed      VideoStatus = "failed"
)

// statusRank orders the non-failed statuses; failed is reachable from any non-terminal one
var statusRank = map[VideoStatus]int{
	StatusPending:     0,
	StatusResolving:   1,
	StatusExtracting:  2,
	StatusDownloading: 3,
	StatusSaved:       4,
}

// VideoReference is the working record of one share link while the engine processes it
type VideoReference struct {
	ShareURL          string      `json:"share_url"`
	ExtractedID       string      `json:"extracted_id,omitempty"`
	Title             string      `json:"title"`
	CandidateMediaURL string      `json:"candidate_media_url,omitempty"`
	Status            VideoStatus `json:"status"`
	SavedFile         *SavedFile  `json:"saved_file,omitempty"`
	ErrorMessage      string      `json:"error_message,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// NewVideoReference creates a pending reference for a share URL
func NewVideoReference(shareURL string) *VideoReference {
	now := time.Now()
	return &VideoReference{
		ShareURL:  shareURL,
		Title:     UntitledVideo,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the reference forward to next. Backward moves and moves out of a
// terminal status are rejected.
func (v *VideoReference) Advance(next VideoStatus) error {
	if v.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, v.Status)
	}
	if next == StatusFailed || next == StatusSaved {
		return fmt.Errorf("%w: use MarkSaved or MarkFailed to reach %s", ErrInvalidTransition, next)
	}
	nextRank, ok := statusRank[next]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if nextRank < statusRank[v.Status] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, next)
	}
	v.Status = next
	v.UpdatedAt = time.Now()
	return nil
}

// MarkSaved records the run's single saved file. Only valid while downloading.
func (v *VideoReference) MarkSaved(file SavedFile) error {
	if v.Status != StatusDownloading {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, StatusSaved)
	}
	v.Status = StatusSaved
	v.SavedFile = &file
	v.UpdatedAt = time.Now()
	return nil
}

// MarkFailed marks the reference as failed
func (v *VideoReference) MarkFailed(err error) {
	if v.IsTerminal() {
		return
	}
	v.Status = StatusFailed
	if err != nil {
		v.ErrorMessage = err.Error()
	}
	v.UpdatedAt = time.Now()
}

// IsTerminal checks if the reference reached saved or failed
func (v *VideoReference) IsTerminal() bool {
	return v.Status == StatusSaved || v.Status == StatusFailed
}

// DownloadURL returns the candidate media URL, or the share URL when none was extracted
func (v *VideoReference) DownloadURL() string {
	if v.CandidateMediaURL != "" {
		return v.CandidateMediaURL
	}
	return v.ShareURL
}

// UntitledVideo is the title used when the page carries none
const UntitledVideo = "untitled"

// VideoInfo is what pattern extraction found in a page
type VideoInfo struct {
	Title    string `json:"title"`
	MediaURL string `json:"media_url,omitempty"`
	Success  bool   `json:"success"`
}

// SavedFile describes the media file a successful run produced
type SavedFile struct {
	Path             string `json:"path"`
	ByteSize         int64  `json:"byte_size"`
	ContentSignature string `json:"content_signature"` // sha256, hex
	MimeType         string `json:"mime_type,omitempty"`
}
