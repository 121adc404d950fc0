package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVideoReference(t *testing.T) {
	ref := NewVideoReference("https://v.douyin.com/abc/")

	assert.Equal(t, "https://v.douyin.com/abc/", ref.ShareURL)
	assert.Equal(t, StatusPending, ref.Status)
	assert.Equal(t, UntitledVideo, ref.Title)
	assert.Nil(t, ref.SavedFile)
	assert.False(t, ref.IsTerminal())
}

func TestVideoReference_AdvanceForward(t *testing.T) {
	ref := NewVideoReference("https://v.douyin.com/abc/")

	require.NoError(t, ref.Advance(StatusResolving))
	require.NoError(t, ref.Advance(StatusExtracting))
	require.NoError(t, ref.Advance(StatusExtracting))
	require.NoError(t, ref.Advance(StatusDownloading))

	assert.Equal(t, StatusDownloading, ref.Status)
}

func TestVideoReference_AdvanceRejectsBackward(t *testing.T) {
	ref := NewVideoReference("https://v.douyin.com/abc/")
	require.NoError(t, ref.Advance(StatusDownloading))

	err := ref.Advance(StatusResolving)

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusDownloading, ref.Status)
}

func TestVideoReference_AdvanceRejectsTerminalTargets(t *testing.T) {
	tests := []VideoStatus{StatusSaved, StatusFailed, VideoStatus("bogus")}

	for _, next := range tests {
		t.Run(string(next), func(t *testing.T) {
			ref := NewVideoReference("https://v.douyin.com/abc/")
			assert.ErrorIs(t, ref.Advance(next), ErrInvalidTransition)
			assert.Equal(t, StatusPending, ref.Status)
		})
	}
}

func TestVideoReference_MarkSaved(t *testing.T) {
	ref := NewVideoReference("https://v.douyin.com/abc/")

	err := ref.MarkSaved(SavedFile{Path: "/tmp/video_1.mp4"})
	assert.ErrorIs(t, err, ErrInvalidTransition, "saving requires the downloading status")

	require.NoError(t, ref.Advance(StatusDownloading))
	require.NoError(t, ref.MarkSaved(SavedFile{Path: "/tmp/video_1.mp4", ByteSize: 10}))

	assert.Equal(t, StatusSaved, ref.Status)
	require.NotNil(t, ref.SavedFile)
	assert.Equal(t, "/tmp/video_1.mp4", ref.SavedFile.Path)
	assert.True(t, ref.IsTerminal())

	assert.ErrorIs(t, ref.MarkSaved(SavedFile{Path: "/tmp/other.mp4"}), ErrInvalidTransition)
	assert.ErrorIs(t, ref.Advance(StatusDownloading), ErrInvalidTransition)
}

func TestVideoReference_MarkFailed(t *testing.T) {
	ref := NewVideoReference("https://v.douyin.com/abc/")
	require.NoError(t, ref.Advance(StatusExtracting))

	ref.MarkFailed(errors.New("boom"))

	assert.Equal(t, StatusFailed, ref.Status)
	assert.Equal(t, "boom", ref.ErrorMessage)

	ref.MarkFailed(errors.New("again"))
	assert.Equal(t, "boom", ref.ErrorMessage, "terminal status is kept")
}

func TestVideoReference_DownloadURL(t *testing.T) {
	ref := NewVideoReference("https://v.douyin.com/abc/")
	assert.Equal(t, "https://v.douyin.com/abc/", ref.DownloadURL())

	ref.CandidateMediaURL = "https://cdn.example.com/a.mp4"
	assert.Equal(t, "https://cdn.example.com/a.mp4", ref.DownloadURL())
}
