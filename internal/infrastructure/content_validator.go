package infrastructure

import (
	"bytes"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Classification is the verdict of the content validator
type Classification string

const (
	ClassMedia   Classification = "MEDIA"
	ClassMarkup  Classification = "MARKUP"
	ClassUnknown Classification = "UNKNOWN"
)

// DefaultMinMediaBytes is the size below which a body without a video content
// type is never accepted as media
const DefaultMinMediaBytes = 100

var mediaURLHints = []string{".mp4", ".m3u8", ".m4s"}

var hlsContentTypes = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"audio/mpegurl":                 true,
}

// ContentValidator tells media bodies apart from HTML challenge and error pages
type ContentValidator struct {
	MinMediaBytes int
}

// NewContentValidator creates a validator; minMediaBytes <= 0 selects the default
func NewContentValidator(minMediaBytes int) *ContentValidator {
	if minMediaBytes <= 0 {
		minMediaBytes = DefaultMinMediaBytes
	}
	return &ContentValidator{MinMediaBytes: minMediaBytes}
}

// Classify classifies a body by its bytes and declared content type
func (v *ContentValidator) Classify(body []byte, contentType string) Classification {
	return v.ClassifyResponse(body, contentType, "")
}

// ClassifyResponse classifies a body, also using the URL it was fetched from as a hint.
// A body whose first non-whitespace byte is '<' is markup whatever its declared type.
func (v *ContentValidator) ClassifyResponse(body []byte, contentType, sourceURL string) Classification {
	if len(body) == 0 {
		return ClassUnknown
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n\f\v\ufeff")
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return ClassMarkup
	}

	mediaType := normalizeContentType(contentType)
	if strings.HasPrefix(mediaType, "video/") {
		return ClassMedia
	}
	if len(trimmed) == 0 {
		return ClassUnknown
	}

	if len(body) < v.minBytes() {
		return ClassUnknown
	}
	if hasMediaURLHint(sourceURL) || isMediaContentType(mediaType) || sniffsAsMedia(body) {
		return ClassMedia
	}
	return ClassUnknown
}

func (v *ContentValidator) minBytes() int {
	if v.MinMediaBytes <= 0 {
		return DefaultMinMediaBytes
	}
	return v.MinMediaBytes
}

// IsMediaResponse reports whether a network response looks like media by its
// headers alone. Used by the browser listener before any body is read.
func IsMediaResponse(responseURL, contentType string) bool {
	return strings.HasPrefix(normalizeContentType(contentType), "video/") || hasMediaURLHint(responseURL)
}

// DetectExtension picks a file extension for a media body: sniffed type first,
// then declared type, then the URL suffix, then mp4.
func DetectExtension(head []byte, contentType, sourceURL string) string {
	if len(head) > 0 {
		if m := mimetype.Detect(head); isSniffedMedia(m) && m.Extension() != "" {
			return strings.TrimPrefix(m.Extension(), ".")
		}
	}

	switch mediaType := normalizeContentType(contentType); mediaType {
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "video/quicktime":
		return "mov"
	case "video/mp2t":
		return "ts"
	case "application/vnd.apple.mpegurl", "application/x-mpegurl", "audio/mpegurl":
		return "m3u8"
	}

	if sourceURL != "" {
		p := sourceURL
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
		switch ext := strings.ToLower(path.Ext(p)); ext {
		case ".mp4", ".webm", ".mov", ".m3u8", ".ts", ".flv", ".mkv":
			return strings.TrimPrefix(ext, ".")
		}
	}
	return "mp4"
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType
}

func hasMediaURLHint(u string) bool {
	lower := strings.ToLower(u)
	for _, hint := range mediaURLHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func isMediaContentType(mediaType string) bool {
	switch {
	case strings.HasPrefix(mediaType, "audio/"), hlsContentTypes[mediaType]:
		return true
	case mediaType == "application/octet-stream", mediaType == "binary/octet-stream":
		return true
	}
	return false
}

func sniffsAsMedia(body []byte) bool {
	return isSniffedMedia(mimetype.Detect(body))
}

func isSniffedMedia(m *mimetype.MIME) bool {
	s := m.String()
	return strings.HasPrefix(s, "video/") || strings.HasPrefix(s, "audio/") || hlsContentTypes[s]
}
