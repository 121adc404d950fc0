package infrastructure

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yourusername/dy-extract-go/internal/domain"
)

// jsonURL matches an absolute URL that may still carry JSON escaping (https:\/\/...)
const jsonURL = `(https?:(?://|\\u002[fF]\\u002[fF]|\\/\\/)[^"]+)`

// Media URL patterns in priority order. Structured player fields are the platform's
// canonical source and must win over loose substrings elsewhere in the page.
var mediaURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"playAddr":"` + jsonURL + `"`),
	regexp.MustCompile(`"downloadAddr":"` + jsonURL + `"`),
	regexp.MustCompile(`"srcNoMark":"` + jsonURL + `"`),
	regexp.MustCompile(`"video":"` + jsonURL + `"`),
	regexp.MustCompile(`(https?://[^\s"'<>]+\.mp4)`),
	regexp.MustCompile(`(https?://[^\s"'<>]+\.m3u8)`),
}

// Patterns tried against fully rendered DOM content, around the element walk
var (
	renderedFieldPatterns = mediaURLPatterns[:2]
	renderedLoosePatterns = []*regexp.Regexp{
		regexp.MustCompile(`src="(https?://[^"]+\.mp4)"`),
		mediaURLPatterns[4],
		mediaURLPatterns[5],
	}
)

var titlePattern = regexp.MustCompile(`"desc":"(.*?)"`)

// Video ID patterns: path segments first, then query parameters
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/video/(\d+)`),
	regexp.MustCompile(`/share/video/(\d+)`),
	regexp.MustCompile(`video_id=(\d+)`),
	regexp.MustCompile(`modal_id=(\d+)`),
	regexp.MustCompile(`vid=(\d+)`),
	regexp.MustCompile(`item_id=(\d+)`),
	regexp.MustCompile(`aweme_id=(\d+)`),
}

var urlUnescaper = strings.NewReplacer(
	`\u002F`, "/",
	`\u002f`, "/",
	`\/`, "/",
	`\u0026`, "&",
	`&amp;`, "&",
)

// PatternExtractor locates candidate media URLs and titles in page content. It has
// no state, so every method is safe for concurrent use.
type PatternExtractor struct{}

// NewPatternExtractor creates a new pattern extractor
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// ExtractFromHTML applies the media URL patterns in order; the first match wins.
// Success is false when nothing matched, which is not an error.
func (e *PatternExtractor) ExtractFromHTML(html string) domain.VideoInfo {
	info := domain.VideoInfo{Title: e.ExtractTitle(html)}
	if mediaURL, ok := firstMatch(mediaURLPatterns, html); ok {
		info.MediaURL = mediaURL
		info.Success = true
	}
	return info
}

// ExtractFromRendered extracts from the DOM of a rendered page. Besides the
// structured fields it walks <video> elements and the og:video meta tag.
func (e *PatternExtractor) ExtractFromRendered(html string) domain.VideoInfo {
	info := domain.VideoInfo{Title: e.ExtractTitle(html)}

	if mediaURL, ok := firstMatch(renderedFieldPatterns, html); ok {
		info.MediaURL, info.Success = mediaURL, true
		return info
	}
	if mediaURL, ok := videoElementSource(html); ok {
		info.MediaURL, info.Success = mediaURL, true
		return info
	}
	if mediaURL, ok := firstMatch(renderedLoosePatterns, html); ok {
		info.MediaURL, info.Success = mediaURL, true
	}
	return info
}

// ExtractTitle returns the description field of the page, or "untitled"
func (e *PatternExtractor) ExtractTitle(html string) string {
	m := titlePattern.FindStringSubmatch(html)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return domain.UntitledVideo
	}
	return m[1]
}

// ExtractVideoID returns the first video ID found in rawURL
func ExtractVideoID(rawURL string) (string, bool) {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(rawURL); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// CanonicalVideoURL rewrites share URLs the external tool does not understand
// (those containing one of markers) to the canonical video page for id.
func CanonicalVideoURL(shareURL, id, template string, markers []string) (string, bool) {
	if id == "" || template == "" {
		return "", false
	}
	for _, marker := range markers {
		if marker != "" && strings.Contains(shareURL, marker) {
			return fmt.Sprintf(template, id), true
		}
	}
	return "", false
}

func firstMatch(patterns []*regexp.Regexp, content string) (string, bool) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(content); m != nil {
			return unescapeURL(m[1]), true
		}
	}
	return "", false
}

func unescapeURL(s string) string {
	return urlUnescaper.Replace(s)
}

// videoElementSource looks for a playable source on <video> elements or og:video
func videoElementSource(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	var found string
	doc.Find("video[src], video source[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src, ok := s.Attr("src"); ok && isAbsoluteHTTP(src) {
			found = src
			return false
		}
		return true
	})
	if found != "" {
		return unescapeURL(found), true
	}

	if content, ok := doc.Find(`meta[property="og:video"], meta[property="og:video:url"]`).First().Attr("content"); ok && isAbsoluteHTTP(content) {
		return unescapeURL(content), true
	}
	return "", false
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
