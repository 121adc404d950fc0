package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yourusername/dy-extract-go/internal/domain"
)

func TestExtractFromHTML_PlayAddrWinsOverLooseMatches(t *testing.T) {
	html := `<a href="https://ads.example.com/promo.mp4">ad</a>` +
		`<script>{"video":{"playAddr":"https:\u002F\u002Fv26.douyinvod.com/abc/video.mp4?a=1\u0026b=2","desc":"x"}}</script>` +
		`<script>{"desc":"A cat on a piano"}</script>`

	info := NewPatternExtractor().ExtractFromHTML(html)

	assert.True(t, info.Success)
	assert.Equal(t, "https://v26.douyinvod.com/abc/video.mp4?a=1&b=2", info.MediaURL)
	assert.Equal(t, "x", info.Title)
}

func TestExtractFromHTML_PatternOrder(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "download addr before src no mark",
			html: `{"srcNoMark":"https://cdn.example.com/b.mp4","downloadAddr":"https://cdn.example.com/a.mp4"}`,
			want: "https://cdn.example.com/a.mp4",
		},
		{
			name: "slash escaped fields",
			html: `{"srcNoMark":"https:\/\/cdn.example.com/c.mp4"}`,
			want: "https://cdn.example.com/c.mp4",
		},
		{
			name: "video field",
			html: `{"video":"https://cdn.example.com/d"}`,
			want: "https://cdn.example.com/d",
		},
		{
			name: "loose mp4",
			html: `<p>watch at https://cdn.example.com/e.mp4 now</p>`,
			want: "https://cdn.example.com/e.mp4",
		},
		{
			name: "loose m3u8",
			html: `<p>stream https://cdn.example.com/live/index.m3u8</p>`,
			want: "https://cdn.example.com/live/index.m3u8",
		},
	}

	extractor := NewPatternExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := extractor.ExtractFromHTML(tt.html)
			assert.True(t, info.Success)
			assert.Equal(t, tt.want, info.MediaURL)
		})
	}
}

func TestExtractFromHTML_NoMatchIsNotAnError(t *testing.T) {
	info := NewPatternExtractor().ExtractFromHTML(`<html><body>captcha</body></html>`)

	assert.False(t, info.Success)
	assert.Empty(t, info.MediaURL)
	assert.Equal(t, domain.UntitledVideo, info.Title)
}

func TestExtractFromHTML_Idempotent(t *testing.T) {
	html := `{"playAddr":"https:\u002F\u002Fcdn.example.com/v.mp4","desc":"same"}`
	extractor := NewPatternExtractor()

	assert.Equal(t, extractor.ExtractFromHTML(html), extractor.ExtractFromHTML(html))
}

func TestExtractFromRendered(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
		ok   bool
	}{
		{
			name: "structured field first",
			html: `<video src="https://cdn.example.com/element.mp4"></video><script>{"playAddr":"https://cdn.example.com/field.mp4"}</script>`,
			want: "https://cdn.example.com/field.mp4",
			ok:   true,
		},
		{
			name: "video element",
			html: `<html><body><video src="blob:https://www.douyin.com/1"><source src="https://cdn.example.com/source"></video></body></html>`,
			want: "https://cdn.example.com/source",
			ok:   true,
		},
		{
			name: "og video meta",
			html: `<html><head><meta property="og:video" content="https://cdn.example.com/og"></head></html>`,
			want: "https://cdn.example.com/og",
			ok:   true,
		},
		{
			name: "nothing",
			html: `<html><body><video src="blob:https://www.douyin.com/1"></video></body></html>`,
			ok:   false,
		},
	}

	extractor := NewPatternExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := extractor.ExtractFromRendered(tt.html)
			assert.Equal(t, tt.ok, info.Success)
			assert.Equal(t, tt.want, info.MediaURL)
		})
	}
}

func TestExtractTitle(t *testing.T) {
	extractor := NewPatternExtractor()

	assert.Equal(t, "sunset", extractor.ExtractTitle(`{"desc":"sunset","other":"x"}`))
	assert.Equal(t, domain.UntitledVideo, extractor.ExtractTitle(`{"desc":""}`))
	assert.Equal(t, domain.UntitledVideo, extractor.ExtractTitle(`<html></html>`))
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://www.douyin.com/video/7300000000000000001", "7300000000000000001", true},
		{"https://www.iesdouyin.com/share/video/123456789/?region=CN", "123456789", true},
		{"https://www.douyin.com/jingxuan?modal_id=555", "555", true},
		{"https://www.douyin.com/share?item_id=987", "987", true},
		{"https://www.douyin.com/discover?video_id=42&vid=7", "42", true},
		{"https://www.douyin.com/note?aweme_id=31", "31", true},
		{"https://v.douyin.com/AbCdEf/", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			id, ok := ExtractVideoID(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCanonicalVideoURL(t *testing.T) {
	template := "https://www.douyin.com/video/%s"
	markers := []string{"jingxuan"}

	got, ok := CanonicalVideoURL("https://www.douyin.com/jingxuan?modal_id=555", "555", template, markers)
	assert.True(t, ok)
	assert.Equal(t, "https://www.douyin.com/video/555", got)

	_, ok = CanonicalVideoURL("https://www.douyin.com/video/555", "555", template, markers)
	assert.False(t, ok)

	_, ok = CanonicalVideoURL("https://www.douyin.com/jingxuan", "", template, markers)
	assert.False(t, ok)
}
