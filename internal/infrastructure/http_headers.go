package infrastructure

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/yourusername/dy-extract-go/internal/domain"
)

// priorityCookies are sent first when building a Cookie header from a cookie file
var priorityCookies = []string{"s_v_web_id", "ttwid", "sid_guard", "sid_tt", "sessionid", "uid_tt"}

// RequestHeaders builds the browser-like header set used for page requests
func RequestHeaders(cfg *domain.HTTPConfig) http.Header {
	h := http.Header{}
	h.Set("User-Agent", firstNonEmpty(cfg.UserAgent, domain.DefaultUserAgent))
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", firstNonEmpty(cfg.AcceptLanguage, "zh-CN,zh;q=0.9"))
	h.Set("Accept-Encoding", "gzip, deflate, br")
	if cfg.Referer != "" {
		h.Set("Referer", cfg.Referer)
	}
	for k, v := range cfg.Headers {
		h.Set(k, v)
	}
	return h
}

// MediaHeaders builds headers for media requests. Accept-Encoding is left to the
// transport so compressed media is decoded transparently.
func MediaHeaders(cfg *domain.HTTPConfig) http.Header {
	h := RequestHeaders(cfg)
	h.Del("Accept-Encoding")
	h.Set("Accept", "*/*")
	return h
}

// CookieHeaderFromFile converts a Netscape cookie file into a Cookie header value.
// Session cookies the platform checks are placed first.
func CookieHeaderFromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer f.Close()

	values := make(map[string]string)
	var order []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// #HttpOnly_ prefixed lines are real cookies, plain # lines are comments
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		name, value := fields[5], fields[6]
		if name == "" {
			continue
		}
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = value
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read cookie file: %w", err)
	}

	var parts []string
	used := make(map[string]bool)
	for _, name := range priorityCookies {
		if v, ok := values[name]; ok {
			parts = append(parts, name+"="+v)
			used[name] = true
		}
	}
	for _, name := range order {
		if !used[name] {
			parts = append(parts, name+"="+values[name])
		}
	}
	return strings.Join(parts, "; "), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
