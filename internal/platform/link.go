package platform

import (
	"net/url"
	"strings"
	"unicode"
)

// SplitTrailingLink detects a text-only post whose last token is a bare
// http(s) URL and returns the text without it plus the URL. Posts with media
// or without a trailing URL come back unchanged with an empty link.
func SplitTrailingLink(text string, hasMedia bool) (body, link string) {
	if hasMedia {
		return text, ""
	}
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	idx := strings.LastIndexFunc(trimmed, unicode.IsSpace)
	last := trimmed[idx+1:]

	lower := strings.ToLower(last)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return text, ""
	}
	u, err := url.Parse(last)
	if err != nil || u.Host == "" {
		return text, ""
	}
	if idx < 0 {
		return "", last
	}
	return strings.TrimRightFunc(trimmed[:idx], unicode.IsSpace), last
}

// FirstLine returns the first non-empty line of text cut to max runes.
func FirstLine(text string, max int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r := []rune(line)
		if len(r) > max {
			r = r[:max]
		}
		return string(r)
	}
	return ""
}
