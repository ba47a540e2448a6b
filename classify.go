package stash

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/nwilson314/stash/models"
)

// Classify maps a URL, and optionally response headers, to a content
// type. URL patterns win over headers so the quick phase can classify
// before any response arrives; a later call with headers may refine the
// result (PDF via content-type, HTML pages to webpage).
func Classify(rawURL string, headers http.Header) models.ContentType {
	urlLower := strings.ToLower(rawURL)

	switch {
	case strings.Contains(urlLower, "youtube.com/watch") || strings.Contains(urlLower, "youtu.be/"):
		return models.ContentTypeYouTube
	case strings.Contains(urlLower, "open.spotify.com"):
		return models.ContentTypeSpotify
	case strings.Contains(urlLower, "github.com"):
		return models.ContentTypeGitHub
	case strings.Contains(urlLower, "twitter.com"),
		strings.Contains(urlLower, "x.com"),
		strings.Contains(urlLower, "t.co"):
		return models.ContentTypeTwitter
	}

	contentType := ""
	if headers != nil {
		contentType = strings.ToLower(headers.Get("Content-Type"))
	}

	if urlPathEndsWith(urlLower, ".pdf") || strings.Contains(contentType, "pdf") {
		return models.ContentTypePDF
	}

	if strings.Contains(contentType, "html") || strings.Contains(contentType, "xhtml") {
		return models.ContentTypeWebpage
	}

	return models.ContentTypeUnknown
}

// urlPathEndsWith reports whether the URL's path component ends with
// the given suffix, ignoring query and fragment.
func urlPathEndsWith(rawURL, suffix string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(rawURL, suffix)
	}
	return strings.HasSuffix(parsed.Path, suffix)
}
