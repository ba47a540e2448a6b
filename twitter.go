package stash

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nwilson314/stash/models"
)

// tweetPatterns recover (username, tweetID) from a Twitter/X URL.
// Ordered; first match wins. The i/web/status form has no username
// group, so callers must tolerate an empty username.
var tweetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:twitter\.com|x\.com)/([A-Za-z0-9_]+)/status(?:es)?/(\d+)`),
	regexp.MustCompile(`(?:twitter\.com|x\.com)/i/web/status/(\d+)`),
}

// isTwitterURL reports whether a URL looks like a Twitter/X link.
// Substring match, same as classification.
func isTwitterURL(rawURL string) bool {
	urlLower := strings.ToLower(rawURL)
	return strings.Contains(urlLower, "twitter.com") ||
		strings.Contains(urlLower, "x.com") ||
		strings.Contains(urlLower, "t.co")
}

// parseTweetURL extracts the username and tweet ID from a Twitter/X
// URL. Either or both may come back empty.
func parseTweetURL(rawURL string) (username, tweetID string) {
	for _, pattern := range tweetPatterns {
		m := pattern.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		if len(m) == 3 {
			return m[1], m[2]
		}
		// pattern without a username group
		return "", m[1]
	}
	return "", ""
}

// twitterMetadata fills Twitter-specific fields on a LinkMetadata from
// the URL alone, plus an Open Graph description from the body when one
// was fetched. Twitter blocks many server-side fetches, so everything
// here has to work without a response.
func twitterMetadata(meta *models.LinkMetadata, rawURL, body string) {
	meta.ContentType = models.ContentTypeTwitter

	username, tweetID := parseTweetURL(rawURL)
	switch {
	case username != "":
		meta.Title = fmt.Sprintf("Tweet by @%s", username)
		meta.Author = "@" + username
	case tweetID != "":
		meta.Title = fmt.Sprintf("Tweet %s", tweetID)
	default:
		meta.Title = "Twitter Post"
	}

	if body != "" {
		if page := extractPageMeta(body); page.Description != "" {
			meta.Content = page.Description
		}
	}
}
