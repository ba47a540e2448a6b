package stash

import (
	"testing"

	"github.com/nwilson314/stash/models"
)

func TestParseTweetURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		username string
		tweetID  string
	}{
		{
			name:     "standard twitter status",
			url:      "https://twitter.com/golang/status/1234567890",
			username: "golang",
			tweetID:  "1234567890",
		},
		{
			name:     "x.com status",
			url:      "https://x.com/golang/status/1234567890",
			username: "golang",
			tweetID:  "1234567890",
		},
		{
			name:     "legacy statuses path",
			url:      "https://twitter.com/golang/statuses/42",
			username: "golang",
			tweetID:  "42",
		},
		{
			name:     "i web status has no username",
			url:      "https://twitter.com/i/web/status/9876543210",
			username: "",
			tweetID:  "9876543210",
		},
		{
			name:     "profile URL yields nothing",
			url:      "https://twitter.com/golang",
			username: "",
			tweetID:  "",
		},
		{
			name:     "t.co shortlink yields nothing",
			url:      "https://t.co/abc123",
			username: "",
			tweetID:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			username, tweetID := parseTweetURL(tt.url)
			if username != tt.username || tweetID != tt.tweetID {
				t.Errorf("parseTweetURL(%q) = (%q, %q), expected (%q, %q)",
					tt.url, username, tweetID, tt.username, tt.tweetID)
			}
		})
	}
}

func TestTwitterMetadata(t *testing.T) {
	t.Run("username and id", func(t *testing.T) {
		var meta models.LinkMetadata
		twitterMetadata(&meta, "https://x.com/golang/status/12345", "")

		if meta.ContentType != models.ContentTypeTwitter {
			t.Errorf("ContentType = %q, expected %q", meta.ContentType, models.ContentTypeTwitter)
		}
		if meta.Title != "Tweet by @golang" {
			t.Errorf("Title = %q, expected %q", meta.Title, "Tweet by @golang")
		}
		if meta.Author != "@golang" {
			t.Errorf("Author = %q, expected %q", meta.Author, "@golang")
		}
	})

	t.Run("id only", func(t *testing.T) {
		var meta models.LinkMetadata
		twitterMetadata(&meta, "https://twitter.com/i/web/status/777", "")

		if meta.Title != "Tweet 777" {
			t.Errorf("Title = %q, expected %q", meta.Title, "Tweet 777")
		}
		if meta.Author != "" {
			t.Errorf("Author = %q, expected empty", meta.Author)
		}
	})

	t.Run("unparseable URL", func(t *testing.T) {
		var meta models.LinkMetadata
		twitterMetadata(&meta, "https://t.co/xyz", "")

		if meta.Title != "Twitter Post" {
			t.Errorf("Title = %q, expected %q", meta.Title, "Twitter Post")
		}
	})

	t.Run("description pulled from body", func(t *testing.T) {
		body := `<html><head><meta property="og:description" content="A tweet about Go generics" /></head><body></body></html>`
		var meta models.LinkMetadata
		twitterMetadata(&meta, "https://x.com/golang/status/12345", body)

		if meta.Content != "A tweet about Go generics" {
			t.Errorf("Content = %q, expected og:description text", meta.Content)
		}
	})
}
