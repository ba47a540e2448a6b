package stash

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nwilson314/stash/models"
)

// oEmbedResponse is the subset of the provider's oEmbed payload the
// quick phase cares about.
type oEmbedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// videoIDFromURL derives the YouTube video ID from a watch URL. The
// query parameter v wins; youtu.be short links carry the ID as the
// first path segment.
func videoIDFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if v := parsed.Query().Get("v"); v != "" {
		return v
	}

	if idx := strings.Index(rawURL, "youtu.be/"); idx != -1 {
		rest := rawURL[idx+len("youtu.be/"):]
		if cut := strings.IndexAny(rest, "?&#/"); cut != -1 {
			rest = rest[:cut]
		}
		return rest
	}

	return ""
}

// VideoDescription fetches a YouTube watch page and returns its
// description meta tag. Watch pages are mostly script, so the
// description is the only text on them worth feeding to a model.
// Best-effort: any failure returns an empty string.
func (p *Pipeline) VideoDescription(ctx context.Context, watchURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug("description fetch failed", "url", watchURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !headerIndicatesHTML(resp.Header) {
		return ""
	}

	body := p.readBody(resp.Body)
	if body == "" {
		return ""
	}

	return extractPageMeta(body).Description
}

// enrichYouTube fills title/author/thumbnail for a YouTube link. The
// oEmbed lookup gets its own short timeout and degrades silently; a
// video ID alone is enough for a deterministic thumbnail URL.
func (p *Pipeline) enrichYouTube(ctx context.Context, meta *models.LinkMetadata, watchURL string) {
	videoID := videoIDFromURL(watchURL)
	if videoID == "" {
		return
	}

	meta.ThumbnailURL = fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID)

	ctx, cancel := context.WithTimeout(ctx, p.config.OEmbedTimeout)
	defer cancel()

	oembedURL := fmt.Sprintf("%s?url=%s&format=json", p.config.OEmbedBaseURL, url.QueryEscape(watchURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, oembedURL, nil)
	if err != nil {
		return
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug("oembed lookup failed", "url", watchURL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Debug("oembed lookup returned non-200", "url", watchURL, "status", resp.StatusCode)
		return
	}

	var oembed oEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&oembed); err != nil {
		p.logger.Debug("oembed decode failed", "url", watchURL, "error", err)
		return
	}

	meta.Title = oembed.Title
	meta.Author = oembed.AuthorName
}
