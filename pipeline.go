// Package stash implements the link-ingestion pipeline: URL
// normalization, content classification, and the quick metadata fetch
// that runs inside the save-link request. Background AI enrichment
// lives in the enrich package.
package stash

import (
	"context"
	"errors"
	"html"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nwilson314/stash/metrics"
	"github.com/nwilson314/stash/models"
)

// Config contains pipeline configuration
type Config struct {
	FetchTimeout  time.Duration // primary GET, hard ceiling
	OEmbedTimeout time.Duration // oEmbed lookup, hard ceiling
	OEmbedBaseURL string        // video-embed metadata provider endpoint
	MaxBodyBytes  int64         // cap on fetched response bodies
	UserAgent     string
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() Config {
	return Config{
		FetchTimeout:  5 * time.Second,
		OEmbedTimeout: 3 * time.Second,
		OEmbedBaseURL: "https://www.youtube.com/oembed",
		MaxBodyBytes:  512 * 1024,
		UserAgent:     "Mozilla/5.0 (compatible; Stash/1.0)",
	}
}

// Pipeline handles quick-phase link processing.
type Pipeline struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new Pipeline instance. The HTTP client is owned by the
// pipeline; callers wanting different timeouts construct their own
// pipeline rather than sharing a mutable client.
func New(config Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.FetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// ProcessNewLink quick-processes a new link and extracts basic
// metadata. It is meant to run during the HTTP request, so every path
// is bounded and best-effort: all failures come back as a LinkMetadata
// with Error set, never as a Go error.
func (p *Pipeline) ProcessNewLink(ctx context.Context, rawURL string) models.LinkMetadata {
	tracer := otel.Tracer("stash/pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.ProcessNewLink")
	defer span.End()

	cleanURL := NormalizeURL(rawURL)
	span.SetAttributes(attribute.String("link.url", cleanURL))

	meta := models.LinkMetadata{
		URL:         cleanURL,
		ContentType: models.ContentTypeUnknown,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cleanURL, nil)
	if err != nil {
		meta.Error = err.Error()
		metrics.FetchTotal.WithLabelValues(string(meta.ContentType), metrics.OutcomeError).Inc()
		return meta
	}
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			meta.Error = "Request timed out"
		} else {
			meta.Error = err.Error()
		}
		metrics.FetchTotal.WithLabelValues(string(meta.ContentType), metrics.OutcomeError).Inc()
		return meta
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()

	if resp.StatusCode >= 400 {
		// Twitter blocks most server-side fetches, but the URL alone
		// still yields a usable author and title.
		if isTwitterURL(cleanURL) {
			twitterMetadata(&meta, cleanURL, "")
			meta.Title = html.UnescapeString(meta.Title)
			metrics.FetchTotal.WithLabelValues(string(meta.ContentType), metrics.OutcomeDegraded).Inc()
			return meta
		}
		meta.Error = "HTTP error: " + strconv.Itoa(resp.StatusCode)
		metrics.FetchTotal.WithLabelValues(string(meta.ContentType), metrics.OutcomeError).Inc()
		return meta
	}

	meta.FinalURL = finalURL
	meta.ContentType = Classify(finalURL, resp.Header)
	span.SetAttributes(attribute.String("link.content_type", string(meta.ContentType)))

	isHTML := headerIndicatesHTML(resp.Header)

	var body string
	if isHTML {
		body = p.readBody(resp.Body)
	}

	switch meta.ContentType {
	case models.ContentTypeYouTube:
		p.enrichYouTube(ctx, &meta, finalURL)
	case models.ContentTypeTwitter:
		twitterMetadata(&meta, finalURL, body)
	}

	// Generic extraction covers everything else and fills any gaps the
	// type-specific strategies left. Works off the already-fetched
	// body; no second request.
	if body != "" {
		page := extractPageMeta(body)
		if meta.Title == "" {
			meta.Title = page.Title
		}
		if meta.Author == "" {
			meta.Author = page.Author
		}
		if meta.ThumbnailURL == "" {
			meta.ThumbnailURL = page.Image
		}
		if meta.Content == "" {
			if page.Text != "" {
				meta.Content = page.Text
			} else {
				meta.Content = body
			}
		}
	}

	meta.Title = html.UnescapeString(meta.Title)

	metrics.FetchTotal.WithLabelValues(string(meta.ContentType), metrics.OutcomeOK).Inc()
	return meta
}

// readBody drains up to MaxBodyBytes of a response body. Read errors
// degrade to whatever was read; the quick phase never fails on a
// truncated body.
func (p *Pipeline) readBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, p.config.MaxBodyBytes))
	if err != nil && len(data) == 0 {
		return ""
	}
	return string(data)
}

// headerIndicatesHTML reports whether a response is worth scanning for
// meta tags.
func headerIndicatesHTML(headers http.Header) bool {
	ct := strings.ToLower(headers.Get("Content-Type"))
	return strings.Contains(ct, "html")
}

// isTimeout reports whether an HTTP client error was a timeout, either
// from the client's own deadline or a context deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
