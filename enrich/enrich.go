// Package enrich runs the slow, model-backed half of link processing:
// categorization with a short summary at save time, on-demand long
// summaries, and the weekly digest article.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nwilson314/stash/metrics"
	"github.com/nwilson314/stash/models"
	"github.com/nwilson314/stash/openai"
)

// ErrLinkNotFound is returned when the link to enrich does not exist
// or belongs to another user.
var ErrLinkNotFound = errors.New("link not found")

// Fallback strings shown to users when generation fails. These are
// rendered directly, so they stay human-readable sentences.
const (
	summaryExtractionFallback = "Could not generate summary due to content extraction issues."
	summaryEmptyFallback      = "No summary could be generated."
	digestFailureFallback     = "We couldn't generate your weekly digest due to a technical issue. Please try again later."
	digestNoLinksFallback     = "No links were saved this week."
)

// Store is the persistence surface enrichment needs.
type Store interface {
	GetLink(id, userID string) (*models.Link, error)
	SetLinkStatus(id string, status models.ProcessingStatus, processingError string) error
	CompleteLinkEnrichment(id, categoryID, shortSummary string, processedAt time.Time) error
	ListCategories(userID string) ([]*models.Category, error)
	ResolveCategory(userID, name string) (string, error)
	GetUser(id string) (*models.User, error)
}

// LLM is the model call surface, satisfied by openai.Client.
type LLM interface {
	SuggestCategory(ctx context.Context, system, prompt string) (*models.CategorySuggestion, error)
	Complete(ctx context.Context, model, system, prompt string, temperature float64, maxTokens int) (string, error)
}

// Fetcher re-runs the quick metadata phase when enrichment needs page
// content that wasn't captured at save time, and pulls video
// descriptions for links whose pages carry no useful body text.
type Fetcher interface {
	ProcessNewLink(ctx context.Context, rawURL string) models.LinkMetadata
	VideoDescription(ctx context.Context, rawURL string) string
}

// Config contains enrichment settings
type Config struct {
	// MaxContentLength caps how much page text goes into a prompt.
	MaxContentLength int
	// MaxConcurrentLLM bounds in-flight model calls across all workers.
	MaxConcurrentLLM int

	// SummaryModel and DigestModel pick the model per call shape;
	// categorization uses the client's default model.
	SummaryModel string
	DigestModel  string

	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxContentLength: 4000,
		MaxConcurrentLLM: 3,
		SummaryModel:     openai.DefaultModel,
		DigestModel:      openai.DefaultMiniModel,
		Temperature:      0.7,
		MaxTokens:        1500,
	}
}

// Enricher coordinates model calls and persistence for one link at a
// time. Safe for concurrent use.
type Enricher struct {
	config   Config
	store    Store
	llm      LLM
	fetcher  Fetcher
	logger   *slog.Logger
	llmSlots chan struct{}
}

// New creates an Enricher.
func New(config Config, store Store, llm LLM, fetcher Fetcher, logger *slog.Logger) *Enricher {
	if config.MaxConcurrentLLM <= 0 {
		config.MaxConcurrentLLM = DefaultConfig().MaxConcurrentLLM
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		config:   config,
		store:    store,
		llm:      llm,
		fetcher:  fetcher,
		logger:   logger,
		llmSlots: make(chan struct{}, config.MaxConcurrentLLM),
	}
}

func (e *Enricher) acquireSlot(ctx context.Context) error {
	select {
	case e.llmSlots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Enricher) releaseSlot() {
	<-e.llmSlots
}

// ProcessLink categorizes a saved link and stores a short summary.
// Failures are recorded on the link row, never returned: the save
// already succeeded from the user's point of view.
func (e *Enricher) ProcessLink(ctx context.Context, linkID, userID string) {
	start := time.Now()
	ctx, span := otel.Tracer("stash").Start(ctx, "enrich.ProcessLink")
	defer span.End()
	span.SetAttributes(attribute.String("link.id", linkID))

	link, err := e.store.GetLink(linkID, userID)
	if err != nil {
		e.logger.Error("enrichment: failed to load link", "link_id", linkID, "error", err)
		metrics.EnrichmentTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return
	}
	if link == nil {
		// Deleted between save and pickup. Nothing to do.
		e.logger.Warn("enrichment: link no longer exists", "link_id", linkID)
		return
	}

	if err := e.store.SetLinkStatus(link.ID, models.StatusProcessing, ""); err != nil {
		e.logger.Error("enrichment: failed to mark processing", "link_id", linkID, "error", err)
		metrics.EnrichmentTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return
	}

	fail := func(stage string, err error) {
		e.logger.Error("enrichment failed", "link_id", linkID, "stage", stage, "error", err)
		if dbErr := e.store.SetLinkStatus(link.ID, models.StatusError, err.Error()); dbErr != nil {
			e.logger.Error("enrichment: failed to record error", "link_id", linkID, "error", dbErr)
		}
		metrics.EnrichmentTotal.WithLabelValues(metrics.OutcomeError).Inc()
		metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	}

	user, err := e.store.GetUser(userID)
	if err != nil {
		fail("load user", err)
		return
	}
	if user != nil && !user.AllowAICategorization {
		// The user opted out. The link is done as far as they're concerned.
		if err := e.store.CompleteLinkEnrichment(link.ID, "", "", time.Now().UTC()); err != nil {
			fail("complete", err)
			return
		}
		metrics.EnrichmentTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
		return
	}

	content := e.linkContent(ctx, link)

	categories, err := e.store.ListCategories(userID)
	if err != nil {
		fail("list categories", err)
		return
	}
	names := make([]string, 0, len(categories))
	for _, cat := range categories {
		names = append(names, cat.Name)
	}

	prompt := buildCategorizationPrompt(link, names, truncate(content, e.config.MaxContentLength))

	if err := e.acquireSlot(ctx); err != nil {
		fail("acquire slot", err)
		return
	}
	suggestion, err := e.llm.SuggestCategory(ctx, categorizationSystemPrompt, prompt)
	e.releaseSlot()
	if err != nil {
		fail("suggest category", err)
		return
	}

	categoryID, err := e.store.ResolveCategory(userID, suggestion.Category)
	if err != nil {
		fail("resolve category", err)
		return
	}

	if err := e.store.CompleteLinkEnrichment(link.ID, categoryID, suggestion.ShortSummary, time.Now().UTC()); err != nil {
		fail("complete", err)
		return
	}

	metrics.EnrichmentTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	e.logger.Info("link enriched", "link_id", linkID, "category", suggestion.Category)
}

// linkContent recovers page text for prompting, preferring the snapshot
// captured at save time and re-fetching only when it's empty. YouTube
// watch pages are a special case: their extracted body text is script
// noise, so the video description is fetched instead when available.
func (e *Enricher) linkContent(ctx context.Context, link *models.Link) string {
	if link.ContentType == models.ContentTypeYouTube {
		if desc := e.fetcher.VideoDescription(ctx, link.URL); desc != "" {
			return desc
		}
	}

	if link.RawMetadata != "" {
		var meta models.LinkMetadata
		if err := json.Unmarshal([]byte(link.RawMetadata), &meta); err == nil && meta.Content != "" {
			return meta.Content
		}
	}

	refetched := e.fetcher.ProcessNewLink(ctx, link.URL)
	return refetched.Content
}

// SummarizeLink generates a long-form summary of a link on demand. The
// returned string is always renderable text: model failures degrade to
// fallback sentences rather than errors. The only error case is a
// missing link.
func (e *Enricher) SummarizeLink(ctx context.Context, linkID, userID string) (string, error) {
	link, err := e.store.GetLink(linkID, userID)
	if err != nil {
		return "", err
	}
	if link == nil {
		return "", ErrLinkNotFound
	}

	meta := e.fetcher.ProcessNewLink(ctx, link.URL)
	if meta.Error != "" || meta.Content == "" {
		return summaryExtractionFallback, nil
	}

	prompt := buildSummaryPrompt(link, truncate(meta.Content, e.config.MaxContentLength))

	if err := e.acquireSlot(ctx); err != nil {
		return "Summary generation failed: " + err.Error(), nil
	}
	summary, err := e.llm.Complete(ctx, e.config.SummaryModel, summarySystemPrompt, prompt,
		e.config.Temperature, e.config.MaxTokens)
	e.releaseSlot()
	if err != nil {
		e.logger.Error("summary generation failed", "link_id", linkID, "error", err)
		return "Summary generation failed: " + err.Error(), nil
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return summaryEmptyFallback, nil
	}
	return summary, nil
}

// GenerateWeeklyDigest turns one user's week of links into a short
// article. Always returns renderable text.
func (e *Enricher) GenerateWeeklyDigest(ctx context.Context, data *models.NewsletterData) string {
	if len(data.Links) == 0 {
		return digestNoLinksFallback
	}

	prompt := buildDigestPrompt(data)

	if err := e.acquireSlot(ctx); err != nil {
		return digestFailureFallback
	}
	article, err := e.llm.Complete(ctx, e.config.DigestModel, digestSystemPrompt, prompt,
		e.config.Temperature, e.config.MaxTokens)
	e.releaseSlot()
	if err != nil {
		e.logger.Error("digest generation failed", "user_id", data.User.ID, "error", err)
		return digestFailureFallback
	}

	article = strings.TrimSpace(article)
	if article == "" {
		return digestFailureFallback
	}
	return article
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
