package models

import "time"

// ContentType classifies what a saved link points at.
type ContentType string

const (
	ContentTypeWebpage ContentType = "webpage"
	ContentTypeYouTube ContentType = "youtube"
	ContentTypeSpotify ContentType = "spotify"
	ContentTypeTwitter ContentType = "twitter"
	ContentTypeGitHub  ContentType = "github"
	ContentTypePDF     ContentType = "pdf"
	ContentTypeUnknown ContentType = "unknown"
)

// ProcessingStatus tracks a link through the enrichment pipeline.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusComplete   ProcessingStatus = "complete"
	StatusError      ProcessingStatus = "error"
)

// LinkMetadata is the transient output of the quick metadata phase.
// URL is always set and always normalized. Which of the optional fields
// are populated depends on ContentType: YouTube fills Title/Author/
// ThumbnailURL from oEmbed, Twitter fills Author/Title from URL parsing,
// generic pages fill Title/Author/ThumbnailURL/Content from meta tags.
// A non-empty Error means the fetch did not complete normally, but
// URL-derived fields may still be present.
type LinkMetadata struct {
	URL             string      `json:"url"`
	FinalURL        string      `json:"final_url,omitempty"`
	ContentType     ContentType `json:"content_type"`
	Title           string      `json:"title,omitempty"`
	Author          string      `json:"author,omitempty"`
	ThumbnailURL    string      `json:"thumbnail_url,omitempty"`
	DurationSeconds int         `json:"duration_seconds,omitempty"`
	Content         string      `json:"content,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// Link is a saved link owned by a user.
type Link struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	URL         string `json:"url"`                    // post-redirect, final
	OriginalURL string `json:"original_url,omitempty"` // as submitted, pre-redirect

	Title        string `json:"title,omitempty"`
	ShortSummary string `json:"short_summary,omitempty"`
	Note         string `json:"note,omitempty"`
	Read         bool   `json:"read"`

	ContentType  ContentType `json:"content_type"`
	Author       string      `json:"author,omitempty"`
	Duration     int         `json:"duration,omitempty"` // seconds, media content only
	ThumbnailURL string      `json:"thumbnail_url,omitempty"`
	RawMetadata  string      `json:"raw_metadata,omitempty"` // JSON snapshot of the quick phase

	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ProcessingError  string           `json:"processing_error,omitempty"`

	CategoryID string `json:"category_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Category is a user-owned label. Names are unique per user, case-sensitive.
type Category struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User carries only the fields the pipeline and newsletter need.
// Registration and credentials live elsewhere.
type User struct {
	ID                    string    `json:"id"`
	Email                 string    `json:"email"`
	Username              string    `json:"username,omitempty"`
	NewsletterEnabled     bool      `json:"newsletter_enabled"`
	AllowAICategorization bool      `json:"allow_ai_categorization"`
	CreatedAt             time.Time `json:"created_at"`
}

// CategorySuggestion is the structured output contract for the
// categorization model call. Exactly these two fields, always.
type CategorySuggestion struct {
	Category     string `json:"category"`
	ShortSummary string `json:"short_summary"`
}

// SaveLinkRequest is the body for saving a new link.
type SaveLinkRequest struct {
	URL  string `json:"url"`
	Note string `json:"note,omitempty"`
}

// SummarizeResponse is returned by the on-demand summarize endpoint.
// Summary is always renderable text, even on failure.
type SummarizeResponse struct {
	LinkID  string `json:"link_id"`
	Summary string `json:"summary"`
}

// NewsletterLink is a link prepared for digest generation.
type NewsletterLink struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Category     string    `json:"category,omitempty"`
	ShortSummary string    `json:"short_summary,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewsletterData is everything gathered for one user's digest email.
type NewsletterData struct {
	User               User             `json:"user"`
	Links              []NewsletterLink `json:"links"`
	TotalCategories    int              `json:"total_categories"`
	MostCommonCategory string           `json:"most_common_category,omitempty"`
	WeeklySummary      string           `json:"weekly_summary"`
	DigestArticle      string           `json:"digest_article,omitempty"`
}

// BatchResult reports the outcome of one newsletter batch.
type BatchResult struct {
	Batch      int `json:"batch"`
	TotalUsers int `json:"total_users"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
