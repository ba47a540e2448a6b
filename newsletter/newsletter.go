// Package newsletter assembles and sends the weekly digest email.
package newsletter

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/nwilson314/stash/metrics"
	"github.com/nwilson314/stash/models"
)

// Store is the persistence surface the newsletter needs.
type Store interface {
	GetUser(id string) (*models.User, error)
	ListNewsletterUsers(limit, offset int) ([]*models.User, error)
	CountNewsletterUsers() (int, error)
	ListLinksInWindow(userID string, start, end time.Time) ([]*models.Link, error)
	ListCategories(userID string) ([]*models.Category, error)
}

// DigestGenerator produces the digest article, satisfied by
// enrich.Enricher.
type DigestGenerator interface {
	GenerateWeeklyDigest(ctx context.Context, data *models.NewsletterData) string
}

// Mailer delivers a rendered email.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// Config contains newsletter settings
type Config struct {
	// Window is how far back the digest looks. One week by default.
	Window time.Duration
	// BatchSize is how many users one batch covers.
	BatchSize int
	Subject   string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Window:    7 * 24 * time.Hour,
		BatchSize: 50,
		Subject:   "Your weekly stash digest",
	}
}

// Service builds and sends newsletters.
type Service struct {
	config Config
	store  Store
	digest DigestGenerator
	mailer Mailer
	logger *slog.Logger
}

// New creates a newsletter Service.
func New(config Config, store Store, digest DigestGenerator, mailer Mailer, logger *slog.Logger) *Service {
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.Subject == "" {
		config.Subject = DefaultConfig().Subject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config: config,
		store:  store,
		digest: digest,
		mailer: mailer,
		logger: logger,
	}
}

// GenerateUserNewsletter gathers one user's week of links into digest
// data. Returns nil data, nil error when there is nothing to send:
// newsletter disabled, unknown user, or an empty week.
func (s *Service) GenerateUserNewsletter(ctx context.Context, userID string) (*models.NewsletterData, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || !user.NewsletterEnabled {
		return nil, nil
	}

	end := time.Now().UTC()
	start := end.Add(-s.config.Window)

	links, err := s.store.ListLinksInWindow(userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load links: %w", err)
	}
	if len(links) == 0 {
		return nil, nil
	}

	categories, err := s.store.ListCategories(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	categoryName := make(map[string]string, len(categories))
	for _, cat := range categories {
		categoryName[cat.ID] = cat.Name
	}

	data := &models.NewsletterData{User: *user}
	counts := make(map[string]int)
	for _, link := range links {
		title := link.Title
		if title == "" {
			title = link.URL
		}
		name := categoryName[link.CategoryID]
		if name != "" {
			counts[name]++
		}
		data.Links = append(data.Links, models.NewsletterLink{
			ID:           link.ID,
			Title:        title,
			URL:          link.URL,
			Category:     name,
			ShortSummary: link.ShortSummary,
			CreatedAt:    link.CreatedAt,
		})
	}

	data.TotalCategories = len(counts)
	best := 0
	for name, count := range counts {
		if count > best {
			best = count
			data.MostCommonCategory = name
		}
	}
	data.WeeklySummary = fmt.Sprintf("You saved %d links this week across %d categories.",
		len(data.Links), data.TotalCategories)

	if user.AllowAICategorization {
		data.DigestArticle = s.digest.GenerateWeeklyDigest(ctx, data)
	}

	return data, nil
}

// GenerateAndSend builds and delivers one user's newsletter. A nil
// digest (nothing to send) is not an error.
func (s *Service) GenerateAndSend(ctx context.Context, userID string) error {
	data, err := s.GenerateUserNewsletter(ctx, userID)
	if err != nil {
		metrics.NewslettersSent.WithLabelValues(metrics.OutcomeError).Inc()
		return err
	}
	if data == nil {
		return nil
	}

	body := renderHTML(data)
	if err := s.mailer.Send(data.User.Email, s.config.Subject, body); err != nil {
		metrics.NewslettersSent.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("failed to send newsletter: %w", err)
	}

	metrics.NewslettersSent.WithLabelValues(metrics.OutcomeOK).Inc()
	s.logger.Info("newsletter sent", "user_id", userID, "links", len(data.Links))
	return nil
}

// ProcessBatch sends newsletters to one page of enabled users. Batches
// keep a full send from monopolizing the mail connection; the
// scheduler walks batch numbers until a page comes back empty.
func (s *Service) ProcessBatch(ctx context.Context, batch int) (*models.BatchResult, error) {
	total, err := s.store.CountNewsletterUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	users, err := s.store.ListNewsletterUsers(s.config.BatchSize, batch*s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	result := &models.BatchResult{Batch: batch, TotalUsers: total}
	for _, user := range users {
		if err := s.GenerateAndSend(ctx, user.ID); err != nil {
			s.logger.Error("newsletter delivery failed", "user_id", user.ID, "error", err)
			result.Failed++
			continue
		}
		result.Successful++
	}

	return result, nil
}

// ProcessAll walks every batch of enabled users.
func (s *Service) ProcessAll(ctx context.Context) error {
	for batch := 0; ; batch++ {
		result, err := s.ProcessBatch(ctx, batch)
		if err != nil {
			return err
		}
		s.logger.Info("newsletter batch processed",
			"batch", result.Batch, "successful", result.Successful, "failed", result.Failed)
		if (batch+1)*s.config.BatchSize >= result.TotalUsers {
			return nil
		}
	}
}

// renderHTML produces the email body. Kept deliberately simple: inline
// markup mails more reliably than styled templates.
func renderHTML(data *models.NewsletterData) string {
	body := fmt.Sprintf(`<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
<h1>Your weekly stash</h1>
<p>%s</p>
`, html.EscapeString(data.WeeklySummary))

	if data.MostCommonCategory != "" {
		body += fmt.Sprintf("<p>Your biggest interest this week: <strong>%s</strong></p>\n",
			html.EscapeString(data.MostCommonCategory))
	}

	if data.DigestArticle != "" {
		body += fmt.Sprintf(`<h2>This week's story</h2>
<div style="white-space: pre-wrap;">%s</div>
`, html.EscapeString(data.DigestArticle))
	}

	body += "<h2>Everything you saved</h2>\n<ul>\n"
	for _, link := range data.Links {
		item := fmt.Sprintf(`<li><a href="%s">%s</a>`,
			html.EscapeString(link.URL), html.EscapeString(link.Title))
		if link.Category != "" {
			item += fmt.Sprintf(" <em>(%s)</em>", html.EscapeString(link.Category))
		}
		if link.ShortSummary != "" {
			item += fmt.Sprintf("<br>%s", html.EscapeString(link.ShortSummary))
		}
		item += "</li>\n"
		body += item
	}
	body += "</ul>\n</body>\n</html>\n"

	return body
}
