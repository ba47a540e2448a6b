package newsletter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nwilson314/stash/models"
)

type fakeStore struct {
	users      map[string]*models.User
	links      []*models.Link
	categories []*models.Category
}

func (f *fakeStore) GetUser(id string) (*models.User, error) {
	return f.users[id], nil
}

func (f *fakeStore) ListNewsletterUsers(limit, offset int) ([]*models.User, error) {
	var enabled []*models.User
	for _, u := range f.users {
		if u.NewsletterEnabled {
			enabled = append(enabled, u)
		}
	}
	if offset >= len(enabled) {
		return nil, nil
	}
	end := offset + limit
	if end > len(enabled) {
		end = len(enabled)
	}
	return enabled[offset:end], nil
}

func (f *fakeStore) CountNewsletterUsers() (int, error) {
	count := 0
	for _, u := range f.users {
		if u.NewsletterEnabled {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ListLinksInWindow(userID string, start, end time.Time) ([]*models.Link, error) {
	var out []*models.Link
	for _, l := range f.links {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCategories(userID string) ([]*models.Category, error) {
	return f.categories, nil
}

type fakeDigest struct {
	article string
	calls   int
}

func (f *fakeDigest) GenerateWeeklyDigest(ctx context.Context, data *models.NewsletterData) string {
	f.calls++
	return f.article
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (f *fakeMailer) Send(to, subject, htmlBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, htmlBody})
	return nil
}

func testStore() *fakeStore {
	return &fakeStore{
		users: map[string]*models.User{
			"user-1": {
				ID:                    "user-1",
				Email:                 "reader@example.com",
				NewsletterEnabled:     true,
				AllowAICategorization: true,
			},
		},
		links: []*models.Link{
			{ID: "l1", UserID: "user-1", URL: "https://example.com/1", Title: "First", CategoryID: "c1", ShortSummary: "About Go.", CreatedAt: time.Now()},
			{ID: "l2", UserID: "user-1", URL: "https://example.com/2", Title: "Second", CategoryID: "c1", CreatedAt: time.Now()},
			{ID: "l3", UserID: "user-1", URL: "https://example.com/3", CreatedAt: time.Now()},
		},
		categories: []*models.Category{
			{ID: "c1", UserID: "user-1", Name: "Tech"},
		},
	}
}

func newTestService(store *fakeStore, digest *fakeDigest, mailer *fakeMailer) *Service {
	return New(DefaultConfig(), store, digest, mailer, nil)
}

func TestGenerateUserNewsletter(t *testing.T) {
	store := testStore()
	digest := &fakeDigest{article: "Your week in links."}
	service := newTestService(store, digest, &fakeMailer{})

	data, err := service.GenerateUserNewsletter(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data == nil {
		t.Fatal("expected digest data")
	}

	if len(data.Links) != 3 {
		t.Errorf("links = %d, expected 3", len(data.Links))
	}
	if data.Links[0].Category != "Tech" {
		t.Errorf("first link category = %q, expected Tech", data.Links[0].Category)
	}
	// Untitled links fall back to their URL.
	if data.Links[2].Title != "https://example.com/3" {
		t.Errorf("untitled link title = %q, expected URL fallback", data.Links[2].Title)
	}
	if data.MostCommonCategory != "Tech" {
		t.Errorf("MostCommonCategory = %q", data.MostCommonCategory)
	}
	if data.TotalCategories != 1 {
		t.Errorf("TotalCategories = %d, expected 1", data.TotalCategories)
	}
	if data.WeeklySummary != "You saved 3 links this week across 1 categories." {
		t.Errorf("WeeklySummary = %q", data.WeeklySummary)
	}
	if data.DigestArticle != "Your week in links." {
		t.Errorf("DigestArticle = %q", data.DigestArticle)
	}
	if digest.calls != 1 {
		t.Errorf("digest called %d times, expected 1", digest.calls)
	}
}

func TestGenerateUserNewsletterSkips(t *testing.T) {
	t.Run("newsletter disabled", func(t *testing.T) {
		store := testStore()
		store.users["user-1"].NewsletterEnabled = false
		service := newTestService(store, &fakeDigest{}, &fakeMailer{})

		data, err := service.GenerateUserNewsletter(context.Background(), "user-1")
		if err != nil || data != nil {
			t.Errorf("got (%v, %v), expected (nil, nil)", data, err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		service := newTestService(testStore(), &fakeDigest{}, &fakeMailer{})
		data, err := service.GenerateUserNewsletter(context.Background(), "nope")
		if err != nil || data != nil {
			t.Errorf("got (%v, %v), expected (nil, nil)", data, err)
		}
	})

	t.Run("empty week", func(t *testing.T) {
		store := testStore()
		store.links = nil
		service := newTestService(store, &fakeDigest{}, &fakeMailer{})

		data, err := service.GenerateUserNewsletter(context.Background(), "user-1")
		if err != nil || data != nil {
			t.Errorf("got (%v, %v), expected (nil, nil)", data, err)
		}
	})

	t.Run("categorization opt-out skips article", func(t *testing.T) {
		store := testStore()
		store.users["user-1"].AllowAICategorization = false
		digest := &fakeDigest{article: "should not appear"}
		service := newTestService(store, digest, &fakeMailer{})

		data, err := service.GenerateUserNewsletter(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if data == nil {
			t.Fatal("expected digest data")
		}
		if data.DigestArticle != "" {
			t.Errorf("DigestArticle = %q, expected empty", data.DigestArticle)
		}
		if digest.calls != 0 {
			t.Errorf("digest called %d times for opted-out user", digest.calls)
		}
	})
}

func TestGenerateAndSend(t *testing.T) {
	store := testStore()
	mailer := &fakeMailer{}
	service := newTestService(store, &fakeDigest{article: "article text"}, mailer)

	if err := service.GenerateAndSend(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, expected 1", len(mailer.sent))
	}
	mail := mailer.sent[0]
	if mail.to != "reader@example.com" {
		t.Errorf("to = %q", mail.to)
	}
	if mail.subject != DefaultConfig().Subject {
		t.Errorf("subject = %q", mail.subject)
	}
	if !strings.Contains(mail.body, "article text") {
		t.Errorf("body missing digest article")
	}
	if !strings.Contains(mail.body, "https://example.com/1") {
		t.Errorf("body missing link URL")
	}
}

func TestGenerateAndSendNothingToSend(t *testing.T) {
	store := testStore()
	store.links = nil
	mailer := &fakeMailer{}
	service := newTestService(store, &fakeDigest{}, mailer)

	if err := service.GenerateAndSend(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("sent %d mails for an empty week", len(mailer.sent))
	}
}

func TestProcessBatch(t *testing.T) {
	store := testStore()
	store.users["user-2"] = &models.User{
		ID:                "user-2",
		Email:             "other@example.com",
		NewsletterEnabled: true,
	}
	store.links = append(store.links,
		&models.Link{ID: "l4", UserID: "user-2", URL: "https://example.com/4", Title: "Fourth", CreatedAt: time.Now()})

	t.Run("all succeed", func(t *testing.T) {
		mailer := &fakeMailer{}
		service := newTestService(store, &fakeDigest{article: "a"}, mailer)

		result, err := service.ProcessBatch(context.Background(), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TotalUsers != 2 {
			t.Errorf("TotalUsers = %d, expected 2", result.TotalUsers)
		}
		if result.Successful != 2 || result.Failed != 0 {
			t.Errorf("successful/failed = %d/%d, expected 2/0", result.Successful, result.Failed)
		}
	})

	t.Run("delivery failures counted", func(t *testing.T) {
		mailer := &fakeMailer{err: errors.New("smtp down")}
		service := newTestService(store, &fakeDigest{article: "a"}, mailer)

		result, err := service.ProcessBatch(context.Background(), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Failed != 2 || result.Successful != 0 {
			t.Errorf("successful/failed = %d/%d, expected 0/2", result.Successful, result.Failed)
		}
	})
}

func TestRenderHTMLEscapes(t *testing.T) {
	data := &models.NewsletterData{
		User:          models.User{Email: "r@example.com"},
		WeeklySummary: "You saved 1 links this week across 1 categories.",
		Links: []models.NewsletterLink{
			{Title: `<script>alert("x")</script>`, URL: "https://example.com/?a=1&b=2", Category: "Tech"},
		},
	}

	body := renderHTML(data)

	if strings.Contains(body, `<script>alert`) {
		t.Error("link title not escaped")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("expected escaped title in body")
	}
	if !strings.Contains(body, "Tech") {
		t.Error("category missing from body")
	}
}
