package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nwilson314/stash/enrich"
	"github.com/nwilson314/stash/models"
)

type fakeStore struct {
	links      map[string]*models.Link
	categories []*models.Category
	created    []*models.Link
	readIDs    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{links: make(map[string]*models.Link)}
}

func (f *fakeStore) CreateLink(link *models.Link) error {
	if link.ID == "" {
		link.ID = "generated-id"
	}
	f.created = append(f.created, link)
	f.links[link.ID] = link
	return nil
}

func (f *fakeStore) GetLink(id, userID string) (*models.Link, error) {
	link, ok := f.links[id]
	if !ok || link.UserID != userID {
		return nil, nil
	}
	return link, nil
}

func (f *fakeStore) ListLinks(userID string, limit, offset int) ([]*models.Link, error) {
	var out []*models.Link
	for _, link := range f.links {
		if link.UserID == userID {
			out = append(out, link)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteLink(id, userID string) error {
	if _, ok := f.links[id]; !ok {
		return errNoLink(id)
	}
	delete(f.links, id)
	return nil
}

func (f *fakeStore) MarkLinkRead(id, userID string) error {
	if _, ok := f.links[id]; !ok {
		return errNoLink(id)
	}
	f.readIDs = append(f.readIDs, id)
	return nil
}

func (f *fakeStore) ListCategories(userID string) ([]*models.Category, error) {
	return f.categories, nil
}

func (f *fakeStore) CountLinks() (int, error) {
	return len(f.links), nil
}

func errNoLink(id string) error { return fmt.Errorf("no link found with id: %s", id) }

type fakeFetcher struct {
	meta models.LinkMetadata
}

func (f *fakeFetcher) ProcessNewLink(ctx context.Context, rawURL string) models.LinkMetadata {
	return f.meta
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) SummarizeLink(ctx context.Context, linkID, userID string) (string, error) {
	return f.summary, f.err
}

type fakeQueue struct {
	jobs []enrich.Job
}

func (f *fakeQueue) Submit(job enrich.Job) bool {
	f.jobs = append(f.jobs, job)
	return true
}

type fakeNewsletter struct {
	result *models.BatchResult
	err    error
	calls  int
}

func (f *fakeNewsletter) ProcessBatch(ctx context.Context, batch int) (*models.BatchResult, error) {
	f.calls++
	return f.result, f.err
}

type testServer struct {
	server     *Server
	store      *fakeStore
	fetcher    *fakeFetcher
	summarizer *fakeSummarizer
	queue      *fakeQueue
	newsletter *fakeNewsletter
}

func newTestServer() *testServer {
	ts := &testServer{
		store:      newFakeStore(),
		fetcher:    &fakeFetcher{},
		summarizer: &fakeSummarizer{},
		queue:      &fakeQueue{},
		newsletter: &fakeNewsletter{result: &models.BatchResult{Batch: 0, TotalUsers: 1, Successful: 1}},
	}
	config := Config{Addr: ":0", CORSEnabled: true, AdminAPIKey: "secret"}
	ts.server = NewServer(config, ts.store, ts.fetcher, ts.summarizer, ts.queue, ts.newsletter, nil)
	return ts
}

func (ts *testServer) do(method, path, userID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	ts.server.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSaveLink(t *testing.T) {
	ts := newTestServer()
	ts.fetcher.meta = models.LinkMetadata{
		URL:         "https://example.com/article",
		FinalURL:    "https://example.com/article",
		ContentType: models.ContentTypeWebpage,
		Title:       "An Article",
		Content:     "body",
	}

	rec := ts.do(http.MethodPost, "/api/links", "user-1", `{"url": "example.com/article", "note": "later"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, expected 201, body %s", rec.Code, rec.Body.String())
	}

	var link models.Link
	if err := json.Unmarshal(rec.Body.Bytes(), &link); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if link.Title != "An Article" {
		t.Errorf("Title = %q", link.Title)
	}
	if link.Note != "later" {
		t.Errorf("Note = %q, expected later", link.Note)
	}
	if link.ProcessingStatus != models.StatusPending {
		t.Errorf("ProcessingStatus = %q, expected pending", link.ProcessingStatus)
	}

	if len(ts.queue.jobs) != 1 {
		t.Fatalf("queued %d jobs, expected 1", len(ts.queue.jobs))
	}
	if ts.queue.jobs[0].UserID != "user-1" {
		t.Errorf("job user = %q", ts.queue.jobs[0].UserID)
	}
}

func TestSaveLinkRedirectKeepsOriginalURL(t *testing.T) {
	ts := newTestServer()
	ts.fetcher.meta = models.LinkMetadata{
		URL:         "https://short.example/x",
		FinalURL:    "https://example.com/full-article",
		ContentType: models.ContentTypeWebpage,
		Title:       "Full Article",
		Content:     "body",
	}

	rec := ts.do(http.MethodPost, "/api/links", "user-1", `{"url": "short.example/x"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	link := ts.store.created[0]
	if link.URL != "https://example.com/full-article" {
		t.Errorf("URL = %q, expected final URL", link.URL)
	}
	if link.OriginalURL != "https://short.example/x" {
		t.Errorf("OriginalURL = %q, expected submitted URL", link.OriginalURL)
	}
}

func TestSaveLinkFetchFailure(t *testing.T) {
	ts := newTestServer()
	ts.fetcher.meta = models.LinkMetadata{
		URL:   "https://example.com/down",
		Error: "Request timed out",
	}

	rec := ts.do(http.MethodPost, "/api/links", "user-1", `{"url": "example.com/down"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, expected 400", rec.Code)
	}
	if len(ts.store.created) != 0 {
		t.Errorf("saved %d links despite failed fetch", len(ts.store.created))
	}
}

func TestSaveLinkPartialMetadataKept(t *testing.T) {
	// A blocked tweet fetch still carries URL-derived metadata. It gets
	// saved, but not queued: there is no content to enrich.
	ts := newTestServer()
	ts.fetcher.meta = models.LinkMetadata{
		URL:         "https://twitter.com/golang/status/1",
		ContentType: models.ContentTypeTwitter,
		Title:       "Tweet by @golang",
		Author:      "@golang",
		Error:       "HTTP error: 403",
	}

	rec := ts.do(http.MethodPost, "/api/links", "user-1", `{"url": "twitter.com/golang/status/1"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, expected 201", rec.Code)
	}
	link := ts.store.created[0]
	if link.ProcessingStatus != models.StatusError {
		t.Errorf("ProcessingStatus = %q, expected error", link.ProcessingStatus)
	}
	if link.ProcessingError != "HTTP error: 403" {
		t.Errorf("ProcessingError = %q", link.ProcessingError)
	}
	if len(ts.queue.jobs) != 0 {
		t.Errorf("queued %d jobs, expected none", len(ts.queue.jobs))
	}
}

func TestSaveLinkValidation(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(http.MethodPost, "/api/links", "user-1", `{"note": "no url"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing url: status = %d, expected 400", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/links", "", `{"url": "example.com"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing user: status = %d, expected 401", rec.Code)
	}
}

func TestGetLink(t *testing.T) {
	ts := newTestServer()
	ts.store.links["link-1"] = &models.Link{ID: "link-1", UserID: "user-1", URL: "https://example.com"}

	rec := ts.do(http.MethodGet, "/api/links/link-1", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/links/link-1", "user-2", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("other user's link: status = %d, expected 404", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/links/nope", "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing link: status = %d, expected 404", rec.Code)
	}
}

func TestDeleteLink(t *testing.T) {
	ts := newTestServer()
	ts.store.links["link-1"] = &models.Link{ID: "link-1", UserID: "user-1"}

	rec := ts.do(http.MethodDelete, "/api/links/link-1", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200", rec.Code)
	}

	rec = ts.do(http.MethodDelete, "/api/links/link-1", "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, expected 404", rec.Code)
	}
}

func TestMarkLinkRead(t *testing.T) {
	ts := newTestServer()
	ts.store.links["link-1"] = &models.Link{ID: "link-1", UserID: "user-1"}

	rec := ts.do(http.MethodPatch, "/api/links/link-1/read", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	if len(ts.store.readIDs) != 1 || ts.store.readIDs[0] != "link-1" {
		t.Errorf("readIDs = %v", ts.store.readIDs)
	}

	rec = ts.do(http.MethodPost, "/api/links/link-1/read", "user-1", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST read: status = %d, expected 405", rec.Code)
	}
}

func TestSummarize(t *testing.T) {
	ts := newTestServer()
	ts.summarizer.summary = "A long summary."

	rec := ts.do(http.MethodPost, "/api/links/link-1/summarize", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var resp models.SummarizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Summary != "A long summary." {
		t.Errorf("Summary = %q", resp.Summary)
	}
	if resp.LinkID != "link-1" {
		t.Errorf("LinkID = %q", resp.LinkID)
	}

	ts.summarizer.err = enrich.ErrLinkNotFound
	rec = ts.do(http.MethodPost, "/api/links/nope/summarize", "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing link: status = %d, expected 404", rec.Code)
	}
}

func TestListCategories(t *testing.T) {
	ts := newTestServer()
	ts.store.categories = []*models.Category{
		{ID: "c1", UserID: "user-1", Name: "Tech"},
	}

	rec := ts.do(http.MethodGet, "/api/categories", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var resp struct {
		Categories []*models.Category `json:"categories"`
		Count      int                `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Count != 1 || len(resp.Categories) != 1 {
		t.Errorf("count = %d, categories = %d", resp.Count, len(resp.Categories))
	}
}

func TestNewsletterTrigger(t *testing.T) {
	ts := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/admin/newsletters/trigger", strings.NewReader(`{"batch": 0}`))
	rec := httptest.NewRecorder()
	ts.server.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, expected 401", rec.Code)
	}
	if ts.newsletter.calls != 0 {
		t.Errorf("batch ran without a valid key")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/newsletters/trigger", strings.NewReader(`{"batch": 0}`))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	ts.server.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200, body %s", rec.Code, rec.Body.String())
	}

	var result models.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if result.Successful != 1 {
		t.Errorf("Successful = %d, expected 1", result.Successful)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
