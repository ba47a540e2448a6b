// Package api exposes the HTTP surface: saving and browsing links,
// on-demand summaries, and the admin newsletter trigger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nwilson314/stash/enrich"
	"github.com/nwilson314/stash/metrics"
	"github.com/nwilson314/stash/models"
)

// LinkStore is the persistence surface the handlers need.
type LinkStore interface {
	CreateLink(link *models.Link) error
	GetLink(id, userID string) (*models.Link, error)
	ListLinks(userID string, limit, offset int) ([]*models.Link, error)
	DeleteLink(id, userID string) error
	MarkLinkRead(id, userID string) error
	ListCategories(userID string) ([]*models.Category, error)
	CountLinks() (int, error)
}

// Fetcher runs the quick metadata phase at save time.
type Fetcher interface {
	ProcessNewLink(ctx context.Context, rawURL string) models.LinkMetadata
}

// Summarizer produces on-demand long summaries.
type Summarizer interface {
	SummarizeLink(ctx context.Context, linkID, userID string) (string, error)
}

// Enqueuer hands saved links to the enrichment workers.
type Enqueuer interface {
	Submit(job enrich.Job) bool
}

// NewsletterRunner sends one batch of newsletters.
type NewsletterRunner interface {
	ProcessBatch(ctx context.Context, batch int) (*models.BatchResult, error)
}

// Server represents the API server
type Server struct {
	store      LinkStore
	fetcher    Fetcher
	summarizer Summarizer
	queue      Enqueuer
	newsletter NewsletterRunner

	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
	adminAPIKey string
	logger      *slog.Logger
}

// Config contains server configuration
type Config struct {
	Addr        string
	CORSEnabled bool
	// AdminAPIKey guards the admin endpoints. Empty disables them.
	AdminAPIKey string
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		CORSEnabled: true,
	}
}

// NewServer creates a new API server
func NewServer(config Config, store LinkStore, fetcher Fetcher, summarizer Summarizer,
	queue Enqueuer, newsletter NewsletterRunner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:       store,
		fetcher:     fetcher,
		summarizer:  summarizer,
		queue:       queue,
		newsletter:  newsletter,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
		adminAPIKey: config.AdminAPIKey,
		logger:      logger,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // summarize re-fetches and calls the model
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/api/links", s.handleLinks)
	s.mux.HandleFunc("/api/links/", s.handleLink) // Handles /api/links/{id} and subresources
	s.mux.HandleFunc("/api/categories", s.handleCategories)
	s.mux.HandleFunc("/api/admin/newsletters/trigger", s.handleNewsletterTrigger)
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-API-Key")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Logging (skip health and metrics to reduce noise)
		start := time.Now()
		quiet := r.URL.Path == "/health" || r.URL.Path == "/metrics"

		next.ServeHTTP(w, r)

		if !quiet {
			s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}

// userID extracts the caller's identity. Authentication proper lives at
// the gateway; this service trusts the forwarded header.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		respondError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return "", false
	}
	return id, true
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.store.CountLinks()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"links":  count,
		"time":   time.Now(),
	})
}

// handleLinks dispatches the collection routes: save and list.
func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSaveLink(w, r)
	case http.MethodGet:
		s.handleListLinks(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSaveLink runs the quick metadata phase inline, persists the
// link, and queues the slow enrichment. The response never waits on
// the model.
func (s *Server) handleSaveLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req models.SaveLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	meta := s.fetcher.ProcessNewLink(ctx, req.URL)

	// A failed fetch that still yielded URL-derived metadata (tweets,
	// mostly) is worth keeping. A failed fetch with nothing is not.
	if meta.Error != "" && meta.Title == "" && meta.Author == "" && meta.Content == "" {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to fetch url: %s", meta.Error))
		return
	}

	rawMeta, _ := json.Marshal(meta)

	finalURL := meta.FinalURL
	if finalURL == "" {
		finalURL = meta.URL
	}
	link := &models.Link{
		UserID:           userID,
		URL:              finalURL,
		Title:            meta.Title,
		Note:             req.Note,
		ContentType:      meta.ContentType,
		Author:           meta.Author,
		Duration:         meta.DurationSeconds,
		ThumbnailURL:     meta.ThumbnailURL,
		RawMetadata:      string(rawMeta),
		ProcessingStatus: models.StatusPending,
	}
	if finalURL != meta.URL {
		link.OriginalURL = meta.URL
	}

	if meta.Error != "" {
		// Partial metadata with no page content. Enrichment would have
		// nothing to work with, so record the fetch problem and stop here.
		link.ProcessingStatus = models.StatusError
		link.ProcessingError = meta.Error
	}

	if err := s.store.CreateLink(link); err != nil {
		s.logger.Error("failed to save link", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save link")
		return
	}
	metrics.LinksSaved.Inc()

	if link.ProcessingStatus == models.StatusPending {
		s.queue.Submit(enrich.Job{LinkID: link.ID, UserID: userID})
	}

	respondJSON(w, http.StatusCreated, link)
}

// handleListLinks lists a user's links with pagination.
func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	limit := 20
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		fmt.Sscanf(offsetStr, "%d", &offset)
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	links, err := s.store.ListLinks(userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if links == nil {
		links = []*models.Link{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"links":  links,
		"limit":  limit,
		"offset": offset,
	})
}

// handleLink dispatches routes under /api/links/{id}.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/links/")
	if path == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if strings.HasSuffix(path, "/read") {
		id := strings.TrimSuffix(path, "/read")
		if r.Method == http.MethodPatch {
			s.handleMarkRead(w, r, id)
		} else {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/summarize") {
		id := strings.TrimSuffix(path, "/summarize")
		if r.Method == http.MethodPost {
			s.handleSummarize(w, r, id)
		} else {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetLink(w, r, path)
	case http.MethodDelete:
		s.handleDeleteLink(w, r, path)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetLink retrieves a link by ID
func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	link, err := s.store.GetLink(id, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if link == nil {
		respondError(w, http.StatusNotFound, "link not found")
		return
	}

	respondJSON(w, http.StatusOK, link)
}

// handleDeleteLink deletes a link by ID
func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteLink(id, userID); err != nil {
		if strings.Contains(err.Error(), "no link found") {
			respondError(w, http.StatusNotFound, "link not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete link")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "link deleted successfully",
	})
}

// handleMarkRead flags a link as read.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	if err := s.store.MarkLinkRead(id, userID); err != nil {
		if strings.Contains(err.Error(), "no link found") {
			respondError(w, http.StatusNotFound, "link not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to mark link read")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "link marked read",
	})
}

// handleSummarize generates a long summary on demand. The summary in
// the response is always displayable text; generation problems degrade
// to fallback sentences rather than error statuses.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()

	summary, err := s.summarizer.SummarizeLink(ctx, id, userID)
	if err != nil {
		if errors.Is(err, enrich.ErrLinkNotFound) {
			respondError(w, http.StatusNotFound, "link not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to summarize link")
		return
	}

	respondJSON(w, http.StatusOK, models.SummarizeResponse{
		LinkID:  id,
		Summary: summary,
	})
}

// handleCategories lists a user's categories.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	categories, err := s.store.ListCategories(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if categories == nil {
		categories = []*models.Category{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// NewsletterTriggerRequest selects which batch of users to process.
type NewsletterTriggerRequest struct {
	Batch int `json:"batch"`
}

// handleNewsletterTrigger kicks off one newsletter batch. Guarded by
// the admin API key.
func (s *Server) handleNewsletterTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.adminAPIKey == "" || r.Header.Get("X-API-Key") != s.adminAPIKey {
		respondError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req NewsletterTriggerRequest
	if r.Body != nil {
		// Empty body means batch zero.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Batch < 0 {
		respondError(w, http.StatusBadRequest, "batch must be non-negative")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	result, err := s.newsletter.ProcessBatch(ctx, req.Batch)
	if err != nil {
		s.logger.Error("newsletter batch failed", "batch", req.Batch, "error", err)
		respondError(w, http.StatusInternalServerError, "newsletter batch failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
