// Package db provides postgres persistence for links, categories, and
// the user fields the pipeline needs.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nwilson314/stash/models"
)

// DB wraps the database connection and provides data access methods
type DB struct {
	conn *sql.DB
}

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// New creates a new database connection
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

const linkColumns = `id, user_id, url, original_url, title, short_summary, note, read,
	content_type, author, duration, thumbnail_url, raw_metadata,
	processing_status, processing_error, category_id,
	created_at, updated_at, processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanLink reads one links row into a model.
func scanLink(row rowScanner) (*models.Link, error) {
	var (
		link            models.Link
		originalURL     sql.NullString
		title           sql.NullString
		shortSummary    sql.NullString
		note            sql.NullString
		author          sql.NullString
		duration        sql.NullInt64
		thumbnailURL    sql.NullString
		rawMetadata     sql.NullString
		processingError sql.NullString
		categoryID      sql.NullString
		processedAt     sql.NullTime
	)

	err := row.Scan(
		&link.ID, &link.UserID, &link.URL, &originalURL, &title, &shortSummary, &note, &link.Read,
		&link.ContentType, &author, &duration, &thumbnailURL, &rawMetadata,
		&link.ProcessingStatus, &processingError, &categoryID,
		&link.CreatedAt, &link.UpdatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	link.OriginalURL = originalURL.String
	link.Title = title.String
	link.ShortSummary = shortSummary.String
	link.Note = note.String
	link.Author = author.String
	link.Duration = int(duration.Int64)
	link.ThumbnailURL = thumbnailURL.String
	link.RawMetadata = rawMetadata.String
	link.ProcessingError = processingError.String
	link.CategoryID = categoryID.String
	if processedAt.Valid {
		link.ProcessedAt = &processedAt.Time
	}

	return &link, nil
}

// nullable converts empty strings to SQL NULL on the way in.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateLink inserts a new link. ID and timestamps are assigned here
// when unset.
func (db *DB) CreateLink(link *models.Link) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now

	query := `
		INSERT INTO links (id, user_id, url, original_url, title, short_summary, note, read,
			content_type, author, duration, thumbnail_url, raw_metadata,
			processing_status, processing_error, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := db.conn.Exec(
		query,
		link.ID, link.UserID, link.URL, nullable(link.OriginalURL),
		nullable(link.Title), nullable(link.ShortSummary), nullable(link.Note), link.Read,
		string(link.ContentType), nullable(link.Author),
		sql.NullInt64{Int64: int64(link.Duration), Valid: link.Duration > 0},
		nullable(link.ThumbnailURL), nullable(link.RawMetadata),
		string(link.ProcessingStatus), nullable(link.ProcessingError),
		nullable(link.CategoryID), link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save link: %w", err)
	}

	return nil
}

// GetLink retrieves a link by id, scoped to its owner.
func (db *DB) GetLink(id, userID string) (*models.Link, error) {
	query := "SELECT " + linkColumns + " FROM links WHERE id = $1 AND user_id = $2"

	link, err := scanLink(db.conn.QueryRow(query, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query link: %w", err)
	}

	return link, nil
}

// ListLinks returns a user's links, newest first.
func (db *DB) ListLinks(userID string, limit, offset int) ([]*models.Link, error) {
	query := "SELECT " + linkColumns + ` FROM links
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := db.conn.Query(query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var results []*models.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// ListLinksInWindow returns a user's links created in [start, end),
// newest first. Used by the newsletter aggregator.
func (db *DB) ListLinksInWindow(userID string, start, end time.Time) ([]*models.Link, error) {
	query := "SELECT " + linkColumns + ` FROM links
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC`

	rows, err := db.conn.Query(query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var results []*models.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// DeleteLink deletes a link by id, scoped to its owner.
func (db *DB) DeleteLink(id, userID string) error {
	result, err := db.conn.Exec("DELETE FROM links WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("no link found with id: %s", id)
	}

	return nil
}

// MarkLinkRead flags a link as read.
func (db *DB) MarkLinkRead(id, userID string) error {
	result, err := db.conn.Exec(
		"UPDATE links SET read = TRUE, updated_at = NOW() WHERE id = $1 AND user_id = $2",
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark link read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("no link found with id: %s", id)
	}

	return nil
}

// SetLinkStatus updates a link's processing status and error message.
// Enrichment commits this independently of the final update so the
// intermediate state is externally visible.
func (db *DB) SetLinkStatus(id string, status models.ProcessingStatus, processingError string) error {
	_, err := db.conn.Exec(
		"UPDATE links SET processing_status = $1, processing_error = $2, updated_at = NOW() WHERE id = $3",
		string(status), nullable(processingError), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set link status: %w", err)
	}
	return nil
}

// CompleteLinkEnrichment records the outcome of a successful
// enrichment run.
func (db *DB) CompleteLinkEnrichment(id, categoryID, shortSummary string, processedAt time.Time) error {
	_, err := db.conn.Exec(
		`UPDATE links SET category_id = $1, short_summary = $2,
			processing_status = $3, processing_error = NULL,
			processed_at = $4, updated_at = NOW()
		WHERE id = $5`,
		nullable(categoryID), nullable(shortSummary),
		string(models.StatusComplete), processedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete enrichment: %w", err)
	}
	return nil
}

// ListCategories returns all of a user's categories, name order.
func (db *DB) ListCategories(userID string) ([]*models.Category, error) {
	rows, err := db.conn.Query(
		"SELECT id, user_id, name, created_at, updated_at FROM categories WHERE user_id = $1 ORDER BY name",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var results []*models.Category
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.UserID, &cat.Name, &cat.CreatedAt, &cat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, &cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// ResolveCategory finds an existing category by exact (user, name)
// match or creates one, returning its id either way. Creation is an
// upsert on the unique (user_id, name) index, so two concurrent
// resolvers proposing the same new name converge on a single row.
func (db *DB) ResolveCategory(userID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("category name is empty")
	}

	var id string
	err := db.conn.QueryRow(
		"SELECT id FROM categories WHERE user_id = $1 AND name = $2",
		userID, name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to query category: %w", err)
	}

	newID := uuid.New().String()
	_, err = db.conn.Exec(
		`INSERT INTO categories (id, user_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO NOTHING`,
		newID, userID, name,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create category: %w", err)
	}

	// Reload rather than trusting newID: a concurrent insert may have
	// won the conflict.
	err = db.conn.QueryRow(
		"SELECT id FROM categories WHERE user_id = $1 AND name = $2",
		userID, name,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to reload category: %w", err)
	}

	return id, nil
}

// CreateUser inserts a user row. Registration flows live elsewhere;
// this exists for seeding and the fields the pipeline owns.
func (db *DB) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.Exec(
		`INSERT INTO users (id, email, username, newsletter_enabled, allow_ai_categorization, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, nullable(user.Username),
		user.NewsletterEnabled, user.AllowAICategorization, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (db *DB) GetUser(id string) (*models.User, error) {
	var (
		user     models.User
		username sql.NullString
	)
	err := db.conn.QueryRow(
		`SELECT id, email, username, newsletter_enabled, allow_ai_categorization, created_at
		FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &username, &user.NewsletterEnabled, &user.AllowAICategorization, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.Username = username.String
	return &user, nil
}

// ListNewsletterUsers pages through users with the newsletter enabled.
func (db *DB) ListNewsletterUsers(limit, offset int) ([]*models.User, error) {
	rows, err := db.conn.Query(
		`SELECT id, email, username, newsletter_enabled, allow_ai_categorization, created_at
		FROM users WHERE newsletter_enabled = TRUE
		ORDER BY created_at
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var results []*models.User
	for rows.Next() {
		var (
			user     models.User
			username sql.NullString
		)
		if err := rows.Scan(&user.ID, &user.Email, &username, &user.NewsletterEnabled, &user.AllowAICategorization, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		user.Username = username.String
		results = append(results, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// CountNewsletterUsers returns how many users have the newsletter
// enabled.
func (db *DB) CountNewsletterUsers() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE newsletter_enabled = TRUE").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CountLinks returns the total link count, for the health endpoint.
func (db *DB) CountLinks() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM links").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}
