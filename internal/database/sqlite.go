package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"mindcare-go/internal/database/migrations"
	"mindcare-go/internal/offline"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrClosed is returned by operations on a closed SQLiteDatabase.
var ErrClosed = errors.New("database is closed")

// SQLiteDatabase implements offline.Database using SQLite.
// The connection is opened and migrated on first use.
type SQLiteDatabase struct {
	path string

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSQLiteDatabase returns a database backed by the file at path, or an
// in-memory database for ":memory:". Nothing is opened until first use.
func NewSQLiteDatabase(path string) *SQLiteDatabase {
	return &SQLiteDatabase{path: path}
}

// Open opens and migrates the database once. Concurrent and repeated calls
// return the same handle. A failed open is retried by the next call.
func (s *SQLiteDatabase) Open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.db != nil {
		return s.db, nil
	}

	db, err := OpenConnection(ctx, s.path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	s.db = db
	return db, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// The pool is limited to one connection so that ":memory:" databases are
// shared and writers never contend for the file lock.
func OpenConnection(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations(ctx context.Context) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	return migrations.CheckDBMigrationStatus(db)
}

// Close closes the database connection. Later operations fail with ErrClosed.
func (s *SQLiteDatabase) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func fromMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func nullMilli(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Screening submissions

const submissionColumns = `id, type, answers, score, interpretation, user_id, status, timestamp, server_response, synced_at, metadata`

func submissionArgs(sub *offline.ScreeningSubmission) ([]any, error) {
	answers, err := marshalJSON(sub.Answers)
	if err != nil {
		return nil, fmt.Errorf("encoding answers: %w", err)
	}
	metadata, err := marshalJSON(sub.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	var score sql.NullInt64
	if sub.Score != nil {
		score = sql.NullInt64{Int64: int64(*sub.Score), Valid: true}
	}
	var syncedAt sql.NullInt64
	if sub.SyncedAt != nil {
		syncedAt = sql.NullInt64{Int64: *sub.SyncedAt, Valid: true}
	}

	return []any{
		sub.ID, sub.Type, answers, score, sub.Interpretation, sub.UserID,
		string(sub.Status), sub.Timestamp, nullString(string(sub.ServerResponse)), syncedAt, metadata,
	}, nil
}

func scanSubmission(row scanner) (*offline.ScreeningSubmission, error) {
	var (
		sub            offline.ScreeningSubmission
		status         string
		answers        string
		metadata       string
		score          sql.NullInt64
		serverResponse sql.NullString
		syncedAt       sql.NullInt64
	)
	err := row.Scan(&sub.ID, &sub.Type, &answers, &score, &sub.Interpretation, &sub.UserID,
		&status, &sub.Timestamp, &serverResponse, &syncedAt, &metadata)
	if err != nil {
		return nil, err
	}

	sub.Status = offline.SubmissionStatus(status)
	if err := json.Unmarshal([]byte(answers), &sub.Answers); err != nil {
		return nil, fmt.Errorf("decoding answers of %s: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &sub.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata of %s: %w", sub.ID, err)
	}
	if score.Valid {
		v := int(score.Int64)
		sub.Score = &v
	}
	if serverResponse.Valid {
		sub.ServerResponse = json.RawMessage(serverResponse.String)
	}
	if syncedAt.Valid {
		v := syncedAt.Int64
		sub.SyncedAt = &v
	}
	return &sub, nil
}

func (s *SQLiteDatabase) InsertSubmission(ctx context.Context, sub *offline.ScreeningSubmission) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	args, err := submissionArgs(sub)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO screenings (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("inserting screening %s: %w", sub.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateSubmission(ctx context.Context, sub *offline.ScreeningSubmission) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	args, err := submissionArgs(sub)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO screenings (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			answers = excluded.answers,
			score = excluded.score,
			interpretation = excluded.interpretation,
			user_id = excluded.user_id,
			status = excluded.status,
			timestamp = excluded.timestamp,
			server_response = excluded.server_response,
			synced_at = excluded.synced_at,
			metadata = excluded.metadata`, args...)
	if err != nil {
		return fmt.Errorf("updating screening %s: %w", sub.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) FindSubmission(ctx context.Context, id string) (*offline.ScreeningSubmission, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM screenings WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding screening %s: %w", id, err)
	}
	return sub, nil
}

func (s *SQLiteDatabase) querySubmissions(ctx context.Context, query string, args ...any) ([]*offline.ScreeningSubmission, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*offline.ScreeningSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindSubmissionsByStatus(ctx context.Context, status offline.SubmissionStatus) ([]*offline.ScreeningSubmission, error) {
	subs, err := s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM screenings WHERE status = ? ORDER BY timestamp ASC, id ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("finding screenings by status: %w", err)
	}
	return subs, nil
}

func (s *SQLiteDatabase) FindSubmissionsByUser(ctx context.Context, userID string) ([]*offline.ScreeningSubmission, error) {
	var (
		subs []*offline.ScreeningSubmission
		err  error
	)
	if userID == "" {
		subs, err = s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM screenings ORDER BY timestamp ASC, id ASC`)
	} else {
		subs, err = s.querySubmissions(ctx,
			`SELECT `+submissionColumns+` FROM screenings WHERE user_id = ? ORDER BY timestamp ASC, id ASC`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("finding screenings by user: %w", err)
	}
	return subs, nil
}

func (s *SQLiteDatabase) DeleteSubmissionsByStatus(ctx context.Context, status offline.SubmissionStatus) (int64, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM screenings WHERE status = ?`, string(status))
	if err != nil {
		return 0, fmt.Errorf("deleting screenings by status: %w", err)
	}
	return res.RowsAffected()
}

// Cached resources

const resourceColumns = `id, category, type, payload, cached, cached_at, last_accessed`

func scanResource(row scanner) (*offline.CachedResource, error) {
	var (
		r            offline.CachedResource
		typ          string
		payload      string
		cachedAt     int64
		lastAccessed int64
	)
	if err := row.Scan(&r.ID, &r.Category, &typ, &payload, &r.Cached, &cachedAt, &lastAccessed); err != nil {
		return nil, err
	}
	r.Type = offline.ResourceType(typ)
	r.Payload = json.RawMessage(payload)
	r.CachedAt = fromMilli(cachedAt)
	r.LastAccessed = fromMilli(lastAccessed)
	return &r, nil
}

func (s *SQLiteDatabase) PutResource(ctx context.Context, r *offline.CachedResource) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO resources (`+resourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			type = excluded.type,
			payload = excluded.payload,
			cached = excluded.cached,
			cached_at = excluded.cached_at,
			last_accessed = excluded.last_accessed`,
		r.ID, r.Category, string(r.Type), string(r.Payload), r.Cached,
		r.CachedAt.UnixMilli(), r.LastAccessed.UnixMilli())
	if err != nil {
		return fmt.Errorf("caching resource %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) FindResource(ctx context.Context, id string) (*offline.CachedResource, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	r, err := scanResource(db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding resource %s: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteDatabase) FindResources(ctx context.Context, category string) ([]*offline.CachedResource, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + resourceColumns + ` FROM resources WHERE cached = 1`
	var args []any
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY cached_at DESC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding resources: %w", err)
	}
	defer rows.Close()

	var result []*offline.CachedResource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding resources: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) TouchResource(ctx context.Context, id string, at time.Time) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `UPDATE resources SET last_accessed = ? WHERE id = ?`, at.UnixMilli(), id); err != nil {
		return fmt.Errorf("touching resource %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteResourcesAccessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM resources WHERE last_accessed < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("deleting old resources: %w", err)
	}
	return res.RowsAffected()
}

// Helplines

const helplineColumns = `id, name, phone, country, state, category, priority, available, languages, description, website, services, is_govt, specialization, is_online, source, cached_at`

func scanHelpline(row scanner) (*offline.HelplineEntry, error) {
	var (
		h         offline.HelplineEntry
		category  string
		languages string
		services  string
		cachedAt  int64
	)
	err := row.Scan(&h.ID, &h.Name, &h.Phone, &h.Country, &h.State, &category, &h.Priority,
		&h.Available, &languages, &h.Description, &h.Website, &services, &h.IsGovt,
		&h.Specialization, &h.IsOnline, &h.Source, &cachedAt)
	if err != nil {
		return nil, err
	}
	h.Category = offline.HelplineCategory(category)
	if err := json.Unmarshal([]byte(languages), &h.Languages); err != nil {
		return nil, fmt.Errorf("decoding languages of %s: %w", h.ID, err)
	}
	if err := json.Unmarshal([]byte(services), &h.Services); err != nil {
		return nil, fmt.Errorf("decoding services of %s: %w", h.ID, err)
	}
	h.CachedAt = fromMilli(cachedAt)
	return &h, nil
}

// ReplaceHelplines clears the directory and inserts entries atomically.
func (s *SQLiteDatabase) ReplaceHelplines(ctx context.Context, entries []*offline.HelplineEntry) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM helplines`); err != nil {
		return fmt.Errorf("clearing helplines: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO helplines (`+helplineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing helpline insert: %w", err)
	}
	defer stmt.Close()

	for _, h := range entries {
		languages, err := marshalJSON(nonNil(h.Languages))
		if err != nil {
			return fmt.Errorf("encoding languages of %s: %w", h.ID, err)
		}
		services, err := marshalJSON(nonNil(h.Services))
		if err != nil {
			return fmt.Errorf("encoding services of %s: %w", h.ID, err)
		}
		source := h.Source
		if source == "" {
			source = offline.SourceBundled
		}
		_, err = stmt.ExecContext(ctx, h.ID, h.Name, h.Phone, h.Country, h.State, string(h.Category),
			h.Priority, h.Available, languages, h.Description, h.Website, services, h.IsGovt,
			h.Specialization, h.IsOnline, source, h.CachedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("inserting helpline %s: %w", h.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func (s *SQLiteDatabase) queryHelplines(ctx context.Context, query string, args ...any) ([]*offline.HelplineEntry, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*offline.HelplineEntry
	for rows.Next() {
		h, err := scanHelpline(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindHelplinesByCountry(ctx context.Context, country string) ([]*offline.HelplineEntry, error) {
	entries, err := s.queryHelplines(ctx,
		`SELECT `+helplineColumns+` FROM helplines WHERE country = ? ORDER BY priority ASC, id ASC`, country)
	if err != nil {
		return nil, fmt.Errorf("finding helplines by country: %w", err)
	}
	return entries, nil
}

func (s *SQLiteDatabase) FindHelplinesByCategory(ctx context.Context, category offline.HelplineCategory) ([]*offline.HelplineEntry, error) {
	entries, err := s.queryHelplines(ctx,
		`SELECT `+helplineColumns+` FROM helplines WHERE category = ? ORDER BY priority ASC, id ASC`, string(category))
	if err != nil {
		return nil, fmt.Errorf("finding helplines by category: %w", err)
	}
	return entries, nil
}

func (s *SQLiteDatabase) FindAllHelplines(ctx context.Context) ([]*offline.HelplineEntry, error) {
	entries, err := s.queryHelplines(ctx,
		`SELECT `+helplineColumns+` FROM helplines ORDER BY priority ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("finding helplines: %w", err)
	}
	return entries, nil
}

// Sync queue

const queueColumns = `id, action, endpoint, payload, priority, timestamp, retries, max_retries, last_retry, last_error, status, ref`

func scanQueueItem(row scanner) (*offline.SyncQueueItem, error) {
	var (
		item       offline.SyncQueueItem
		payload    sql.NullString
		enqueuedAt int64
		lastRetry  sql.NullInt64
		status     string
		ref        sql.NullString
	)
	err := row.Scan(&item.ID, &item.Action, &item.Endpoint, &payload, &item.Priority, &enqueuedAt,
		&item.Retries, &item.MaxRetries, &lastRetry, &item.LastError, &status, &ref)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		item.Payload = json.RawMessage(payload.String)
	}
	item.EnqueuedAt = fromMilli(enqueuedAt)
	if lastRetry.Valid {
		t := fromMilli(lastRetry.Int64)
		item.LastRetry = &t
	}
	item.Status = offline.QueueStatus(status)
	item.Ref = ref.String
	return &item, nil
}

func (s *SQLiteDatabase) InsertQueueItem(ctx context.Context, item *offline.SyncQueueItem) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	status := item.Status
	if status == "" {
		status = offline.QueueQueued
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO sync_queue (action, endpoint, payload, priority, timestamp, retries, max_retries, last_retry, last_error, status, ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Action, item.Endpoint, nullString(string(item.Payload)), item.Priority, item.EnqueuedAt.UnixMilli(),
		item.Retries, item.MaxRetries, nullMilli(item.LastRetry), item.LastError, string(status), nullString(item.Ref))
	if err != nil {
		return fmt.Errorf("inserting queue item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading queue item id: %w", err)
	}
	item.ID = id
	item.Status = status
	return nil
}

func (s *SQLiteDatabase) findQueueItem(ctx context.Context, where string, arg any) (*offline.SyncQueueItem, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	item, err := scanQueueItem(db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM sync_queue WHERE `+where+` ORDER BY id ASC LIMIT 1`, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return item, nil
}

func (s *SQLiteDatabase) FindQueueItem(ctx context.Context, id int64) (*offline.SyncQueueItem, error) {
	item, err := s.findQueueItem(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("finding queue item %d: %w", id, err)
	}
	return item, nil
}

func (s *SQLiteDatabase) FindQueueItemByRef(ctx context.Context, ref string) (*offline.SyncQueueItem, error) {
	item, err := s.findQueueItem(ctx, "ref = ?", ref)
	if err != nil {
		return nil, fmt.Errorf("finding queue item for %s: %w", ref, err)
	}
	return item, nil
}

func (s *SQLiteDatabase) FindQueueItems(ctx context.Context, status offline.QueueStatus) ([]*offline.SyncQueueItem, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM sync_queue WHERE status = ? ORDER BY priority DESC, timestamp ASC, id ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("finding queue items: %w", err)
	}
	defer rows.Close()

	var result []*offline.SyncQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning queue item: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding queue items: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) UpdateQueueItem(ctx context.Context, item *offline.SyncQueueItem) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE sync_queue SET retries = ?, max_retries = ?, last_retry = ?, last_error = ?, status = ?
		WHERE id = ?`,
		item.Retries, item.MaxRetries, nullMilli(item.LastRetry), item.LastError, string(item.Status), item.ID)
	if err != nil {
		return fmt.Errorf("updating queue item %d: %w", item.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", offline.ErrQueueItemNotFound, item.ID)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteQueueItem(ctx context.Context, id int64) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting queue item %d: %w", id, err)
	}
	return nil
}

// Media metadata

const mediaColumns = `url, type, resource_id, title, duration, size, cached, cached_at`

func scanMedia(row scanner) (*offline.CachedMedia, error) {
	var (
		m        offline.CachedMedia
		typ      string
		cachedAt int64
	)
	if err := row.Scan(&m.URL, &typ, &m.ResourceID, &m.Title, &m.Duration, &m.Size, &m.Cached, &cachedAt); err != nil {
		return nil, err
	}
	m.Type = offline.MediaType(typ)
	m.CachedAt = fromMilli(cachedAt)
	return &m, nil
}

func (s *SQLiteDatabase) PutMedia(ctx context.Context, m *offline.CachedMedia) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO media_metadata (`+mediaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			type = excluded.type,
			resource_id = excluded.resource_id,
			title = excluded.title,
			duration = excluded.duration,
			size = excluded.size,
			cached = excluded.cached,
			cached_at = excluded.cached_at`,
		m.URL, string(m.Type), m.ResourceID, m.Title, m.Duration, m.Size, m.Cached, m.CachedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("storing media metadata for %s: %w", m.URL, err)
	}
	return nil
}

func (s *SQLiteDatabase) FindMedia(ctx context.Context, url string) (*offline.CachedMedia, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	m, err := scanMedia(db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_metadata WHERE url = ?`, url))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding media %s: %w", url, err)
	}
	return m, nil
}

func (s *SQLiteDatabase) FindMediaCachedBefore(ctx context.Context, cutoff time.Time) ([]*offline.CachedMedia, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media_metadata WHERE cached_at < ? ORDER BY cached_at ASC, url ASC`,
		cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("finding old media: %w", err)
	}
	defer rows.Close()

	var result []*offline.CachedMedia
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning media: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding old media: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) DeleteMedia(ctx context.Context, url string) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM media_metadata WHERE url = ?`, url); err != nil {
		return fmt.Errorf("deleting media %s: %w", url, err)
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements offline.Database interface
var _ offline.Database = (*SQLiteDatabase)(nil)
