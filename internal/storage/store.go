package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"duyurubot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// dateFormat is how published_at is stored. Dates are day-granular on the
// source side, so no time zone juggling is needed.
const dateFormat = "2006-01-02"

type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Source registry ----

// UpsertSource seeds one source. Existing rows (by id or slug) are left alone.
func (s *Store) UpsertSource(ctx context.Context, src Source) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sources(id, name, short_name, url) VALUES(?,?,?,?)`,
		src.ID, src.Name, src.ShortName, src.URL,
	)
	return err
}

func (s *Store) Sources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, short_name, url FROM sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Name, &src.ShortName, &src.URL); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) SourceByID(ctx context.Context, id int64) (Source, error) {
	var src Source
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, short_name, url FROM sources WHERE id = ?`, id).
		Scan(&src.ID, &src.Name, &src.ShortName, &src.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, ErrNotFound
	}
	return src, err
}

// ---- Announcements ----

func (s *Store) AnnouncementExists(ctx context.Context, link string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM announcements WHERE link = ?`, link).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertAnnouncement persists one announcement. A duplicate link is a no-op:
// the UNIQUE constraint is the dedup mechanism, not an error condition.
func (s *Store) InsertAnnouncement(ctx context.Context, a Announcement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO announcements(source_id, link, title, published_at) VALUES(?,?,?,?)`,
		a.SourceID, a.Link, a.Title, a.PublishedAt.Format(dateFormat),
	)
	return err
}

// ---- Subscriptions ----

func (s *Store) Subscribers(ctx context.Context, sourceID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM subscriptions WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) UserSubscriptions(ctx context.Context, chatID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id FROM subscriptions WHERE chat_id = ? ORDER BY source_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AddSubscription upserts the subscriber row and links it to a source.
// Returns true iff the subscription is new, so callers can tell "subscribed"
// from "already subscribed" without a prior read.
func (s *Store) AddSubscription(ctx context.Context, chatID, sourceID int64, displayName, handle string) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(chat_id, display_name, handle) VALUES(?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET display_name=excluded.display_name, handle=excluded.handle`,
		chatID, displayName, nullStr(handle),
	)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions(chat_id, source_id) VALUES(?,?)`,
		chatID, sourceID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RemoveSubscription returns true iff a row was actually removed.
func (s *Store) RemoveSubscription(ctx context.Context, chatID, sourceID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = ? AND source_id = ?`,
		chatID, sourceID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
