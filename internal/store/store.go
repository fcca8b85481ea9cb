// Package store archives fetch runs and the posts and videos they produced in
// a local SQLite database.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	KindBluesky = "bluesky"
	KindYouTube = "youtube"
)

type Store struct {
	db *sql.DB
}

// Run is one archived fetch of a single actor or channel.
type Run struct {
	ID         string
	Kind       string
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time
	Items      int
	Requests   int
	StopReason string
	Error      string
}

// RunResult is recorded when a run finishes.
type RunResult struct {
	Items      int
	Requests   int
	StopReason string
	Err        error
}

type PostInput struct {
	URI         string
	CID         string
	Author      string
	Text        string
	URL         string
	CreatedAt   time.Time
	LikeCount   int64
	RepostCount int64
	ReplyCount  int64
	EmbedKind   string
	Record      json.RawMessage
}

type VideoInput struct {
	ID          string
	ChannelID   string
	Title       string
	URL         string
	PublishedAt time.Time
	LiveStatus  string
	Record      json.RawMessage
}

// SaveResult counts rows that were new or whose content changed.
type SaveResult struct {
	New     int
	Changed int
}

// Counts summarizes archive contents.
type Counts struct {
	Runs   int
	Posts  int
	Videos int
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	return nil
}

// StartRun records the start of a fetch and returns its id.
func (s *Store) StartRun(ctx context.Context, kind, target string, startedAt time.Time) (Run, error) {
	if err := s.ready(); err != nil {
		return Run{}, err
	}
	if kind != KindBluesky && kind != KindYouTube {
		return Run{}, fmt.Errorf("unknown run kind %q", kind)
	}
	if strings.TrimSpace(target) == "" {
		return Run{}, errors.New("target is required")
	}

	run := Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    target,
		StartedAt: startedAt.UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, kind, target, started_at) VALUES (?, ?, ?, ?)",
		run.ID, run.Kind, run.Target, formatTime(run.StartedAt),
	); err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// FinishRun stores the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id string, res RunResult, finishedAt time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}

	var stopVal, errVal sql.NullString
	if res.StopReason != "" {
		stopVal = sql.NullString{String: res.StopReason, Valid: true}
	}
	if res.Err != nil {
		errVal = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	out, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, items = ?, requests = ?, stop_reason = ?, error = ?
		WHERE id = ?
	`, formatTime(finishedAt), res.Items, res.Requests, stopVal, errVal, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: no run with id %s", id)
	}
	return nil
}

// SavePosts upserts posts keyed by uri in one transaction.
func (s *Store) SavePosts(ctx context.Context, runID string, posts []PostInput, fetchedAt time.Time) (res SaveResult, err error) {
	if err := s.ready(); err != nil {
		return SaveResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	fetched := formatTime(fetchedAt)
	for _, p := range posts {
		if strings.TrimSpace(p.URI) == "" {
			return SaveResult{}, errors.New("post uri is required")
		}
		if strings.TrimSpace(p.Author) == "" {
			return SaveResult{}, fmt.Errorf("post %s: author is required", p.URI)
		}
		hash := textHash(p.Text)

		state, err := compareStored(ctx, tx, "SELECT text_hash FROM posts WHERE uri = ?", p.URI, hash)
		if err != nil {
			return SaveResult{}, fmt.Errorf("lookup post %s: %w", p.URI, err)
		}
		res.add(state)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO posts (
				uri, cid, author, text, text_hash, url, created_at,
				like_count, repost_count, reply_count, embed_kind, record, run_id, fetched_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(uri) DO UPDATE SET
				cid = excluded.cid,
				text = excluded.text,
				text_hash = excluded.text_hash,
				url = excluded.url,
				like_count = excluded.like_count,
				repost_count = excluded.repost_count,
				reply_count = excluded.reply_count,
				embed_kind = excluded.embed_kind,
				record = excluded.record,
				run_id = excluded.run_id,
				fetched_at = excluded.fetched_at
		`,
			p.URI, nullString(p.CID), p.Author, nullString(p.Text), hash, nullString(p.URL),
			formatTime(p.CreatedAt), p.LikeCount, p.RepostCount, p.ReplyCount,
			nullString(p.EmbedKind), recordJSON(p.Record), nullString(runID), fetched,
		); err != nil {
			return SaveResult{}, fmt.Errorf("upsert post %s: %w", p.URI, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("commit posts: %w", err)
	}
	return res, nil
}

// SaveVideos upserts videos keyed by id in one transaction.
func (s *Store) SaveVideos(ctx context.Context, runID string, videos []VideoInput, fetchedAt time.Time) (res SaveResult, err error) {
	if err := s.ready(); err != nil {
		return SaveResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	fetched := formatTime(fetchedAt)
	for _, v := range videos {
		if strings.TrimSpace(v.ID) == "" {
			return SaveResult{}, errors.New("video id is required")
		}
		if strings.TrimSpace(v.ChannelID) == "" {
			return SaveResult{}, fmt.Errorf("video %s: channel id is required", v.ID)
		}

		state, err := compareStored(ctx, tx, "SELECT title FROM videos WHERE id = ?", v.ID, v.Title)
		if err != nil {
			return SaveResult{}, fmt.Errorf("lookup video %s: %w", v.ID, err)
		}
		res.add(state)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO videos (id, channel_id, title, url, published_at, live_status, record, run_id, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				url = excluded.url,
				published_at = excluded.published_at,
				live_status = excluded.live_status,
				record = excluded.record,
				run_id = excluded.run_id,
				fetched_at = excluded.fetched_at
		`,
			v.ID, v.ChannelID, v.Title, nullString(v.URL), formatTime(v.PublishedAt),
			nullString(v.LiveStatus), recordJSON(v.Record), nullString(runID), fetched,
		); err != nil {
			return SaveResult{}, fmt.Errorf("upsert video %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("commit videos: %w", err)
	}
	return res, nil
}

type rowState int

const (
	rowNew rowState = iota
	rowChanged
	rowSame
)

func (r *SaveResult) add(state rowState) {
	switch state {
	case rowNew:
		r.New++
	case rowChanged:
		r.Changed++
	}
}

// compareStored reports whether the row keyed by key is new, changed or
// identical, judged by the single column query selects.
func compareStored(ctx context.Context, tx *sql.Tx, query, key, want string) (rowState, error) {
	var have string
	err := tx.QueryRowContext(ctx, query, key).Scan(&have)
	if errors.Is(err, sql.ErrNoRows) {
		return rowNew, nil
	}
	if err != nil {
		return rowNew, err
	}
	if have != want {
		return rowChanged, nil
	}
	return rowSame, nil
}

// RecentRuns returns up to limit runs, newest first. kind filters when set.
func (s *Store) RecentRuns(ctx context.Context, limit int, kind string) ([]Run, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, kind, target, started_at, finished_at, items, requests, stop_reason, error
		FROM runs`
	args := []any{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Counts returns row counts for each archive table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	if err := s.ready(); err != nil {
		return Counts{}, err
	}
	var c Counts
	if err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM runs),
			(SELECT COUNT(*) FROM posts),
			(SELECT COUNT(*) FROM videos)
	`).Scan(&c.Runs, &c.Posts, &c.Videos); err != nil {
		return Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

// PruneOld deletes posts and videos last fetched more than retainDays ago,
// then runs that started before the same cutoff. Returns rows removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune transaction: %w", err)
	}

	var total int64
	for _, stmt := range []struct{ name, query string }{
		{"posts", "DELETE FROM posts WHERE fetched_at < ?"},
		{"videos", "DELETE FROM videos WHERE fetched_at < ?"},
		// referencing rows that survive get run_id set to NULL
		{"runs", "DELETE FROM runs WHERE started_at < ?"},
	} {
		res, err := tx.ExecContext(ctx, stmt.query, cutoff)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("prune old %s: %w", stmt.name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (Run, error) {
	var (
		run                   Run
		startedAt             string
		finishedAt, stop, msg sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Kind,
		&run.Target,
		&startedAt,
		&finishedAt,
		&run.Items,
		&run.Requests,
		&stop,
		&msg,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		run.FinishedAt, err = parseTime(finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	run.StopReason = stop.String
	run.Error = msg.String
	return run, nil
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func recordJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
