package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/strand/internal/app"
	"github.com/hylla/strand/internal/domain"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Repository persists streams, their history ledger, and the commit ledger.
// Every mutation that touches more than one table runs inside a single
// transaction, so a reader never observes a stream change without its audit
// record.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		// stream_history.stream_id and commits.stream_id are deliberately not
		// enforced foreign keys: streams are never deleted, and the commit
		// ledger accepts ids the stream store has never seen.
		`CREATE TABLE IF NOT EXISTS streams (
			id TEXT PRIMARY KEY,
			stream_number TEXT NOT NULL,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'initializing',
			progress INTEGER NOT NULL DEFAULT 0,
			phases_json TEXT NOT NULL DEFAULT '[]',
			current_phase INTEGER,
			blocked_by TEXT NOT NULL DEFAULT '',
			worktree_path TEXT NOT NULL,
			branch TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS stream_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stream_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stream_id TEXT NOT NULL,
			commit_hash TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			files_changed INTEGER NOT NULL DEFAULT 0,
			timestamp TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_streams_status ON streams(status);`,
		`CREATE INDEX IF NOT EXISTS idx_streams_category ON streams(category);`,
		`CREATE INDEX IF NOT EXISTS idx_streams_created_at ON streams(created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_stream_history_stream ON stream_history(stream_id, timestamp DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_commits_stream ON commits(stream_id, timestamp DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_commits_timestamp ON commits(timestamp DESC, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateStream inserts the stream row and its `created` history event in one
// transaction.
func (r *Repository) CreateStream(ctx context.Context, s domain.Stream) error {
	phasesJSON, err := json.Marshal(s.Phases)
	if err != nil {
		return fmt.Errorf("encode stream phases: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create stream %s: %w", s.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO streams(
			id, stream_number, title, category, priority, status, progress, phases_json,
			current_phase, blocked_by, worktree_path, branch, created_at, updated_at, completed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.StreamNumber,
		s.Title,
		string(s.Category),
		string(s.Priority),
		string(s.Status),
		s.Progress,
		string(phasesJSON),
		nullableInt(s.CurrentPhase),
		s.BlockedBy,
		s.WorktreePath,
		s.Branch,
		ts(s.CreatedAt),
		ts(s.UpdatedAt),
		nullableTS(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create stream %s: %w", s.ID, err)
	}

	err = insertHistoryEvent(ctx, tx, domain.HistoryEvent{
		StreamID:  s.ID,
		EventType: domain.EventCreated,
		NewValue:  string(s.Status),
		Timestamp: s.CreatedAt,
	})
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// GetStream returns the stream with the given id, or app.ErrNotFound.
func (r *Repository) GetStream(ctx context.Context, id string) (domain.Stream, error) {
	return getStreamByID(ctx, r.db, id)
}

// ListStreams lists streams matching the filter, newest first.
func (r *Repository) ListStreams(ctx context.Context, filter app.StreamFilter) ([]domain.Stream, error) {
	query := `
		SELECT
			id, stream_number, title, category, priority, status, progress, phases_json,
			current_phase, blocked_by, worktree_path, branch, created_at, updated_at, completed_at
		FROM streams
	`
	conds := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		conds = append(conds, `category = ?`)
		args = append(args, string(filter.Category))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	out := []domain.Stream{}
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stream)
	}
	return out, rows.Err()
}

// UpdateStream applies the patch inside one transaction and appends one
// history event per changed field: status_changed for status moves and
// progress_updated for progress moves. A patch that changes nothing writes
// nothing and emits nothing.
func (r *Repository) UpdateStream(ctx context.Context, id string, patch domain.StreamPatch, now time.Time) (domain.Stream, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stream{}, fmt.Errorf("update stream %s: %w", id, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := getStreamByID(ctx, tx, id)
	if err != nil {
		return domain.Stream{}, err
	}

	next := prev
	if !next.Apply(patch, now) {
		_ = tx.Rollback()
		return prev, nil
	}

	if err = writeStream(ctx, tx, next); err != nil {
		return domain.Stream{}, err
	}

	if prev.Status != next.Status {
		err = insertHistoryEvent(ctx, tx, domain.HistoryEvent{
			StreamID:  id,
			EventType: domain.EventStatusChanged,
			OldValue:  string(prev.Status),
			NewValue:  string(next.Status),
			Timestamp: now,
		})
		if err != nil {
			return domain.Stream{}, err
		}
	}
	if prev.Progress != next.Progress {
		err = insertHistoryEvent(ctx, tx, domain.HistoryEvent{
			StreamID:  id,
			EventType: domain.EventProgressUpdated,
			OldValue:  strconv.Itoa(prev.Progress),
			NewValue:  strconv.Itoa(next.Progress),
			Timestamp: now,
		})
		if err != nil {
			return domain.Stream{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Stream{}, fmt.Errorf("update stream %s: %w", id, err)
	}
	return next, nil
}

// CompleteStream marks the stream completed and records exactly one
// `completed` event carrying the summary, never a separate status_changed
// event for the same transition.
func (r *Repository) CompleteStream(ctx context.Context, id, summary string, now time.Time) (domain.Stream, error) {
	return r.finishStream(ctx, id, func(s *domain.Stream) domain.HistoryEvent {
		old := string(s.Status)
		s.Complete(now)
		return domain.HistoryEvent{
			StreamID:  id,
			EventType: domain.EventCompleted,
			OldValue:  old,
			NewValue:  summary,
			Timestamp: now,
		}
	})
}

// ArchiveStream moves the stream into the archived status and records one
// `archived` event.
func (r *Repository) ArchiveStream(ctx context.Context, id string, now time.Time) (domain.Stream, error) {
	return r.finishStream(ctx, id, func(s *domain.Stream) domain.HistoryEvent {
		old := string(s.Status)
		s.Archive(now)
		return domain.HistoryEvent{
			StreamID:  id,
			EventType: domain.EventArchived,
			OldValue:  old,
			NewValue:  string(domain.StatusArchived),
			Timestamp: now,
		}
	})
}

// finishStream runs one terminal transition plus its single audit event in a
// transaction.
func (r *Repository) finishStream(ctx context.Context, id string, transition func(*domain.Stream) domain.HistoryEvent) (domain.Stream, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stream{}, fmt.Errorf("finish stream %s: %w", id, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stream, err := getStreamByID(ctx, tx, id)
	if err != nil {
		return domain.Stream{}, err
	}

	event := transition(&stream)
	if err = writeStream(ctx, tx, stream); err != nil {
		return domain.Stream{}, err
	}
	if err = insertHistoryEvent(ctx, tx, event); err != nil {
		return domain.Stream{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Stream{}, fmt.Errorf("finish stream %s: %w", id, err)
	}
	return stream, nil
}

// ListHistoryByStream lists all audit events for a stream, newest first.
// Ties on timestamp fall back to insertion order.
func (r *Repository) ListHistoryByStream(ctx context.Context, streamID string) ([]domain.HistoryEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stream_id, event_type, old_value, new_value, timestamp
		FROM stream_history
		WHERE stream_id = ?
		ORDER BY timestamp DESC, id DESC
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("list history for stream %s: %w", streamID, err)
	}
	defer rows.Close()

	out := make([]domain.HistoryEvent, 0)
	for rows.Next() {
		var (
			event        domain.HistoryEvent
			eventTypeRaw string
			timestampRaw string
		)
		if err := rows.Scan(&event.ID, &event.StreamID, &eventTypeRaw, &event.OldValue, &event.NewValue, &timestampRaw); err != nil {
			return nil, err
		}
		event.EventType = domain.EventType(eventTypeRaw)
		event.Timestamp = parseTS(timestampRaw)
		out = append(out, event)
	}
	return out, rows.Err()
}

// RecordCommit appends one commit row and returns the assigned id. The
// stream id is deliberately not validated against the streams table.
func (r *Repository) RecordCommit(ctx context.Context, c domain.Commit) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO commits(stream_id, commit_hash, message, author, files_changed, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.StreamID, c.CommitHash, c.Message, c.Author, c.FilesChanged, ts(c.Timestamp))
	if err != nil {
		return 0, fmt.Errorf("record commit %s for stream %s: %w", c.CommitHash, c.StreamID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record commit %s for stream %s: %w", c.CommitHash, c.StreamID, err)
	}
	return id, nil
}

// CommitsByStream lists a stream's commits, newest first, capped at limit.
func (r *Repository) CommitsByStream(ctx context.Context, streamID string, limit int) ([]domain.Commit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stream_id, commit_hash, message, author, files_changed, timestamp
		FROM commits
		WHERE stream_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commits for stream %s: %w", streamID, err)
	}
	return collectCommits(rows)
}

// RecentCommits lists commits across all streams, newest first, capped at
// limit.
func (r *Repository) RecentCommits(ctx context.Context, limit int) ([]domain.Commit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stream_id, commit_hash, message, author, files_changed, timestamp
		FROM commits
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent commits: %w", err)
	}
	return collectCommits(rows)
}

// CountCommitsByStream counts the ledger rows for one stream.
func (r *Repository) CountCommitsByStream(ctx context.Context, streamID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE stream_id = ?`, streamID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count commits for stream %s: %w", streamID, err)
	}
	return n, nil
}

// CountCommits counts all ledger rows.
func (r *Repository) CountCommits(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return n, nil
}

// QuickStats recomputes the aggregate rollup inside one read transaction so
// stream and commit counts come from a single consistent view. "Today" is
// the local calendar day containing now.
func (r *Repository) QuickStats(ctx context.Context, now time.Time) (domain.QuickStats, error) {
	dayStart := localDayStart(now)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.QuickStats{}, fmt.Errorf("quick stats: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stats domain.QuickStats

	rows, err := tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM streams GROUP BY status`)
	if err != nil {
		return domain.QuickStats{}, fmt.Errorf("quick stats: count streams: %w", err)
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return domain.QuickStats{}, err
		}
		switch domain.Status(status) {
		case domain.StatusActive:
			stats.ActiveStreams = count
			stats.InProgress = count
		case domain.StatusBlocked:
			stats.Blocked = count
		case domain.StatusInitializing:
			stats.ReadyToStart = count
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return domain.QuickStats{}, err
	}
	rows.Close()

	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM streams WHERE completed_at IS NOT NULL AND completed_at >= ?
	`, dayStart).Scan(&stats.CompletedToday)
	if err != nil {
		return domain.QuickStats{}, fmt.Errorf("quick stats: completed today: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits`).Scan(&stats.TotalCommits); err != nil {
		return domain.QuickStats{}, fmt.Errorf("quick stats: total commits: %w", err)
	}
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE timestamp >= ?`, dayStart).Scan(&stats.CommitsToday)
	if err != nil {
		return domain.QuickStats{}, fmt.Errorf("quick stats: commits today: %w", err)
	}

	return stats, nil
}

// queryRower and execerContext are satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

func getStreamByID(ctx context.Context, q queryRower, id string) (domain.Stream, error) {
	row := q.QueryRowContext(ctx, `
		SELECT
			id, stream_number, title, category, priority, status, progress, phases_json,
			current_phase, blocked_by, worktree_path, branch, created_at, updated_at, completed_at
		FROM streams
		WHERE id = ?
	`, id)
	return scanStream(row)
}

// writeStream persists every mutable stream column.
func writeStream(ctx context.Context, execer execerContext, s domain.Stream) error {
	phasesJSON, err := json.Marshal(s.Phases)
	if err != nil {
		return fmt.Errorf("encode stream phases: %w", err)
	}
	res, err := execer.ExecContext(ctx, `
		UPDATE streams
		SET status = ?, progress = ?, phases_json = ?, current_phase = ?, blocked_by = ?,
		    updated_at = ?, completed_at = ?
		WHERE id = ?
	`,
		string(s.Status),
		s.Progress,
		string(phasesJSON),
		nullableInt(s.CurrentPhase),
		s.BlockedBy,
		ts(s.UpdatedAt),
		nullableTS(s.CompletedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("update stream %s: %w", s.ID, err)
	}
	return translateNoRows(res)
}

// insertHistoryEvent appends one immutable audit record. There is no update
// or delete path for stream_history.
func insertHistoryEvent(ctx context.Context, execer execerContext, event domain.HistoryEvent) error {
	_, err := execer.ExecContext(ctx, `
		INSERT INTO stream_history(stream_id, event_type, old_value, new_value, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.StreamID,
		string(event.EventType),
		event.OldValue,
		event.NewValue,
		ts(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert history event for stream %s: %w", event.StreamID, err)
	}
	return nil
}

func collectCommits(rows *sql.Rows) ([]domain.Commit, error) {
	defer rows.Close()
	out := make([]domain.Commit, 0)
	for rows.Next() {
		var (
			c            domain.Commit
			timestampRaw string
		)
		if err := rows.Scan(&c.ID, &c.StreamID, &c.CommitHash, &c.Message, &c.Author, &c.FilesChanged, &timestampRaw); err != nil {
			return nil, err
		}
		c.Timestamp = parseTS(timestampRaw)
		out = append(out, c)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStream(s scanner) (domain.Stream, error) {
	var (
		stream       domain.Stream
		category     string
		priority     string
		status       string
		phasesRaw    string
		currentPhase sql.NullInt64
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
	)
	if err := s.Scan(
		&stream.ID,
		&stream.StreamNumber,
		&stream.Title,
		&category,
		&priority,
		&status,
		&stream.Progress,
		&phasesRaw,
		&currentPhase,
		&stream.BlockedBy,
		&stream.WorktreePath,
		&stream.Branch,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Stream{}, app.ErrNotFound
		}
		return domain.Stream{}, err
	}
	stream.Category = domain.Category(category)
	stream.Priority = domain.Priority(priority)
	stream.Status = domain.Status(status)
	if strings.TrimSpace(phasesRaw) == "" {
		phasesRaw = "[]"
	}
	if err := json.Unmarshal([]byte(phasesRaw), &stream.Phases); err != nil {
		return domain.Stream{}, fmt.Errorf("decode phases_json: %w", err)
	}
	if currentPhase.Valid {
		v := int(currentPhase.Int64)
		stream.CurrentPhase = &v
	}
	stream.CreatedAt = parseTS(createdRaw)
	stream.UpdatedAt = parseTS(updatedRaw)
	stream.CompletedAt = parseNullTS(completedRaw)
	return stream, nil
}

func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// localDayStart returns midnight of now's local calendar day, formatted like
// every other persisted timestamp.
func localDayStart(now time.Time) string {
	local := now.In(time.Local)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return ts(day)
}

// Timestamps are stored as RFC3339Nano strings in UTC so lexicographic
// comparison in SQL matches chronological order.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
