// Package sqlite provides SQLite-backed exploration, item and research stores.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/PabloGalante/brandlab/internal/adapters/storage/sqlite/migrations"
	"github.com/PabloGalante/brandlab/internal/domain"
)

// Store persists sessions, transcripts, items and method records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// ─────────────────────────────────────────
// ExplorationStore
// ─────────────────────────────────────────

const sessionColumns = `id, item_kind, item_id, scope_id, backend, model_id, status,
	answered_questions, total_questions, current_dimension_index, progress,
	locked, report_json, last_error, created_at, updated_at, dimensions_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.ExplorationSession, error) {
	var (
		s                    domain.ExplorationSession
		locked               int
		report               sql.NullString
		createdAt, updatedAt int64
		dims                 string
	)
	if err := row.Scan(
		&s.ID, &s.ItemType, &s.ItemID, &s.ScopeID, &s.Backend, &s.ModelID, &s.Status,
		&s.AnsweredQuestions, &s.TotalQuestions, &s.CurrentDimensionIndex, &s.Progress,
		&locked, &report, &s.LastError, &createdAt, &updatedAt, &dims,
	); err != nil {
		return nil, err
	}
	if dims != "" {
		if err := json.Unmarshal([]byte(dims), &s.Dimensions); err != nil {
			return nil, fmt.Errorf("decode dimensions: %w", err)
		}
	}
	s.Locked = locked != 0
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	if report.Valid && report.String != "" {
		var r domain.InsightReport
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		s.Report = &r
	}
	return &s, nil
}

func reportJSON(r *domain.InsightReport) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode report: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) CreateSession(ctx context.Context, session *domain.ExplorationSession, msgs []*domain.ExplorationMessage) error {
	report, err := reportJSON(session.Report)
	if err != nil {
		return err
	}
	dims, err := json.Marshal(session.Dimensions)
	if err != nil {
		return fmt.Errorf("encode dimensions: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO exploration_sessions (`+sessionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, session.ItemType, session.ItemID, session.ScopeID,
			session.Backend, session.ModelID, session.Status,
			session.AnsweredQuestions, session.TotalQuestions, session.CurrentDimensionIndex, session.Progress,
			boolInt(session.Locked), report, session.LastError,
			toMillis(session.CreatedAt), toMillis(session.UpdatedAt), string(dims),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return insertMessages(ctx, tx, session.ID, 0, msgs)
	})
}

func (s *Store) SaveTurn(ctx context.Context, session *domain.ExplorationSession, msgs []*domain.ExplorationMessage) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(order_index) + 1, 0) FROM exploration_messages WHERE session_id = ?`,
			session.ID,
		).Scan(&next); err != nil {
			return fmt.Errorf("read next order index: %w", err)
		}
		if err := updateSession(ctx, tx, session); err != nil {
			return err
		}
		return insertMessages(ctx, tx, session.ID, next, msgs)
	})
}

func insertMessages(ctx context.Context, tx *sql.Tx, sessionID domain.SessionID, next int, msgs []*domain.ExplorationMessage) error {
	for _, m := range msgs {
		if m.OrderIndex != next {
			return fmt.Errorf("message %s has order index %d, want %d: %w", m.ID, m.OrderIndex, next, domain.ErrOrderConflict)
		}
		next++

		var md sql.NullString
		if m.Metadata != nil {
			b, err := json.Marshal(m.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			md = sql.NullString{String: string(b), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO exploration_messages (id, session_id, type, content, order_index, metadata_json, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, sessionID, m.Type, m.Content, m.OrderIndex, md, toMillis(m.CreatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert message %d: %w", m.OrderIndex, domain.ErrOrderConflict)
			}
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateSession(ctx context.Context, db execer, session *domain.ExplorationSession) error {
	report, err := reportJSON(session.Report)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE exploration_sessions SET
		   status = ?, answered_questions = ?, total_questions = ?, current_dimension_index = ?,
		   progress = ?, locked = ?, report_json = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		session.Status, session.AnsweredQuestions, session.TotalQuestions, session.CurrentDimensionIndex,
		session.Progress, boolInt(session.Locked), report, session.LastError, toMillis(session.UpdatedAt),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.ExplorationSession) error {
	return updateSession(ctx, s.sqlDB, session)
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.ExplorationSession, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM exploration_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *Store) FindActiveSession(ctx context.Context, ref domain.ItemRef) (*domain.ExplorationSession, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM exploration_sessions
		 WHERE item_kind = ? AND item_id = ? AND scope_id = ? AND locked = 0
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		ref.Kind, ref.ID, ref.ScopeID,
	)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active session for %s/%s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return session, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID domain.SessionID) ([]*domain.ExplorationMessage, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, type, content, order_index, metadata_json, created_at
		 FROM exploration_messages WHERE session_id = ? ORDER BY order_index`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.ExplorationMessage
	for rows.Next() {
		var (
			m         = domain.ExplorationMessage{SessionID: sessionID}
			md        sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.Type, &m.Content, &m.OrderIndex, &md, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		if md.Valid && md.String != "" {
			m.Metadata = &domain.MessageMetadata{}
			if err := json.Unmarshal([]byte(md.String), m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	if len(out) == 0 {
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ─────────────────────────────────────────
// ItemStore
// ─────────────────────────────────────────

// PutItem inserts or replaces an item.
func (s *Store) PutItem(ctx context.Context, item *domain.Item) error {
	fields, err := json.Marshal(item.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	updatedAt := item.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO items (kind, id, scope_id, name, fields_json, validation_coverage, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, id, scope_id) DO UPDATE SET
		   name = excluded.name,
		   fields_json = excluded.fields_json,
		   validation_coverage = excluded.validation_coverage,
		   updated_at = excluded.updated_at`,
		item.Kind, item.ID, item.ScopeID, item.Name, string(fields), item.ValidationCoverage, toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, ref domain.ItemRef) (*domain.Item, error) {
	var (
		item      = domain.Item{Kind: ref.Kind, ID: ref.ID, ScopeID: ref.ScopeID}
		fields    string
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, fields_json, validation_coverage, updated_at FROM items
		 WHERE kind = ? AND id = ? AND scope_id = ?`,
		ref.Kind, ref.ID, ref.ScopeID,
	).Scan(&item.Name, &fields, &item.ValidationCoverage, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s/%s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &item.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	item.UpdatedAt = fromMillis(updatedAt)
	return &item, nil
}

func (s *Store) SetValidationCoverage(ctx context.Context, ref domain.ItemRef, coverage int) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE items SET validation_coverage = ?, updated_at = ? WHERE kind = ? AND id = ? AND scope_id = ?`,
		coverage, toMillis(time.Now()), ref.Kind, ref.ID, ref.ScopeID,
	)
	if err != nil {
		return fmt.Errorf("set validation coverage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %s/%s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
	}
	return nil
}

// ─────────────────────────────────────────
// ResearchStore
// ─────────────────────────────────────────

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listRecords(ctx context.Context, db queryer, ref domain.ItemRef) ([]domain.ResearchMethodRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT method, status, progress, completed_at, artifacts_count FROM research_methods
		 WHERE item_kind = ? AND item_id = ? AND scope_id = ? ORDER BY method`,
		ref.Kind, ref.ID, ref.ScopeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list research methods: %w", err)
	}
	defer rows.Close()

	var out []domain.ResearchMethodRecord
	for rows.Next() {
		var (
			rec         = domain.ResearchMethodRecord{Item: ref}
			completedAt sql.NullInt64
		)
		if err := rows.Scan(&rec.Method, &rec.Status, &rec.Progress, &completedAt, &rec.ArtifactsCount); err != nil {
			return nil, fmt.Errorf("scan research method: %w", err)
		}
		if completedAt.Valid {
			t := fromMillis(completedAt.Int64)
			rec.CompletedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func putRecord(ctx context.Context, db execer, rec domain.ResearchMethodRecord) error {
	var completedAt sql.NullInt64
	if rec.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: toMillis(*rec.CompletedAt), Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO research_methods (item_kind, item_id, scope_id, method, status, progress, completed_at, artifacts_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (item_kind, item_id, scope_id, method) DO UPDATE SET
		   status = excluded.status,
		   progress = excluded.progress,
		   completed_at = excluded.completed_at,
		   artifacts_count = excluded.artifacts_count`,
		rec.Item.Kind, rec.Item.ID, rec.Item.ScopeID, rec.Method, rec.Status, rec.Progress, completedAt, rec.ArtifactsCount,
	)
	if err != nil {
		return fmt.Errorf("put research method: %w", err)
	}
	return nil
}

func (s *Store) ListMethodRecords(ctx context.Context, ref domain.ItemRef) ([]domain.ResearchMethodRecord, error) {
	return listRecords(ctx, s.sqlDB, ref)
}

func (s *Store) PutMethodRecord(ctx context.Context, rec domain.ResearchMethodRecord) error {
	return putRecord(ctx, s.sqlDB, rec)
}

func (s *Store) CompleteMethod(ctx context.Context, ref domain.ItemRef, method domain.ResearchMethod, at domain.Timestamp) ([]domain.ResearchMethodRecord, error) {
	var out []domain.ResearchMethodRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		records, err := listRecords(ctx, tx, ref)
		if err != nil {
			return err
		}
		rec := domain.ResearchMethodRecord{Item: ref, Method: method}
		idx := -1
		for i, r := range records {
			if r.Method == method {
				rec, idx = r, i
				break
			}
		}
		rec = rec.MarkCompleted(at)
		if err := putRecord(ctx, tx, rec); err != nil {
			return err
		}
		if idx >= 0 {
			records[idx] = rec
		} else {
			records = append(records, rec)
		}
		out = records
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
