package chronicle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // CGo-free driver.

	"github.com/RedBackRubbish/TheNest/internal/model"
)

// SQLiteStore is a database-backed Chronicle store. Append-only semantics
// are preserved at the schema level: both tables take INSERTs only, and a
// precedent's appeal history is derived from the appeals table rather than
// stored mutably on the precedent row. Writes are serialized through a
// single connection.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS precedents (
	case_id   TEXT PRIMARY KEY,
	doc       TEXT NOT NULL,
	logged_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS appeals (
	appeal_id        TEXT PRIMARY KEY,
	original_case_id TEXT NOT NULL REFERENCES precedents(case_id),
	doc              TEXT NOT NULL,
	filed_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_appeals_case ON appeals(original_case_id);
`

// NewSQLiteStore opens (or creates) a SQLite-backed store at path.
// Synchronous FULL makes each committed insert durable before the call
// returns, matching the file store's fsync discipline.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chronicle: open sqlite: %w", err)
	}
	// Single connection: the single-writer discipline maps onto the driver.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("chronicle: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("chronicle: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// AppendPrecedent inserts one precedent row.
func (s *SQLiteStore) AppendPrecedent(ctx context.Context, p model.Precedent) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("chronicle: marshal precedent: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO precedents (case_id, doc, logged_at) VALUES (?, ?, ?)`,
		p.CaseID, string(doc), p.LoggedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	if err != nil {
		return fmt.Errorf("chronicle: insert precedent: %w", err)
	}
	return nil
}

// AppendAppeal inserts one appeal row. The original case's appeal history
// is derived at read time, so no precedent row is updated.
func (s *SQLiteStore) AppendAppeal(ctx context.Context, a model.AppealRecord) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("chronicle: marshal appeal: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO appeals (appeal_id, original_case_id, doc, filed_at) VALUES (?, ?, ?, ?)`,
		a.AppealID, a.OriginalCaseID, string(doc), a.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	if err != nil {
		return fmt.Errorf("chronicle: insert appeal: %w", err)
	}
	return nil
}

// ListPrecedents returns all precedents in insertion order.
func (s *SQLiteStore) ListPrecedents(ctx context.Context) ([]model.Precedent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM precedents ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("chronicle: list precedents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Precedent
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("chronicle: scan precedent: %w", err)
		}
		var p model.Precedent
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("chronicle: unmarshal precedent: %w", err)
		}
		if err := s.fillAppealHistory(ctx, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetCase returns one precedent by id.
func (s *SQLiteStore) GetCase(ctx context.Context, caseID string) (model.Precedent, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM precedents WHERE case_id = ?`, caseID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Precedent{}, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	if err != nil {
		return model.Precedent{}, fmt.Errorf("chronicle: get case: %w", err)
	}
	var p model.Precedent
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return model.Precedent{}, fmt.Errorf("chronicle: unmarshal precedent: %w", err)
	}
	if err := s.fillAppealHistory(ctx, &p); err != nil {
		return model.Precedent{}, err
	}
	return p, nil
}

// ListAppeals returns the appeals filed against one case, in order.
func (s *SQLiteStore) ListAppeals(ctx context.Context, caseID string) ([]model.AppealRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM appeals WHERE original_case_id = ? ORDER BY rowid`, caseID)
	if err != nil {
		return nil, fmt.Errorf("chronicle: list appeals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.AppealRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("chronicle: scan appeal: %w", err)
		}
		var a model.AppealRecord
		if err := json.Unmarshal([]byte(doc), &a); err != nil {
			return nil, fmt.Errorf("chronicle: unmarshal appeal: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats returns store totals.
func (s *SQLiteStore) Stats(ctx context.Context) (model.ChronicleStats, error) {
	var stats model.ChronicleStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM precedents`).Scan(&stats.Precedents); err != nil {
		return stats, fmt.Errorf("chronicle: count precedents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM appeals`).Scan(&stats.Appeals); err != nil {
		return stats, fmt.Errorf("chronicle: count appeals: %w", err)
	}
	return stats, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) fillAppealHistory(ctx context.Context, p *model.Precedent) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT appeal_id FROM appeals WHERE original_case_id = ? ORDER BY rowid`, p.CaseID)
	if err != nil {
		return fmt.Errorf("chronicle: appeal history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("chronicle: scan appeal id: %w", err)
		}
		history = append(history, id)
	}
	p.AppealHistory = history
	return rows.Err()
}
