package chronicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

// PostgresStore is the Chronicle store for shared deployments. A single
// pgx connection serializes all statements, preserving the single-writer
// discipline at the database layer; appeal history is derived from the
// appeals table so precedent rows are never updated.
type PostgresStore struct {
	mu   sync.Mutex // pgx.Conn is not safe for concurrent use.
	conn *pgx.Conn
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS precedents (
	case_id   TEXT PRIMARY KEY,
	doc       JSONB NOT NULL,
	seq       BIGSERIAL,
	logged_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS appeals (
	appeal_id        TEXT PRIMARY KEY,
	original_case_id TEXT NOT NULL REFERENCES precedents(case_id),
	doc              JSONB NOT NULL,
	seq              BIGSERIAL,
	filed_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_appeals_case ON appeals(original_case_id);
`

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("chronicle: connect postgres: %w", err)
	}
	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("chronicle: create schema: %w", err)
	}
	return &PostgresStore{conn: conn}, nil
}

// AppendPrecedent inserts one precedent row inside a transaction, so a
// cancelled write leaves no partial record.
func (s *PostgresStore) AppendPrecedent(ctx context.Context, p model.Precedent) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("chronicle: marshal precedent: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.Exec(ctx,
		`INSERT INTO precedents (case_id, doc, logged_at) VALUES ($1, $2, $3)`,
		p.CaseID, doc, p.LoggedAt)
	if err != nil {
		return fmt.Errorf("chronicle: insert precedent: %w", err)
	}
	return nil
}

// AppendAppeal inserts one appeal row.
func (s *PostgresStore) AppendAppeal(ctx context.Context, a model.AppealRecord) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("chronicle: marshal appeal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.Exec(ctx,
		`INSERT INTO appeals (appeal_id, original_case_id, doc, filed_at) VALUES ($1, $2, $3, $4)`,
		a.AppealID, a.OriginalCaseID, doc, a.Timestamp)
	if err != nil {
		return fmt.Errorf("chronicle: insert appeal: %w", err)
	}
	return nil
}

// ListPrecedents returns all precedents in insertion order with derived
// appeal histories.
func (s *PostgresStore) ListPrecedents(ctx context.Context) ([]model.Precedent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT p.doc, COALESCE(array_agg(a.appeal_id ORDER BY a.seq) FILTER (WHERE a.appeal_id IS NOT NULL), '{}')
		FROM precedents p
		LEFT JOIN appeals a ON a.original_case_id = p.case_id
		GROUP BY p.case_id, p.doc, p.seq
		ORDER BY p.seq`)
	if err != nil {
		return nil, fmt.Errorf("chronicle: list precedents: %w", err)
	}
	defer rows.Close()

	var out []model.Precedent
	for rows.Next() {
		var doc []byte
		var history []string
		if err := rows.Scan(&doc, &history); err != nil {
			return nil, fmt.Errorf("chronicle: scan precedent: %w", err)
		}
		var p model.Precedent
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("chronicle: unmarshal precedent: %w", err)
		}
		p.AppealHistory = history
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetCase returns one precedent by id.
func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (model.Precedent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc []byte
	var history []string
	err := s.conn.QueryRow(ctx, `
		SELECT p.doc, COALESCE(array_agg(a.appeal_id ORDER BY a.seq) FILTER (WHERE a.appeal_id IS NOT NULL), '{}')
		FROM precedents p
		LEFT JOIN appeals a ON a.original_case_id = p.case_id
		WHERE p.case_id = $1
		GROUP BY p.case_id, p.doc`, caseID).Scan(&doc, &history)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Precedent{}, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	if err != nil {
		return model.Precedent{}, fmt.Errorf("chronicle: get case: %w", err)
	}
	var p model.Precedent
	if err := json.Unmarshal(doc, &p); err != nil {
		return model.Precedent{}, fmt.Errorf("chronicle: unmarshal precedent: %w", err)
	}
	p.AppealHistory = history
	return p, nil
}

// ListAppeals returns the appeals filed against one case, in order.
func (s *PostgresStore) ListAppeals(ctx context.Context, caseID string) ([]model.AppealRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx,
		`SELECT doc FROM appeals WHERE original_case_id = $1 ORDER BY seq`, caseID)
	if err != nil {
		return nil, fmt.Errorf("chronicle: list appeals: %w", err)
	}
	defer rows.Close()

	var out []model.AppealRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("chronicle: scan appeal: %w", err)
		}
		var a model.AppealRecord
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, fmt.Errorf("chronicle: unmarshal appeal: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats returns store totals.
func (s *PostgresStore) Stats(ctx context.Context) (model.ChronicleStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats model.ChronicleStats
	if err := s.conn.QueryRow(ctx, `SELECT COUNT(*) FROM precedents`).Scan(&stats.Precedents); err != nil {
		return stats, fmt.Errorf("chronicle: count precedents: %w", err)
	}
	if err := s.conn.QueryRow(ctx, `SELECT COUNT(*) FROM appeals`).Scan(&stats.Appeals); err != nil {
		return stats, fmt.Errorf("chronicle: count appeals: %w", err)
	}
	return stats, nil
}

// Close closes the connection.
func (s *PostgresStore) Close() error {
	return s.conn.Close(context.Background())
}
