package chronicle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

// Default file names for the JSON reference layout.
const (
	precedentsFile = "chronicle_data.json"
	appealsFile    = "chronicle_data_appeals.json"
)

// FileStore keeps precedents and appeals in two JSON files: an ordered
// array per file. Durability: every write lands in a temporary file in the
// same directory, is fsynced, renamed over the target, and the directory
// is fsynced. The Chronicle wrapper serializes writers, so the in-memory
// slices need no further locking here.
type FileStore struct {
	dir        string
	precedents []model.Precedent
	appeals    []model.AppealRecord
}

// NewFileStore opens (or creates) a file-backed store in dir and loads any
// existing records.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("chronicle: create dir: %w", err)
	}

	s := &FileStore{dir: dir}
	if err := loadJSON(filepath.Join(dir, precedentsFile), &s.precedents); err != nil {
		return nil, fmt.Errorf("chronicle: load precedents: %w", err)
	}
	if err := loadJSON(filepath.Join(dir, appealsFile), &s.appeals); err != nil {
		return nil, fmt.Errorf("chronicle: load appeals: %w", err)
	}
	return s, nil
}

// AppendPrecedent appends to the precedents array and flushes the file.
func (s *FileStore) AppendPrecedent(ctx context.Context, p model.Precedent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := append(append([]model.Precedent{}, s.precedents...), p)
	if err := s.writeFile(precedentsFile, next); err != nil {
		return err
	}
	s.precedents = next
	return nil
}

// AppendAppeal appends the appeal, then links its id into the original
// case's appeal history and flushes both files. The original's content
// fields are never touched.
func (s *FileStore) AppendAppeal(ctx context.Context, a model.AppealRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	nextAppeals := append(append([]model.AppealRecord{}, s.appeals...), a)
	if err := s.writeFile(appealsFile, nextAppeals); err != nil {
		return err
	}
	s.appeals = nextAppeals

	nextPrecedents := make([]model.Precedent, len(s.precedents))
	copy(nextPrecedents, s.precedents)
	for i := range nextPrecedents {
		if nextPrecedents[i].CaseID == a.OriginalCaseID {
			nextPrecedents[i].AppealHistory = append(
				append([]string{}, nextPrecedents[i].AppealHistory...), a.AppealID)
			break
		}
	}
	if err := s.writeFile(precedentsFile, nextPrecedents); err != nil {
		return err
	}
	s.precedents = nextPrecedents
	return nil
}

// ListPrecedents returns all precedents in insertion order.
func (s *FileStore) ListPrecedents(ctx context.Context) ([]model.Precedent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Precedent, len(s.precedents))
	copy(out, s.precedents)
	return out, nil
}

// GetCase returns one precedent by id.
func (s *FileStore) GetCase(ctx context.Context, caseID string) (model.Precedent, error) {
	if err := ctx.Err(); err != nil {
		return model.Precedent{}, err
	}
	for _, p := range s.precedents {
		if p.CaseID == caseID {
			return p, nil
		}
	}
	return model.Precedent{}, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
}

// ListAppeals returns the appeals filed against one case, in order.
func (s *FileStore) ListAppeals(ctx context.Context, caseID string) ([]model.AppealRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.AppealRecord
	for _, a := range s.appeals {
		if a.OriginalCaseID == caseID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Stats returns store totals.
func (s *FileStore) Stats(ctx context.Context) (model.ChronicleStats, error) {
	if err := ctx.Err(); err != nil {
		return model.ChronicleStats{}, err
	}
	return model.ChronicleStats{
		Precedents: len(s.precedents),
		Appeals:    len(s.appeals),
	}, nil
}

// Close is a no-op for the file store; every write is already durable.
func (s *FileStore) Close() error { return nil }

// writeFile writes v as JSON via temp file + fsync + rename + dir fsync.
// A crash at any point leaves either the old file or the new one, never a
// torn write.
func (s *FileStore) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("chronicle: marshal %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("chronicle: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chronicle: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chronicle: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("chronicle: close temp: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("chronicle: rename: %w", err)
	}

	// Sync the directory so the rename itself survives a crash.
	dirf, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("chronicle: open dir: %w", err)
	}
	defer func() { _ = dirf.Close() }()
	if err := dirf.Sync(); err != nil {
		return fmt.Errorf("chronicle: sync dir: %w", err)
	}
	return nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from validated config
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
