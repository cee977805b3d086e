package chronicle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

// Store is the append-only persistence backend behind a Chronicle.
// Implementations must make each append durable (fsync or the database
// equivalent) before returning. There are no update or delete operations.
type Store interface {
	// AppendPrecedent durably appends one precedent.
	AppendPrecedent(ctx context.Context, p model.Precedent) error
	// AppendAppeal durably appends one appeal and links its id into the
	// original case's appeal history.
	AppendAppeal(ctx context.Context, a model.AppealRecord) error
	// ListPrecedents returns all precedents in insertion order.
	ListPrecedents(ctx context.Context) ([]model.Precedent, error)
	// GetCase returns one precedent, or ErrCaseNotFound.
	GetCase(ctx context.Context, caseID string) (model.Precedent, error)
	// ListAppeals returns the appeals filed against one case, in order.
	ListAppeals(ctx context.Context, caseID string) ([]model.AppealRecord, error)
	// Stats returns store totals.
	Stats(ctx context.Context) (model.ChronicleStats, error)
	// Close releases backend resources.
	Close() error
}

// Chronicle is the role-gated front of the case-law store. All access goes
// through it: writes are exclusive and require a WRITER handle, reads are
// shared. A single Chronicle is shared across requests.
type Chronicle struct {
	store   Store
	secured bool
	logger  *slog.Logger

	mu sync.RWMutex
}

// New wraps a Store in the role-gating layer. When secured is true (the
// default in production, CHRONICLE_SECURED), any write without a WRITER
// handle fails with an access violation.
func New(store Store, secured bool, logger *slog.Logger) *Chronicle {
	return &Chronicle{store: store, secured: secured, logger: logger}
}

// GetReaderHandle issues a READER handle for any agent.
func (c *Chronicle) GetReaderHandle(agentName string) Handle {
	return NewReaderHandle(agentName)
}

// GetWriterHandle issues a WRITER handle, only to the Elder.
func (c *Chronicle) GetWriterHandle(caller string) (Handle, error) {
	h, err := NewWriterHandle(caller)
	if err != nil {
		c.logger.Warn("chronicle: writer handle refused", "caller", caller)
		return Handle{}, err
	}
	return h, nil
}

// checkWrite enforces the write gate. In secured mode a missing or
// read-only handle is an access violation; the violation is never
// silently swallowed.
func (c *Chronicle) checkWrite(h Handle, op string) error {
	if c.secured && !h.CanWrite() {
		owner := h.owner
		if owner == "" {
			owner = "anonymous"
		}
		return accessError(owner, op)
	}
	return nil
}

// WritePrecedent appends a precedent and returns its case id.
func (c *Chronicle) WritePrecedent(ctx context.Context, p model.Precedent, h Handle) (string, error) {
	if err := c.checkWrite(h, "writePrecedent"); err != nil {
		return "", err
	}
	if p.CaseID == "" {
		p.CaseID = model.NewCaseID(model.CasePrefixPrecedent)
	}
	if p.LoggedAt.IsZero() {
		p.LoggedAt = time.Now().UTC()
	}
	if p.AppealHistory == nil {
		p.AppealHistory = []string{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.AppendPrecedent(ctx, p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	c.logger.Info("chronicle: precedent logged", "case_id", p.CaseID, "ruling", p.Verdict.Ruling)
	return p.CaseID, nil
}

// PersistNullVerdict stores a refusal as first-class case law: the record
// is rewritten as a precedent with ruling NULL_VERDICT and appended.
func (c *Chronicle) PersistNullVerdict(ctx context.Context, rec model.NullVerdictRecord, h Handle) (string, error) {
	if err := c.checkWrite(h, "persistNullVerdict"); err != nil {
		return "", err
	}
	if rec.CaseID == "" {
		rec.CaseID = model.NewCaseID(model.CasePrefixNull)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	p := model.Precedent{
		CaseID:   rec.CaseID,
		Question: rec.Mission,
		Verdict: model.CaseVerdict{
			Ruling:         model.RulingNullVerdict,
			NullingAgents:  rec.NullingAgents,
			ReasonCodes:    rec.ReasonCodes,
			ContextSummary: rec.ContextSummary,
		},
		AppealHistory: []string{},
		LoggedAt:      rec.Timestamp,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.AppendPrecedent(ctx, p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	c.logger.Info("chronicle: null verdict logged", "case_id", rec.CaseID, "nulling_agents", rec.NullingAgents)
	return rec.CaseID, nil
}

// PersistAppeal appends an appeal and links it into the original case's
// appeal history — the only permitted mutation of an existing precedent,
// semantically an append to a linked list.
func (c *Chronicle) PersistAppeal(ctx context.Context, a model.AppealRecord, h Handle) (string, error) {
	if err := c.checkWrite(h, "persistAppeal"); err != nil {
		return "", err
	}
	if a.AppealID == "" {
		a.AppealID = model.NewCaseID(model.CasePrefixAppeal)
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.store.GetCase(ctx, a.OriginalCaseID); err != nil {
		return "", err
	}
	if err := c.store.AppendAppeal(ctx, a); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	c.logger.Info("chronicle: appeal logged", "appeal_id", a.AppealID, "case_id", a.OriginalCaseID, "status", a.Status)
	return a.AppealID, nil
}

// RetrievePrecedent returns every precedent whose question shares at least
// one whitespace-delimited, lowercased token with the query, in insertion
// order. Intentionally crude; a vector index can replace it behind this
// method without touching the rest of the design.
func (c *Chronicle) RetrievePrecedent(ctx context.Context, query string) ([]model.Precedent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all, err := c.store.ListPrecedents(ctx)
	if err != nil {
		return nil, err
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	var matches []model.Precedent
	for _, p := range all {
		if overlaps(tokenize(p.Question), queryTokens) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// AllPrecedents returns every precedent in insertion order. Used by the
// integrity endpoint to hash the full case-law set under one read lock.
func (c *Chronicle) AllPrecedents(ctx context.Context) ([]model.Precedent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.ListPrecedents(ctx)
}

// GetCaseByID returns one precedent, or ErrCaseNotFound.
func (c *Chronicle) GetCaseByID(ctx context.Context, caseID string) (model.Precedent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.GetCase(ctx, caseID)
}

// GetAppealsForCase returns the appeals filed against one case.
func (c *Chronicle) GetAppealsForCase(ctx context.Context, caseID string) ([]model.AppealRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.ListAppeals(ctx, caseID)
}

// GetAppealCount returns the number of appeals filed against one case.
func (c *Chronicle) GetAppealCount(ctx context.Context, caseID string) (int, error) {
	appeals, err := c.GetAppealsForCase(ctx, caseID)
	if err != nil {
		return 0, err
	}
	return len(appeals), nil
}

// CitePrecedent produces the citation view of a case, as recorded in an
// appeal's chronicle_citations.
func (c *Chronicle) CitePrecedent(ctx context.Context, caseID string) (model.Citation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, err := c.store.GetCase(ctx, caseID)
	if err != nil {
		return model.Citation{}, err
	}
	return model.Citation{
		CitationID:          p.CaseID,
		CitedAt:             time.Now().UTC(),
		Question:            p.Question,
		Ruling:              p.Verdict.Ruling,
		DeliberationSummary: len(p.Deliberation),
		AppealCount:         len(p.AppealHistory),
	}, nil
}

// Stats returns store totals.
func (c *Chronicle) Stats(ctx context.Context) (model.ChronicleStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Stats(ctx)
}

// Close releases the backing store.
func (c *Chronicle) Close() error {
	return c.store.Close()
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		tokens[f] = struct{}{}
	}
	return tokens
}

func overlaps(a, b map[string]struct{}) bool {
	for t := range a {
		if _, ok := b[t]; ok {
			return true
		}
	}
	return false
}
