package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ruling values recorded in a precedent's verdict.
const (
	RulingApproved    = "APPROVED"
	RulingNullVerdict = "NULL_VERDICT"
	RulingUngoverned  = "UNGOVERNED"
)

// CaseVerdict is the verdict object stored inside a precedent.
type CaseVerdict struct {
	Ruling         string         `json:"ruling"`
	NullingAgents  []AgentName    `json:"nulling_agents,omitempty"`
	ReasonCodes    []string       `json:"reason_codes,omitempty"`
	ContextSummary string         `json:"context_summary,omitempty"`
	PrincipleCited string         `json:"principle_cited,omitempty"`
	Watermark      map[string]any `json:"watermark,omitempty"`
}

// Precedent is one persisted case-law entry. Null-verdicts and martial-law
// cases are stored through the same type with a distinguishing ruling, so
// refusals are first-class case law. Once written, a precedent's content
// never changes; only AppealHistory grows.
type Precedent struct {
	CaseID        string         `json:"case_id"`
	Question      string         `json:"question"`
	ContextVector []float64      `json:"context_vector,omitempty"` // Reserved; not populated.
	Deliberation  []Vote         `json:"deliberation"`
	Verdict       CaseVerdict    `json:"verdict"`
	AppealHistory []string       `json:"appeal_history"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	LoggedAt      time.Time      `json:"logged_at"`
}

// NullVerdictRecord is the refusal view persisted when a mission is not
// authorized. It is stored as a Precedent with ruling NULL_VERDICT.
type NullVerdictRecord struct {
	CaseID         string      `json:"case_id"`
	Mission        string      `json:"mission"`
	NullingAgents  []AgentName `json:"nulling_agents"`
	ReasonCodes    []string    `json:"reason_codes"`
	ContextSummary string      `json:"context_summary"`
	Timestamp      time.Time   `json:"timestamp"`
	VerdictType    string      `json:"verdict_type"` // Always NULL_VERDICT.
}

// AppealStatus classifies the outcome of an appeal relative to the
// original ruling.
type AppealStatus string

const (
	AppealUpheld     AppealStatus = "UPHELD"
	AppealOverturned AppealStatus = "OVERTURNED"
	AppealModified   AppealStatus = "MODIFIED"
)

// AppealRecord is one re-evaluation of an existing case under expanded
// context. It references but never mutates the original precedent.
type AppealRecord struct {
	AppealID             string         `json:"appeal_id"`
	OriginalCaseID       string         `json:"original_case_id"`
	OriginalRuling       string         `json:"original_ruling"`
	OriginalDeliberation []Vote         `json:"original_deliberation"`
	ExpandedContext      map[string]any `json:"expanded_context"`
	ConstraintChanges    map[string]any `json:"constraint_changes"`
	AppellantReason      string         `json:"appellant_reason"`
	NewDeliberation      []Vote         `json:"new_deliberation"`
	NewRuling            string         `json:"new_ruling"`
	ChronicleCitations   []string       `json:"chronicle_citations"`
	Timestamp            time.Time      `json:"timestamp"`
	AppealDepth          int            `json:"appeal_depth"`
	LiabilityMultiplier  float64        `json:"liability_multiplier"`
	Status               AppealStatus   `json:"status"`
}

// Citation is the view produced when a case is cited during an appeal
// re-evaluation.
type Citation struct {
	CitationID          string    `json:"citation_id"`
	CitedAt             time.Time `json:"cited_at"`
	Question            string    `json:"question"`
	Ruling              string    `json:"ruling"`
	DeliberationSummary int       `json:"deliberation_summary"` // Vote count.
	AppealCount         int       `json:"appeal_count"`
}

// Case ID prefixes. The date portion uses the local date at construction.
const (
	CasePrefixPrecedent = "CASE"
	CasePrefixNull      = "NULL"
	CasePrefixAppeal    = "APPEAL"
	CasePrefixVoid      = "CASE-VOID"
)

// NewCaseID returns a fresh time-prefixed case identifier:
// <prefix>-YYYY-MM-DD-<8 lowercase hex>.
func NewCaseID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().Format("2006-01-02"), suffix)
}
