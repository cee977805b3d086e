package model

import (
	"fmt"
	"time"
)

// MaxMissionLen caps the mission text accepted at the boundary. Oversized
// missions would be forwarded verbatim into every Reasoner prompt.
const MaxMissionLen = 32 * 1024 // 32 KB

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// MissionRequest is the request body for POST /v1/missions and the
// streaming variant. AllowUngoverned is honored only on the streaming
// endpoint (martial law over a live channel); the plain endpoint ignores
// it — Article 50 has its own route.
type MissionRequest struct {
	Mission         string         `json:"mission"`
	Context         map[string]any `json:"context,omitempty"`
	AllowUngoverned bool           `json:"allow_ungoverned,omitempty"`
}

// Validate checks boundary limits on a mission request.
func (r MissionRequest) Validate() error {
	if r.Mission == "" {
		return fmt.Errorf("mission is required")
	}
	if len(r.Mission) > MaxMissionLen {
		return fmt.Errorf("mission exceeds maximum length of %d bytes", MaxMissionLen)
	}
	return nil
}

// MissionStatus values reported at the HTTP boundary.
const (
	MissionStatusApproved       = "APPROVED"
	MissionStatusStopWorkOrder  = "STOP_WORK_ORDER"
	MissionStatusFailedTests    = "FAILED_TESTS"
	MissionStatusUnknownVerdict = "UNKNOWN_VERDICT"
	MissionStatusUngoverned     = "UNGOVERNED"
)

// Artifact is the generated output attached to an approved (or refused)
// mission outcome.
type Artifact struct {
	Code        string         `json:"code,omitempty"`
	HydraReport string         `json:"hydra_report,omitempty"`
	Watermark   map[string]any `json:"watermark,omitempty"`
}

// MissionOutcome is the boundary view of one mission run.
type MissionOutcome struct {
	Status      string          `json:"status"`
	Mission     string          `json:"mission"`
	CaseID      string          `json:"case_id,omitempty"`
	Votes       []Vote          `json:"votes"`
	Artifact    *Artifact       `json:"artifact,omitempty"`
	Verdict     *VerdictView    `json:"verdict,omitempty"`
	Message     string          `json:"message,omitempty"`
	TestResults map[string]any  `json:"test_results,omitempty"`
}

// VerdictView is the tagged boundary form of a deliberation verdict.
// Exactly one of the optional branches is populated for non-approved runs.
type VerdictView struct {
	Ruling         string      `json:"ruling"`
	NullingAgents  []AgentName `json:"nulling_agents,omitempty"`
	ReasonCodes    []string    `json:"reason_codes,omitempty"`
	ContextSummary string      `json:"context_summary,omitempty"`
	FindingsCount  int         `json:"findings_count,omitempty"`
}

// AppealRequest is the request body for POST /v1/appeals.
type AppealRequest struct {
	CaseID            string         `json:"case_id"`
	ExpandedContext   map[string]any `json:"expanded_context"`
	ConstraintChanges map[string]any `json:"constraint_changes"`
	AppellantReason   string         `json:"appellant_reason"`
}

// Validate checks required appeal fields.
func (r AppealRequest) Validate() error {
	if r.CaseID == "" {
		return fmt.Errorf("case_id is required")
	}
	if r.AppellantReason == "" {
		return fmt.Errorf("appellant_reason is required")
	}
	return nil
}

// AppealOutcome is the boundary view of one appeal run.
type AppealOutcome struct {
	AppealID            string       `json:"appeal_id"`
	OriginalCaseID      string       `json:"original_case_id"`
	OriginalRuling      string       `json:"original_ruling"`
	NewRuling           string       `json:"new_ruling"`
	Status              AppealStatus `json:"status"`
	AppealDepth         int          `json:"appeal_depth"`
	LiabilityMultiplier float64      `json:"liability_multiplier"`
	ChronicleCitations  []string     `json:"chronicle_citations"`
}

// HealthStatus is the response body for GET /health.
type HealthStatus struct {
	Status     string `json:"status"` // OPERATIONAL or KERNEL_INITIALIZING.
	Governance string `json:"governance"`
	Mode       string `json:"mode"`
	Version    string `json:"version,omitempty"`
	Chronicle  string `json:"chronicle,omitempty"`
}

// ChronicleStats summarizes the case-law store.
type ChronicleStats struct {
	Precedents int `json:"precedents"`
	Appeals    int `json:"appeals"`
}
