package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/RedBackRubbish/TheNest/internal/auth"
	"github.com/RedBackRubbish/TheNest/internal/chronicle"
	"github.com/RedBackRubbish/TheNest/internal/elder"
	"github.com/RedBackRubbish/TheNest/internal/events"
	"github.com/RedBackRubbish/TheNest/internal/integrity"
	"github.com/RedBackRubbish/TheNest/internal/model"
)

// HandlersDeps wires handler dependencies.
type HandlersDeps struct {
	Elder               *elder.Elder
	Broker              *events.Broker
	JWTMgr              *auth.JWTManager
	Keyring             *auth.Keyring
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// Handlers holds the HTTP handler set.
type Handlers struct {
	elder    *elder.Elder
	broker   *events.Broker
	jwtMgr   *auth.JWTManager
	keyring  *auth.Keyring
	logger   *slog.Logger
	version  string
	maxBody  int64
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	maxBody := deps.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		elder:   deps.Elder,
		broker:  deps.Broker,
		jwtMgr:  deps.JWTMgr,
		keyring: deps.Keyring,
		logger:  deps.Logger,
		version: deps.Version,
		maxBody: maxBody,
	}
}

// SeedAdmin registers the bootstrap keeper API key from configuration.
// No-op when the key is empty (open dev mode).
func (h *Handlers) SeedAdmin(apiKey string) error {
	if apiKey == "" {
		h.logger.Warn("auth: no admin API key configured, running open (dev mode)")
		return nil
	}
	if err := h.keyring.Seed("keeper", apiKey, auth.RoleKeeper); err != nil {
		return err
	}
	h.logger.Info("auth: keeper API key seeded")
	return nil
}

// HandleHealth reports gateway status. Governance is never optional, so
// the payload states it outright.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "OPERATIONAL"
	chronicleState := "ready"
	if _, err := h.elder.Chronicle().Stats(r.Context()); err != nil {
		status = "KERNEL_INITIALIZING"
		chronicleState = "unavailable"
	}
	writeJSON(w, r, http.StatusOK, model.HealthStatus{
		Status:     status,
		Governance: "ACTIVE",
		Mode:       "SOVEREIGN",
		Version:    h.version,
		Chronicle:  chronicleState,
	})
}

// HandleRunMission drives one mission through the Senate and returns the
// outcome. Persistence failures surface as 500s: the caller must never
// see a verdict that was not logged.
func (h *Handlers) HandleRunMission(w http.ResponseWriter, r *http.Request) {
	var req model.MissionRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	outcome, err := h.elder.RunMission(r.Context(), req.Mission, elder.RunOptions{})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, outcome)
}

// HandleChronicleSearch performs keyword-overlap precedent retrieval.
func (h *Handlers) HandleChronicleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "query parameter q is required", nil)
		return
	}

	results, err := h.elder.Chronicle().RetrievePrecedent(r.Context(), query)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// HandleGetCase returns one precedent by case id.
func (h *Handlers) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("case_id")
	p, err := h.elder.Chronicle().GetCaseByID(r.Context(), caseID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// HandleGetAppeals returns the appeals filed against one case.
func (h *Handlers) HandleGetAppeals(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("case_id")
	// A case with no appeals is a 200 with an empty list, but an absent
	// case is a 404.
	if _, err := h.elder.Chronicle().GetCaseByID(r.Context(), caseID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	appeals, err := h.elder.Chronicle().GetAppealsForCase(r.Context(), caseID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if appeals == nil {
		appeals = []model.AppealRecord{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"case_id":      caseID,
		"appeal_count": len(appeals),
		"appeals":      appeals,
	})
}

// HandleChronicleStats returns store totals.
func (h *Handlers) HandleChronicleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.elder.Chronicle().Stats(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleChronicleIntegrity computes a Merkle root over the full case-law
// set. Two gateways holding the same chronicle produce the same root;
// any tampered record changes it.
func (h *Handlers) HandleChronicleIntegrity(w http.ResponseWriter, r *http.Request) {
	all, err := h.elder.Chronicle().AllPrecedents(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	leaves := make([]string, 0, len(all))
	for _, p := range all {
		leaves = append(leaves, integrity.ComputeCaseHash(p))
	}
	sort.Strings(leaves)

	writeJSON(w, r, http.StatusOK, map[string]any{
		"merkle_root": integrity.BuildMerkleRoot(leaves),
		"leaf_count":  len(leaves),
		"algorithm":   "sha256-rfc6962",
		"computed_at": time.Now().UTC(),
	})
}

// HandleAppeal files an appeal against an existing case.
func (h *Handlers) HandleAppeal(w http.ResponseWriter, r *http.Request) {
	var req model.AppealRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	outcome, err := h.elder.ProcessAppeal(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, outcome)
}

// HandleArticle50 invokes martial governance: no deliberation, KEEPER
// liability, watermarked artifact.
func (h *Handlers) HandleArticle50(w http.ResponseWriter, r *http.Request) {
	var req model.MissionRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	outcome, err := h.elder.InvokeArticle50(r.Context(), req.Mission)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, outcome)
}

// HandleIssueToken exchanges an identity + API key for a JWT.
func (h *Handlers) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
		APIKey   string `json:"api_key"`
	}
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	role, ok := h.keyring.Verify(req.Identity, req.APIKey)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials", nil)
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(req.Identity, role)
	if err != nil {
		h.logger.Error("auth: token issue failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "token issue failed", nil)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt,
		"role":       role,
	})
}

// writeDomainError maps the error taxonomy to HTTP status codes.
// Deliberation internals are never exposed.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chronicle.ErrCaseNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "case not found", nil)
	case errors.Is(err, chronicle.ErrAccess):
		h.logger.Error("access violation", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "chronicle access violation", nil)
	case errors.Is(err, chronicle.ErrPersistence):
		h.logger.Error("persistence failure", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "verdict could not be persisted", nil)
	case errors.Is(err, r.Context().Err()):
		// Client went away; nothing useful to write.
	default:
		h.logger.Error("request failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error", nil)
	}
}
