package server

import (
	"net/http"
	"time"

	"github.com/RedBackRubbish/TheNest/internal/elder"
	"github.com/RedBackRubbish/TheNest/internal/events"
	"github.com/RedBackRubbish/TheNest/internal/model"
)

// HandleSubscribe handles GET /v1/events (SSE firehose). Every event from
// every deliberation is broadcast; observers filter by mission_id.
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "event streaming not configured", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Disable the server's WriteTimeout for this long-lived connection.
	// Without this, idle SSE connections are killed after WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(events.FormatSSE(event)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleMissionStream handles POST /v1/missions/stream. It runs one
// deliberation and streams its stage events as SSE frames, closing with
// a final_verdict frame carrying the full outcome. Events stream as the
// pipeline progresses; the verdict frame is always last.
func (h *Handlers) HandleMissionStream(w http.ResponseWriter, r *http.Request) {
	var req model.MissionRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	// Per-request sink. Drop-on-full like the broker: the pipeline never
	// blocks on a slow client.
	eventCh := make(chan model.Event, 64)
	sink := events.EmitterFunc(func(e model.Event) {
		select {
		case eventCh <- e:
		default:
		}
	})

	type result struct {
		outcome *model.MissionOutcome
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		outcome, err := h.elder.RunMission(r.Context(), req.Mission, elder.RunOptions{
			Sink:            sink,
			AllowUngoverned: req.AllowUngoverned,
		})
		resultCh <- result{outcome, err}
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Client disconnected; RunMission observes the same context.
			<-resultCh
			return
		case e := <-eventCh:
			if _, err := w.Write(events.FormatSSE(e)); err != nil {
				<-resultCh
				return
			}
			flusher.Flush()
		case res := <-resultCh:
			// Flush any events buffered before the result landed.
			for {
				select {
				case e := <-eventCh:
					if _, err := w.Write(events.FormatSSE(e)); err != nil {
						return
					}
				default:
					h.writeFinalFrame(w, flusher, res.outcome, res.err)
					return
				}
			}
		}
	}
}

// writeFinalFrame terminates a mission stream with a final_verdict frame,
// or an error frame when the run failed outright.
func (h *Handlers) writeFinalFrame(w http.ResponseWriter, flusher http.Flusher, outcome *model.MissionOutcome, err error) {
	if err != nil {
		h.logger.Error("mission stream failed", "error", err)
		frame := events.FormatSSE(model.Event{
			Type:      model.EventError,
			Payload:   map[string]any{"message": "deliberation failed"},
			EmittedAt: time.Now().UTC(),
		})
		_, _ = w.Write(frame)
		flusher.Flush()
		return
	}
	frame := events.FormatSSE(model.Event{
		Type:      model.EventFinalVerdict,
		MissionID: outcome.CaseID,
		Payload:   map[string]any{"outcome": outcome},
		EmittedAt: time.Now().UTC(),
	})
	_, _ = w.Write(frame)
	flusher.Flush()
}
