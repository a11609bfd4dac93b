package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pitchline-ai/pitchline/pkg/record"
)

// registerCallRoutes adds the call-control and record-browsing endpoints.
func (a *App) registerCallRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /calls", a.handleStartCall)
	mux.HandleFunc("GET /calls", a.handleListCalls)
	mux.HandleFunc("GET /calls/active", a.handleActiveCall)
	mux.HandleFunc("POST /calls/active/end", a.handleEndCall)
	mux.HandleFunc("GET /calls/{id}", a.handleGetCall)
	mux.HandleFunc("POST /calls/{id}/transcript", a.handleAdoptTranscript)
}

type startCallRequest struct {
	CallID string `json:"call_id"`
}

func (a *App) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CallID == "" {
		writeError(w, http.StatusBadRequest, "body must be JSON with a non-empty call_id")
		return
	}

	if err := a.calls.Start(r.Context(), req.CallID); err != nil {
		if errors.Is(err, ErrCallActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		a.logger.Error("start call failed", "call_id", req.CallID, "err", err)
		writeError(w, http.StatusBadGateway, "could not open the voice stream")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"session_id": req.CallID})
}

func (a *App) handleEndCall(w http.ResponseWriter, r *http.Request) {
	report, err := a.calls.End(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoActiveCall) {
			writeError(w, http.StatusNotFound, "no active call")
			return
		}
		a.logger.Error("end call failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not finish the call")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": report.Record.SessionID,
		"transcript": report.Record.Transcript,
		"exchanges":  report.Record.ExchangeCount,
		"analysis":   report.Analysis,
		"degraded":   report.Degraded,
	})
}

func (a *App) handleActiveCall(w http.ResponseWriter, _ *http.Request) {
	snap, ok := a.calls.Active()
	if !ok {
		writeError(w, http.StatusNotFound, "no active call")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": snap.ID,
		"status":     snap.Status,
		"exchanges":  snap.ExchangeCount,
		"committed":  len(snap.Committed),
		"transcript": snap.Transcript,
	})
}

func (a *App) handleListCalls(w http.ResponseWriter, r *http.Request) {
	if a.guard == nil {
		writeError(w, http.StatusNotImplemented, "no storage configured")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, err := a.guard.ListCalls(r.Context(), limit)
	if err != nil {
		a.logger.Error("list calls failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list calls")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"calls": recs})
}

func (a *App) handleGetCall(w http.ResponseWriter, r *http.Request) {
	if a.guard == nil {
		writeError(w, http.StatusNotImplemented, "no storage configured")
		return
	}

	id := r.PathValue("id")
	rec, err := a.guard.GetCall(r.Context(), id)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown call")
			return
		}
		a.logger.Error("get call failed", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load the call")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

type adoptTranscriptRequest struct {
	Transcript string `json:"transcript"`
}

func (a *App) handleAdoptTranscript(w http.ResponseWriter, r *http.Request) {
	var req adoptTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Transcript == "" {
		writeError(w, http.StatusBadRequest, "body must be JSON with a non-empty transcript")
		return
	}

	id := r.PathValue("id")
	if err := a.calls.AdoptTranscript(r.Context(), id, req.Transcript); err != nil {
		if errors.Is(err, ErrUnknownCall) {
			writeError(w, http.StatusNotFound, "unknown call")
			return
		}
		a.logger.Error("adopt transcript failed", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not adopt the transcript")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
