// Package health reports whether this instance can take a new practice
// call.
//
// Two endpoints are exposed:
//
//   - /healthz — liveness; a process that can serve HTTP answers 200.
//   - /readyz  — readiness; aggregates the registered [Check]s into one of
//     three states: "ready", "degraded", or "unavailable".
//
// Not every dependency failure should pull the instance out of rotation. A
// broken record store means finished calls are only kept in memory, but a
// live call still works end to end, so that check is marked [Check.Degradable]
// and a failure reports "degraded" at 200. An unreachable database or voice
// backend is fatal for new calls and reports "unavailable" at 503.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe so one stuck dependency
// cannot hold the whole /readyz response.
const probeTimeout = 5 * time.Second

// Readiness states, ordered from best to worst.
const (
	StateReady       = "ready"
	StateDegraded    = "degraded"
	StateUnavailable = "unavailable"
)

// Check is a named readiness probe against one dependency.
type Check struct {
	// Name keys this check in the JSON response ("database",
	// "record-store").
	Name string

	// Degradable marks a dependency whose failure the call pipeline can
	// absorb. A failing degradable check turns readiness "degraded" but
	// keeps the endpoint at 200 so orchestrators leave the instance in
	// rotation.
	Degradable bool

	// Probe verifies the dependency. It must respect context
	// cancellation; a nil error means the dependency is usable.
	Probe func(ctx context.Context) error
}

// checkResult is the per-check entry in the /readyz response body.
type checkResult struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// readiness is the /readyz response body.
type readiness struct {
	State  string                 `json:"state"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// liveness is the /healthz response body.
type liveness struct {
	State string `json:"state"`
}

// Handler serves the /healthz and /readyz endpoints. The check list is
// fixed at construction, so it is safe for concurrent use.
type Handler struct {
	checks []Check
}

// New builds a [Handler] that runs the given checks, in order, on every
// /readyz request.
func New(checks ...Check) *Handler {
	c := make([]Check, len(checks))
	copy(c, checks)
	return &Handler{checks: c}
}

// Healthz answers liveness: a process that reached this handler is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, liveness{State: StateReady})
}

// Readyz runs every check and folds the results into a single state.
// Any failing non-degradable check wins: the instance is "unavailable"
// and the response is 503. Failures confined to degradable checks report
// "degraded" at 200.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]checkResult, len(h.checks))
	state := StateReady

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Probe(ctx)
		cancel()

		if err == nil {
			results[c.Name] = checkResult{State: StateReady}
			continue
		}
		if c.Degradable {
			results[c.Name] = checkResult{State: StateDegraded, Error: err.Error()}
			if state == StateReady {
				state = StateDegraded
			}
			continue
		}
		results[c.Name] = checkResult{State: StateUnavailable, Error: err.Error()}
		state = StateUnavailable
	}

	status := http.StatusOK
	if state == StateUnavailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readiness{State: state, Checks: results})
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code, falling back to a
// plain-text 500 if encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"state":"error"}`, http.StatusInternalServerError)
	}
}
