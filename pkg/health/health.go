// Package health tracks server readiness and serves the probe endpoints.
package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Checker tracks readiness. Safe for concurrent use.
type Checker struct {
	state atomic.Int32
}

// NewChecker creates a Checker in the starting state.
func NewChecker() *Checker {
	return &Checker{}
}

// SetReady marks the server ready to accept traffic.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining marks the server as shutting down.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady reports whether the server is ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// Liveness always responds 200; use for livenessProbe (/healthz).
func (*Checker) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

// Readiness responds 200 when ready, 503 while starting or draining;
// use for readinessProbe (/readyz).
func (c *Checker) Readiness(w http.ResponseWriter, _ *http.Request) {
	if c.IsReady() {
		writeStatus(w, http.StatusOK, c.State())
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, c.State())
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
