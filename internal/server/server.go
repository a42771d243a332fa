// Package server wires the statesync HTTP surface: the mutating action
// endpoint, the SSE streaming endpoint, session operations, and the
// health probes.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/txn2/statesync/pkg/action"
	"github.com/txn2/statesync/pkg/events"
	"github.com/txn2/statesync/pkg/health"
	"github.com/txn2/statesync/pkg/session"
)

// Version is the release version of the statesync server.
const Version = "0.1.0"

// NonceHeader carries the proof token authorizing mutating calls.
const NonceHeader = "X-Statesync-Nonce"

// StreamConfig tunes the streaming endpoint's poll loop.
type StreamConfig struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	BatchSize         int
	DefaultChannel    string
}

// applyDefaults fills unset stream tunables.
func (c *StreamConfig) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.DefaultChannel == "" {
		c.DefaultChannel = "default"
	}
}

// Config configures a Server.
type Config struct {
	Sessions    *session.Manager
	Dispatcher  *action.Dispatcher
	Log         events.Log
	Health      *health.Checker
	IdentityKey []byte
	Stream      StreamConfig
}

// Server holds the dependencies needed by the HTTP handlers.
type Server struct {
	sessions    *session.Manager
	dispatcher  *action.Dispatcher
	log         events.Log
	health      *health.Checker
	identityKey []byte
	stream      StreamConfig
}

// New creates a Server.
func New(cfg Config) *Server {
	cfg.Stream.applyDefaults()
	if cfg.Health == nil {
		cfg.Health = health.NewChecker()
	}
	return &Server{
		sessions:    cfg.Sessions,
		dispatcher:  cfg.Dispatcher,
		log:         cfg.Log,
		health:      cfg.Health,
		identityKey: cfg.IdentityKey,
		stream:      cfg.Stream,
	}
}

// Router returns a chi.Router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.health.Liveness)
	r.Get("/readyz", s.health.Readiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/action", s.handleAction)
		r.Get("/stream", s.handleStream)
		r.Get("/session/nonce", s.handleNonce)
		r.Post("/session/login", s.handleLogin)
		r.Post("/session/logout", s.handleLogout)
		r.Delete("/session", s.handleDestroy)
	})

	return r
}

// envelope is the JSON body of every non-stream API response.
type envelope struct {
	Success   bool           `json:"success"`
	State     map[string]any `json:"state,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// writeSuccess writes a 200 success envelope.
func writeSuccess(w http.ResponseWriter, state map[string]any, result any) {
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		State:     state,
		Result:    result,
		Timestamp: time.Now().Unix(),
	})
}

// writeFailure writes a failure envelope with the given status.
func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{
		Success:   false,
		Error:     msg,
		Timestamp: time.Now().Unix(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
