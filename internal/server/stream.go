package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// handleStream serves the resumable SSE event feed for one session.
//
// The stream never creates sessions: callers must already hold a valid
// token, so a cold GET from a crawler cannot allocate store rows.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sc := s.sessions.Resolve(r)

	sw, err := newStreamWriter(w)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if !sc.Active() {
		_ = sw.writeError("no active session")
		return
	}
	sessionID := sc.SessionID()

	channels := parseChannels(r.URL.Query().Get("channels"), s.stream.DefaultChannel)
	cursor := parseCursor(r.Header.Get("Last-Event-ID"))

	if err := sw.writeControl("connected", map[string]any{
		"channels": channels,
		"cursor":   cursor,
	}); err != nil {
		return
	}

	lastWrite := time.Now()
	ticker := time.NewTicker(s.stream.PollInterval)
	defer ticker.Stop()

	for {
		batch, err := s.log.Poll(r.Context(), cursor, channels, s.stream.BatchSize)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			// Transient store failure: keep the connection and retry on
			// the next tick.
			slog.Warn("event poll failed", "session_id", sessionID, "error", err)
		}

		for _, ev := range batch {
			// The cursor advances past filtered events too, so a
			// reconnect never replays another session's traffic.
			cursor = ev.ID
			if !ev.VisibleTo(sessionID) {
				continue
			}
			if err := sw.writeEvent(ev); err != nil {
				return
			}
			lastWrite = time.Now()
		}

		if time.Since(lastWrite) >= s.stream.HeartbeatInterval {
			if err := sw.writeControl("heartbeat", map[string]any{
				"time": time.Now().Unix(),
			}); err != nil {
				return
			}
			lastWrite = time.Now()
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// parseChannels splits the comma-separated channel list, falling back to
// the configured default channel when the query is empty.
func parseChannels(raw, fallback string) []string {
	channels := make([]string, 0, 4)
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			channels = append(channels, c)
		}
	}
	if len(channels) == 0 {
		channels = append(channels, fallback)
	}
	return channels
}

// parseCursor reads the resume position from Last-Event-ID. Anything
// unparsable restarts from the beginning of the retained log.
func parseCursor(raw string) int64 {
	if raw == "" {
		return 0
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		return 0
	}
	return cursor
}
