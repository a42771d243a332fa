package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/txn2/statesync/pkg/events"
)

// streamWriter wraps an http.ResponseWriter for SSE streaming.
type streamWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// newStreamWriter sets SSE response headers and returns a writer, or an
// error when the underlying writer cannot flush.
func newStreamWriter(w http.ResponseWriter) (*streamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flusher interface")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &streamWriter{w: w, flusher: flusher}, nil
}

// writeFrame emits one SSE frame. An id of zero omits the id line, which is
// how control frames stay out of the client's resume cursor.
func (w *streamWriter) writeFrame(id int64, event, data string) error {
	if id > 0 {
		if _, err := fmt.Fprintf(w.w, "id: %d\n", id); err != nil {
			return fmt.Errorf("write event id: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w.w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write event name: %w", err)
	}

	// Each line of a multi-line payload needs its own data prefix.
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w.w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write data line: %w", err)
		}
	}

	if _, err := w.w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// writeEvent delivers a stored event under its channel name.
func (w *streamWriter) writeEvent(ev events.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return w.writeFrame(ev.ID, ev.Channel, string(data))
}

// writeControl sends a connection-lifecycle frame without an id line.
func (w *streamWriter) writeControl(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal control payload: %w", err)
	}
	return w.writeFrame(0, event, string(data))
}

// writeError sends an error frame. The caller closes the stream afterwards.
func (w *streamWriter) writeError(message string) error {
	return w.writeControl("error", map[string]string{"message": message})
}
