package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Writer serializes Events as `event: <type>\ndata: <json>\n\n` frames to an
// http.ResponseWriter, flushing after every frame so the browser receives
// incremental updates rather than a buffered response.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for SSE: sets the response headers and returns a
// Writer. Returns an error if w does not support flushing, since without it
// the stream would buffer until completion.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one event frame and flushes it immediately.
func (sw *Writer) Send(e Event) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("sse: marshal payload for %q: %w", e.Type, err)
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// SetHeader sets a response header; must be called before the first Send.
func (sw *Writer) SetHeader(key, value string) {
	sw.w.Header().Set(key, value)
}
