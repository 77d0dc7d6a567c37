package sse

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noFlushResponseWriter implements http.ResponseWriter but deliberately not
// http.Flusher, to exercise NewWriter's capability check.
type noFlushResponseWriter struct{ header http.Header }

func (w *noFlushResponseWriter) Header() http.Header         { return w.header }
func (w *noFlushResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w *noFlushResponseWriter) WriteHeader(int)             {}

func TestNewWriterRejectsAResponseWriterThatCannotFlush(t *testing.T) {
	t.Parallel()
	_, err := NewWriter(&noFlushResponseWriter{header: make(http.Header)})
	assert.Error(t, err)
}

func TestNewWriterSetsTheStreamingResponseHeaders(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	_, err := NewWriter(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestSendWritesAnEventAndDataFrameAndFlushesImmediately(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Send(Event{Type: TextDelta, Payload: TextDeltaPayload{Text: "hello"}}))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: text_delta\ndata: "))
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	assert.Contains(t, body, `"text":"hello"`)
	assert.True(t, rec.Flushed)
}

func TestSendEmitsMultipleFramesInOrder(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Send(Event{Type: SessionConfig, Payload: SessionConfigPayload{MaxTurns: 25}}))
	require.NoError(t, w.Send(Event{Type: MessageComplete, Payload: MessageCompletePayload{StopReason: "end_turn"}}))

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0], "event: session_config")
	assert.Contains(t, frames[1], "event: message_complete")
}

func TestSetHeaderSetsAResponseHeaderBeforeTheFirstSend(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	w.SetHeader("X-Trace-Id", "trace-123")
	assert.Equal(t, "trace-123", rec.Header().Get("X-Trace-Id"))
}
