package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zojak-ves/satview/internal/metrics"
)

const writeTimeout = 30 * time.Second

// eventWriter writes SSE frames to one connection and flushes after each.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	messages int
	bytes    int
}

// data sends v as one "data:" event.
func (e *eventWriter) data(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := e.write("data: %s\n\n", payload); err != nil {
		return err
	}
	e.messages++
	metrics.IncStreamMessages()
	return nil
}

// keepalive sends an SSE comment, which clients ignore.
func (e *eventWriter) keepalive() error {
	return e.write(":\n\n")
}

func (e *eventWriter) write(format string, args ...any) error {
	if err := e.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		e.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := fmt.Fprintf(e.w, format, args...)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	e.flusher.Flush()
	e.bytes += n
	metrics.AddStreamBytes(n)
	return nil
}
