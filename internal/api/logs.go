package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
)

// handleStreamLogs streams a running sweep's progress as server-sent events.
// Log lines (result rows and failure blocks) are plain data events; every
// collected sample is also sent as a JSON "sample" event.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	sw, ok := s.lookupSweep(w, r)
	if !ok {
		return
	}
	id := sw.ID

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// A finished sweep has nothing left to stream; its log is in the history.
	if model.IsTerminal(sw.Status) {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribe on a topic closed since the status check returns a closed
	// channel, so the loop below exits at once.
	ch, unsub := s.engine.Broker().Subscribe(id)
	defer unsub()
	logStreamsActive.Inc()
	defer logStreamsActive.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return // client gone
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// logHistoryLine is a single log line in the history response.
type logHistoryLine struct {
	Seq       int    `json:"seq"`
	Line      string `json:"line"`
	CreatedAt string `json:"created_at"`
}

// logHistoryResponse is the JSON response for GET /v1/sweeps/:id/logs/history.
type logHistoryResponse struct {
	SweepID string           `json:"sweep_id"`
	Lines   []logHistoryLine `json:"lines"`
}

func (s *Server) handleGetLogHistory(w http.ResponseWriter, r *http.Request) {
	sw, ok := s.lookupSweep(w, r)
	if !ok {
		return
	}
	id := sw.ID

	logLines, err := s.store.GetLogLines(r.Context(), id)
	if err != nil {
		s.logger.Error("get log lines", "sweep_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get log lines")
		return
	}

	lines := make([]logHistoryLine, len(logLines))
	for i, l := range logLines {
		lines[i] = logHistoryLine{
			Seq:       l.Seq,
			Line:      l.Line,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		}
	}

	s.writeJSON(w, http.StatusOK, logHistoryResponse{
		SweepID: id,
		Lines:   lines,
	})
}

func writeEvent(w http.ResponseWriter, ev engine.Event) error {
	if ev.Kind == engine.EventSample && ev.Sample != nil {
		data, err := json.Marshal(sampleToResponse(*ev.Sample))
		if err != nil {
			return err
		}
		return writeSSEEvent(w, "sample", string(data))
	}
	return writeSSEData(w, ev.Line)
}

// writeSSEData writes a log line as an SSE data event. Multi-line strings are
// split so that each segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
