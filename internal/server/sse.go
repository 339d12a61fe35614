package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/credibility-assessor/internal/assessment"
)

// sseRetry is the reconnect delay suggested to clients. A reconnecting client
// resumes from durable progress, so no replay buffer is kept.
const sseRetry = 5 * time.Second

// SSEWriter writes assessment progress as Server-Sent Events.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s := &SSEWriter{w: w, flusher: flusher}
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetry.Milliseconds()); err == nil {
		flusher.Flush()
	}
	return s, nil
}

// WriteEvent sends one event. An empty id omits the id field.
func (s *SSEWriter) WriteEvent(event, id string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}

	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteBatch sends a batch event identified by its batch index.
func (s *SSEWriter) WriteBatch(resp *assessment.BatchResponse) error {
	return s.WriteEvent(assessment.StepBatch, strconv.Itoa(resp.BatchIndex), resp)
}

// WriteError sends the same body a failed JSON request would carry.
func (s *SSEWriter) WriteError(err error) {
	s.WriteEvent("error", "", ErrorResponse{ //nolint:errcheck
		Success:  false,
		Error:    err.Error(),
		Category: string(categoryOf(err)),
	})
}

func (s *SSEWriter) WriteComplete(report *assessment.Report) {
	s.WriteEvent(assessment.StepComplete, "", map[string]any{ //nolint:errcheck
		"document_id":        report.DocumentID,
		"report_id":          report.ID,
		"overall_result":     report.OverallResult,
		"credibility_score":  report.CredibilityScore,
		"red_flag_triggered": report.RedFlagTriggered,
	})
}
