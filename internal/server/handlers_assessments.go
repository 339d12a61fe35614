package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/credibility-assessor/internal/assessment"
)

// FinalizeRequest is the body of POST /assessments/{document_id}/finalize.
type FinalizeRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// handleRunBatch runs one batch for a stateless driver that loops until completed is true
func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.batchRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.svc.RunBatch(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleStream runs every remaining batch in-process and streams progress via SSE
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.batchRequest(w, r)
	if !ok {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.writeError(w, err)
		return
	}

	report, err := s.runner.Run(r.Context(), req, func(event assessment.ProgressEvent) {
		resp, ok := event.Content.(*assessment.BatchResponse)
		if event.Step != assessment.StepBatch || !ok {
			return
		}
		if err := sse.WriteBatch(resp); err != nil {
			s.logger.Warn("failed to write SSE event", zap.Error(err))
		}
	})
	if err != nil {
		sse.WriteError(err)
		return
	}
	sse.WriteComplete(report)
}

// handleProgress returns the durable progress record of an assessment
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, &ErrValidation{Field: "user_id", Message: "required"})
		return
	}

	progress, err := s.svc.Progress(r.Context(), r.PathValue("document_id"), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, progress)
}

// handleFinalize synthesizes (or returns) the report of a fully processed assessment
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	report, err := s.svc.Finalize(r.Context(), r.PathValue("document_id"), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// handleGetReport returns a stored report
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// batchRequest decodes a batch body and binds it to the document in the path.
func (s *Server) batchRequest(w http.ResponseWriter, r *http.Request) (assessment.BatchRequest, bool) {
	var req assessment.BatchRequest
	if !s.decodeJSON(w, r, &req) {
		return req, false
	}
	req.DocumentID = r.PathValue("document_id")
	return req, s.validate(w, &req)
}
