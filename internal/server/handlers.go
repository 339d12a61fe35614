package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; documents are capped well below this after cleaning.
const maxBodyBytes = 4 << 20

// CreateDocumentRequest is the body of POST /documents.
type CreateDocumentRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Filename  string `json:"filename" validate:"max=255"`
	Text      string `json:"text" validate:"required"`
	Truncated bool   `json:"truncated"`
}

// DocumentResponse describes a stored document without echoing its text.
type DocumentResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Filename   string `json:"filename,omitempty"`
	Characters int    `json:"characters"`
	Truncated  bool   `json:"truncated"`
}

// QuestionnaireResponse summarizes a normalized questionnaire.
type QuestionnaireResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Sections  int    `json:"sections"`
	Questions int    `json:"questions"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateDocument stores a plain-text document for later assessment
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	doc, err := s.svc.AddDocument(r.Context(), req.UserID, req.Filename, req.Text, req.Truncated)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, DocumentResponse{
		ID:         doc.ID,
		UserID:     doc.UserID,
		Filename:   doc.Filename,
		Characters: len([]rune(doc.Text)),
		Truncated:  doc.Truncated,
	})
}

// handleCreateQuestionnaire normalizes and stores a questionnaire posted in any accepted shape
func (s *Server) handleCreateQuestionnaire(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}

	q, err := s.svc.AddQuestionnaire(r.Context(), body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, QuestionnaireResponse{
		ID:        q.ID,
		Name:      q.Name,
		Sections:  len(q.Sections),
		Questions: q.QuestionCount(),
	})
}

// decodeAndValidate decodes a JSON body into dst and runs struct validation.
// It writes the error response and returns false on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	return s.decodeJSON(w, r, dst) && s.validate(w, dst)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		s.writeError(w, &ErrValidation{Field: "body", Message: msg})
		return false
	}
	return true
}

func (s *Server) validate(w http.ResponseWriter, v any) bool {
	if err := s.validator.Struct(v); err != nil {
		s.writeError(w, validationError(err))
		return false
	}
	return true
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes err with the status and category derived from it
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.jsonResponse(w, status, ErrorResponse{
		Success:  false,
		Error:    err.Error(),
		Category: string(categoryOf(err)),
	})
}
