package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/forms"
)

type formTemplateResponse struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description *string       `json:"description,omitempty"`
	Fields      []forms.Field `json:"fields"`
	CreatedBy   string        `json:"createdBy,omitempty"`
	CreatedAt   *time.Time    `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time    `json:"updatedAt,omitempty"`
}

type formTemplateRequest struct {
	Title       string        `json:"title" validate:"notblank,max=200"`
	Description string        `json:"description" validate:"max=2000"`
	Fields      []forms.Field `json:"fields" validate:"notblank,max=100,dive"`
}

func (s *Server) handleGetFormTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.Queries.ListFormTemplates(r.Context(), queryLimit(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	resp := make([]formTemplateResponse, 0, len(templates))
	for _, template := range templates {
		resp = append(resp, mapFormTemplate(template))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateFormTemplate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req formTemplateRequest
	if !decodeValid(w, r, &req) {
		return
	}
	fields, ok := encodeFields(w, req.Fields)
	if !ok {
		return
	}

	template, err := s.store.Queries.CreateFormTemplate(r.Context(), db.CreateFormTemplateParams{
		ID:          pgUUID(uuid.New()),
		Title:       strings.TrimSpace(req.Title),
		Description: pgText(req.Description),
		Fields:      fields,
		CreatedBy:   pgUUIDFromString(claims.UserID),
		CreatedAt:   nowPgTime(),
		UpdatedAt:   nowPgTime(),
	})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapFormTemplate(template))
}

func (s *Server) handleGetFormTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, ok := urlUUID(w, r, "templateId", "template_id")
	if !ok {
		return
	}

	template, err := s.store.Queries.GetFormTemplate(r.Context(), templateID)
	if err != nil {
		s.lookupError(w, r, err, "template_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapFormTemplate(template))
}

func (s *Server) handlePatchFormTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, ok := urlUUID(w, r, "templateId", "template_id")
	if !ok {
		return
	}
	var req formTemplateRequest
	if !decodeValid(w, r, &req) {
		return
	}
	fields, ok := encodeFields(w, req.Fields)
	if !ok {
		return
	}

	template, err := s.store.Queries.UpdateFormTemplate(r.Context(), db.UpdateFormTemplateParams{
		ID:          templateID,
		Title:       strings.TrimSpace(req.Title),
		Description: pgText(req.Description),
		Fields:      fields,
		UpdatedAt:   nowPgTime(),
	})
	if err != nil {
		s.lookupError(w, r, err, "template_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapFormTemplate(template))
}

func (s *Server) handleDeleteFormTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, ok := urlUUID(w, r, "templateId", "template_id")
	if !ok {
		return
	}

	deleted, err := s.store.Queries.DeleteFormTemplate(r.Context(), templateID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if deleted == 0 {
		writeError(w, http.StatusNotFound, "template_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// encodeFields checks field definitions and serializes them for storage.
func encodeFields(w http.ResponseWriter, fields []forms.Field) ([]byte, bool) {
	if err := forms.ValidateFields(fields); err != nil {
		var fieldErr *forms.FieldError
		if errors.As(err, &fieldErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_fields", "message": fieldErr.Error()})
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_fields")
		return nil, false
	}
	raw, err := forms.Encode(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_fields")
		return nil, false
	}
	return raw, true
}

func decodeFields(raw []byte) []forms.Field {
	fields, err := forms.Decode(raw)
	if err != nil || fields == nil {
		return []forms.Field{}
	}
	return fields
}

func mapFormTemplate(template db.FormTemplate) formTemplateResponse {
	return formTemplateResponse{
		ID:          uuidString(template.ID),
		Title:       template.Title,
		Description: textPtr(template.Description),
		Fields:      decodeFields(template.Fields),
		CreatedBy:   uuidString(template.CreatedBy),
		CreatedAt:   timePtr(template.CreatedAt),
		UpdatedAt:   timePtr(template.UpdatedAt),
	}
}
