package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/forms"
	"semaphore/reports/internal/operations"
)

type formResponse struct {
	ID          string        `json:"id"`
	ClassID     string        `json:"classId"`
	TemplateID  string        `json:"templateId,omitempty"`
	Title       string        `json:"title"`
	Description *string       `json:"description,omitempty"`
	Fields      []forms.Field `json:"fields"`
	Status      string        `json:"status"`
	DueAt       *time.Time    `json:"dueAt,omitempty"`
	CreatedBy   string        `json:"createdBy,omitempty"`
	CreatedAt   *time.Time    `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time    `json:"updatedAt,omitempty"`
}

type createFormRequest struct {
	ClassID     string        `json:"classId" validate:"required,uuid"`
	TemplateID  *string       `json:"templateId" validate:"omitempty,uuid"`
	Title       string        `json:"title" validate:"max=200"`
	Description string        `json:"description" validate:"max=2000"`
	Fields      []forms.Field `json:"fields" validate:"omitempty,max=100,dive"`
	Status      string        `json:"status" validate:"omitempty,oneof=draft published closed"`
	DueAt       *time.Time    `json:"dueAt"`
}

type patchFormRequest struct {
	Title       *string       `json:"title" validate:"omitempty,max=200"`
	Description *string       `json:"description" validate:"omitempty,max=2000"`
	Fields      []forms.Field `json:"fields" validate:"omitempty,max=100,dive"`
	Status      *string       `json:"status" validate:"omitempty,oneof=draft published closed"`
	DueAt       *time.Time    `json:"dueAt"`
}

type distributeResponse struct {
	Form      formResponse           `json:"form"`
	Created   int                    `json:"created"`
	Skipped   int                    `json:"skipped"`
	Instances []formInstanceResponse `json:"instances"`
}

type formStatsResponse struct {
	FormID         string             `json:"formId"`
	Instances      int                `json:"instances"`
	Submitted      int                `json:"submitted"`
	CompletionRate float64            `json:"completionRate"`
	ReportsByPhase map[string]int     `json:"reportsByPhase"`
	Fields         []forms.FieldStats `json:"fields"`
}

func (s *Server) handleGetForms(w http.ResponseWriter, r *http.Request) {
	classID, ok := urlUUID(w, r, "classId", "class_id")
	if !ok {
		return
	}
	status := r.URL.Query().Get("status")
	switch db.FormStatus(status) {
	case "", db.FormStatusDraft, db.FormStatusPublished, db.FormStatusClosed:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	list, err := s.store.Queries.ListFormsByClass(r.Context(), db.ListFormsByClassParams{
		ClassID: classID,
		Status:  status,
		Limit:   queryLimit(r),
	})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	resp := make([]formResponse, 0, len(list))
	for _, form := range list {
		resp = append(resp, mapForm(form))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateForm creates a form from inline fields or, when templateId is
// given, from a snapshot of the template's fields.
func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req createFormRequest
	if !decodeValid(w, r, &req) {
		return
	}
	classID, _ := parseUUID(req.ClassID)
	templateID, _ := optionalUUID(req.TemplateID)

	title := strings.TrimSpace(req.Title)
	description := req.Description
	fields := req.Fields
	if templateID.Valid {
		template, err := s.store.Queries.GetFormTemplate(r.Context(), templateID)
		if err != nil {
			s.lookupError(w, r, err, "template_not_found")
			return
		}
		if len(fields) == 0 {
			fields = decodeFields(template.Fields)
		}
		if title == "" {
			title = template.Title
		}
		if description == "" && template.Description.Valid {
			description = template.Description.String
		}
	}
	if title == "" {
		writeError(w, http.StatusBadRequest, "missing_title")
		return
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	raw, ok := encodeFields(w, fields)
	if !ok {
		return
	}
	status := db.FormStatusDraft
	if req.Status != "" {
		status = db.FormStatus(req.Status)
	}

	form, err := s.store.Queries.CreateForm(r.Context(), db.CreateFormParams{
		ID:          pgUUID(uuid.New()),
		ClassID:     classID,
		TemplateID:  templateID,
		Title:       title,
		Description: pgText(description),
		Fields:      raw,
		Status:      status,
		DueAt:       optionalTime(req.DueAt),
		CreatedBy:   pgUUIDFromString(claims.UserID),
		CreatedAt:   nowPgTime(),
		UpdatedAt:   nowPgTime(),
	})
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		s.serverError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), form.ClassID, "form", form.ID, "created")

	writeJSON(w, http.StatusCreated, mapForm(form))
}

func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	formID, ok := urlUUID(w, r, "formId", "form_id")
	if !ok {
		return
	}

	form, err := s.store.Queries.GetForm(r.Context(), formID)
	if err != nil {
		s.lookupError(w, r, err, "form_not_found")
		return
	}
	if !claims.IsStaff() && form.Status == db.FormStatusDraft {
		writeError(w, http.StatusNotFound, "form_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapForm(form))
}

// handlePatchForm updates a form. Fields can only change while the form is a
// draft, since submitted answers are validated against them.
func (s *Server) handlePatchForm(w http.ResponseWriter, r *http.Request) {
	formID, ok := urlUUID(w, r, "formId", "form_id")
	if !ok {
		return
	}
	var req patchFormRequest
	if !decodeValid(w, r, &req) {
		return
	}

	current, err := s.store.Queries.GetForm(r.Context(), formID)
	if err != nil {
		s.lookupError(w, r, err, "form_not_found")
		return
	}
	params := db.UpdateFormParams{
		ID:          current.ID,
		Title:       current.Title,
		Description: current.Description,
		Fields:      current.Fields,
		Status:      current.Status,
		DueAt:       current.DueAt,
		UpdatedAt:   nowPgTime(),
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "missing_title")
			return
		}
		params.Title = title
	}
	if req.Description != nil {
		params.Description = pgText(*req.Description)
	}
	if req.Fields != nil {
		if current.Status != db.FormStatusDraft {
			writeError(w, http.StatusConflict, "form_not_draft")
			return
		}
		raw, ok := encodeFields(w, req.Fields)
		if !ok {
			return
		}
		params.Fields = raw
	}
	if req.Status != nil {
		params.Status = db.FormStatus(*req.Status)
	}
	if req.DueAt != nil {
		params.DueAt = optionalTime(req.DueAt)
	}

	form, err := s.store.Queries.UpdateForm(r.Context(), params)
	if err != nil {
		s.lookupError(w, r, err, "form_not_found")
		return
	}
	s.publishForClass(r.Context(), form.ClassID, "form", form.ID, "updated")

	writeJSON(w, http.StatusOK, mapForm(form))
}

func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	formID, ok := urlUUID(w, r, "formId", "form_id")
	if !ok {
		return
	}

	form, err := s.store.Queries.GetForm(r.Context(), formID)
	if err != nil {
		s.lookupError(w, r, err, "form_not_found")
		return
	}
	if _, err := s.store.Queries.DeleteForm(r.Context(), formID); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), form.ClassID, "form", form.ID, "deleted")

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDistributeForm(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "formId")
	if formID == "" {
		writeError(w, http.StatusBadRequest, "missing_form_id")
		return
	}

	result, err := operations.DistributeForm(r.Context(), s.store, formID)
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), result.Form.ClassID, "form", result.Form.ID, "distributed")

	resp := distributeResponse{
		Form:      mapForm(result.Form),
		Created:   len(result.Created),
		Skipped:   result.Skipped,
		Instances: make([]formInstanceResponse, 0, len(result.Created)),
	}
	for _, instance := range result.Created {
		resp.Instances = append(resp.Instances, mapFormInstance(instance))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFormInstances(w http.ResponseWriter, r *http.Request) {
	formID, ok := urlUUID(w, r, "formId", "form_id")
	if !ok {
		return
	}

	instances, err := s.store.Queries.ListFormInstancesByForm(r.Context(), db.ListFormInstancesByFormParams{FormID: formID, Limit: queryLimit(r)})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapFormInstances(instances))
}

func (s *Server) handleGetFormStats(w http.ResponseWriter, r *http.Request) {
	formID, ok := urlUUID(w, r, "formId", "form_id")
	if !ok {
		return
	}

	form, err := s.store.Queries.GetForm(r.Context(), formID)
	if err != nil {
		s.lookupError(w, r, err, "form_not_found")
		return
	}
	instances, err := s.store.Queries.CountFormInstances(r.Context(), formID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	responses, err := s.store.Queries.ListFormResponsesByForm(r.Context(), formID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	phases, err := s.store.Queries.CountReportsByPhase(r.Context(), db.CountReportsByPhaseParams{FormID: formID})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	byPhase, _ := phaseCounts(phases)
	answers := make([][]byte, 0, len(responses))
	for _, response := range responses {
		answers = append(answers, response.Answers)
	}

	writeJSON(w, http.StatusOK, formStatsResponse{
		FormID:         uuidString(form.ID),
		Instances:      int(instances.Total),
		Submitted:      int(instances.Submitted),
		CompletionRate: completionRate(int(instances.Submitted), int(instances.Total)),
		ReportsByPhase: byPhase,
		Fields:         forms.Aggregate(decodeFields(form.Fields), answers),
	})
}

func optionalTime(t *time.Time) pgtype.Timestamptz {
	if t == nil || t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgTime(*t)
}

func mapForm(form db.Form) formResponse {
	return formResponse{
		ID:          uuidString(form.ID),
		ClassID:     uuidString(form.ClassID),
		TemplateID:  uuidString(form.TemplateID),
		Title:       form.Title,
		Description: textPtr(form.Description),
		Fields:      decodeFields(form.Fields),
		Status:      string(form.Status),
		DueAt:       timePtr(form.DueAt),
		CreatedBy:   uuidString(form.CreatedBy),
		CreatedAt:   timePtr(form.CreatedAt),
		UpdatedAt:   timePtr(form.UpdatedAt),
	}
}
