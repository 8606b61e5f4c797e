package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/notify"
	"semaphore/reports/internal/operations"
	"semaphore/reports/internal/workflow"
)

type formInstanceResponse struct {
	ID          string                 `json:"id"`
	FormID      string                 `json:"formId"`
	StudentID   string                 `json:"studentId"`
	Status      string                 `json:"status"`
	SubmittedAt *time.Time             `json:"submittedAt,omitempty"`
	CreatedAt   *time.Time             `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time             `json:"updatedAt,omitempty"`
	Answers     map[string]interface{} `json:"answers,omitempty"`
}

type submitFormInstanceRequest struct {
	Answers map[string]interface{} `json:"answers" validate:"required"`
}

type submitFormInstanceResponse struct {
	Instance formInstanceResponse `json:"instance"`
	Report   reportResponse       `json:"report"`
}

// handleGetMyFormInstances lists instances of one student. Students see the
// instances of the student records linked to their account.
func (s *Server) handleGetMyFormInstances(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	limit := queryLimit(r)

	var studentIDs []pgtype.UUID
	if raw := strings.TrimSpace(r.URL.Query().Get("studentId")); raw != "" {
		studentID, err := parseUUID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_student_id")
			return
		}
		if !claims.IsStaff() {
			owned, err := s.ownsStudent(r.Context(), claims.UserID, studentID)
			if err != nil {
				s.serverError(w, r, err)
				return
			}
			if !owned {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
		}
		studentIDs = append(studentIDs, studentID)
	} else {
		students, err := s.store.Queries.ListStudentsByUser(r.Context(), pgUUIDFromString(claims.UserID))
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		for _, student := range students {
			studentIDs = append(studentIDs, student.ID)
		}
	}

	resp := make([]formInstanceResponse, 0)
	for _, studentID := range studentIDs {
		instances, err := s.store.Queries.ListFormInstancesByStudent(r.Context(), db.ListFormInstancesByStudentParams{StudentID: studentID, Limit: limit})
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		resp = append(resp, mapFormInstances(instances)...)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFormInstance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	instanceID, ok := urlUUID(w, r, "instanceId", "form_instance_id")
	if !ok {
		return
	}

	instance, err := s.store.Queries.GetFormInstance(r.Context(), instanceID)
	if err != nil {
		s.lookupError(w, r, err, "form_instance_not_found")
		return
	}
	if !claims.IsStaff() {
		owned, err := s.ownsStudent(r.Context(), claims.UserID, instance.StudentID)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !owned {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	resp := mapFormInstance(instance)
	answers, err := s.answersFor(r.Context(), instance.ID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	resp.Answers = answers
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitFormInstance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	instanceID := chi.URLParam(r, "instanceId")
	if instanceID == "" {
		writeError(w, http.StatusBadRequest, "missing_form_instance_id")
		return
	}
	var req submitFormInstanceRequest
	if !decodeValid(w, r, &req) {
		return
	}

	result, err := operations.SubmitFormInstance(r.Context(), s.store, operations.SubmitInput{
		FormInstanceID: instanceID,
		UserID:         claims.UserID,
		Privileged:     claims.IsStaff(),
		Answers:        req.Answers,
	})
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), result.Report.ClassID, "report", result.Report.ID, "submitted")
	s.notifyReviewer(r.Context(), result.Report)

	instance := mapFormInstance(result.Instance)
	instance.Answers = decodeAnswers(result.Response.Answers)
	writeJSON(w, http.StatusOK, submitFormInstanceResponse{
		Instance: instance,
		Report:   mapReport(result.Report),
	})
}

// notifyReviewer tells whoever the report now waits on that it is their turn.
func (s *Server) notifyReviewer(ctx context.Context, report db.Report) {
	state := workflow.Derive(report)
	if state.AwaitingUserID == "" || state.AwaitingRole == workflow.RoleStudent {
		return
	}
	name := "a student"
	if student, err := s.store.Queries.GetStudent(ctx, report.StudentID); err == nil {
		name = student.Name
	}
	s.notifyAsync(state.AwaitingUserID, notify.ReviewRequest(uuidString(report.ID), name, state))
}

func (s *Server) ownsStudent(ctx context.Context, userID string, studentID pgtype.UUID) (bool, error) {
	student, err := s.store.Queries.GetStudent(ctx, studentID)
	if err != nil {
		if db.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return sameUser(student.UserID, userID), nil
}

func (s *Server) answersFor(ctx context.Context, instanceID pgtype.UUID) (map[string]interface{}, error) {
	response, err := s.store.Queries.GetFormResponseByInstance(ctx, instanceID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return decodeAnswers(response.Answers), nil
}

func decodeAnswers(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var answers map[string]interface{}
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil
	}
	return answers
}

func mapFormInstances(instances []db.FormInstance) []formInstanceResponse {
	resp := make([]formInstanceResponse, 0, len(instances))
	for _, instance := range instances {
		resp = append(resp, mapFormInstance(instance))
	}
	return resp
}

func mapFormInstance(instance db.FormInstance) formInstanceResponse {
	return formInstanceResponse{
		ID:          uuidString(instance.ID),
		FormID:      uuidString(instance.FormID),
		StudentID:   uuidString(instance.StudentID),
		Status:      string(instance.Status),
		SubmittedAt: timePtr(instance.SubmittedAt),
		CreatedAt:   timePtr(instance.CreatedAt),
		UpdatedAt:   timePtr(instance.UpdatedAt),
	}
}
