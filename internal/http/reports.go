package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"semaphore/reports/internal/auth"
	"semaphore/reports/internal/db"
	"semaphore/reports/internal/forms"
	"semaphore/reports/internal/metrics"
	"semaphore/reports/internal/notify"
	"semaphore/reports/internal/operations"
	"semaphore/reports/internal/summary"
	"semaphore/reports/internal/workflow"
)

type reportResponse struct {
	ID                     string         `json:"id"`
	FormID                 string         `json:"formId"`
	FormInstanceID         string         `json:"formInstanceId"`
	StudentID              string         `json:"studentId"`
	ClassID                string         `json:"classId"`
	Stage                  int32          `json:"stage"`
	TimeTeacherID          string         `json:"timeTeacherId,omitempty"`
	TeacherID              string         `json:"teacherId,omitempty"`
	TimeTeacherComment     *string        `json:"timeTeacherComment,omitempty"`
	TimeTeacherCompletedAt *time.Time     `json:"timeTeacherCompletedAt,omitempty"`
	TeacherComment         *string        `json:"teacherComment,omitempty"`
	TeacherCompletedAt     *time.Time     `json:"teacherCompletedAt,omitempty"`
	RejectedAt             *time.Time     `json:"rejectedAt,omitempty"`
	RejectedBy             string         `json:"rejectedBy,omitempty"`
	RejectionReason        *string        `json:"rejectionReason,omitempty"`
	FinalReport            *string        `json:"finalReport,omitempty"`
	CreatedAt              *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt              *time.Time     `json:"updatedAt,omitempty"`
	State                  workflow.State `json:"state"`
}

type reportDetailResponse struct {
	reportResponse
	StudentName string                 `json:"studentName,omitempty"`
	FormTitle   string                 `json:"formTitle,omitempty"`
	Fields      []forms.Field          `json:"fields,omitempty"`
	Answers     map[string]interface{} `json:"answers,omitempty"`
}

type commentRequest struct {
	Comment     string `json:"comment"`
	CommentType string `json:"commentType"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type finalReportRequest struct {
	FinalReport string `json:"finalReport" validate:"max=20000"`
}

type summaryDraftResponse struct {
	Report reportResponse `json:"report"`
	Source string         `json:"source"`
}

// handleGetReports lists reports visible to the caller. Students only see
// their own reports and reviewers only the reports assigned to them.
func (s *Server) handleGetReports(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	query := r.URL.Query()

	params := db.ListReportsParams{Limit: queryLimit(r)}
	for _, filter := range []struct {
		name   string
		code   string
		target *pgtype.UUID
	}{
		{"classId", "invalid_class_id", &params.ClassID},
		{"studentId", "invalid_student_id", &params.StudentID},
		{"formId", "invalid_form_id", &params.FormID},
		{"groupId", "invalid_group_id", &params.GroupID},
	} {
		raw := strings.TrimSpace(query.Get(filter.name))
		if raw == "" {
			continue
		}
		id, err := parseUUID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, filter.code)
			return
		}
		*filter.target = id
	}
	if raw := strings.TrimSpace(query.Get("stage")); raw != "" {
		stage, err := strconv.Atoi(raw)
		if err != nil || stage < int(workflow.StageAwaitingResponse) || stage > int(workflow.StageComplete) {
			writeError(w, http.StatusBadRequest, "invalid_stage")
			return
		}
		params.Stage = pgtype.Int4{Int32: int32(stage), Valid: true}
	}
	phase := workflow.Phase(strings.TrimSpace(query.Get("phase")))
	switch phase {
	case "", workflow.PhaseAwaitingResponse, workflow.PhaseAwaitingTimeTeacher, workflow.PhaseAwaitingTeacher, workflow.PhaseComplete, workflow.PhaseRejected:
	default:
		writeError(w, http.StatusBadRequest, "invalid_phase")
		return
	}
	if phase != "" {
		params.Phase = pgtype.Text{String: string(phase), Valid: true}
	}
	awaitingMe := query.Get("awaiting") == "me"

	callerID, err := parseUUID(claims.UserID)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": operations.ErrForbidden, "message": operations.ForbiddenMessage})
		return
	}
	switch {
	case !claims.IsStaff():
		params.StudentUserID = callerID
		params.AwaitingStudent = awaitingMe
	case awaitingMe:
		params.AwaitingUserID = callerID
	case !claims.IsPrivileged():
		params.ReviewerID = callerID
	}

	reports, err := s.store.Queries.ListReports(r.Context(), params)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	resp := make([]reportResponse, 0, len(reports))
	for _, report := range reports {
		resp = append(resp, mapReport(report))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	reportID, ok := urlUUID(w, r, "reportId", "report_id")
	if !ok {
		return
	}

	report, err := s.store.Queries.GetReport(r.Context(), reportID)
	if err != nil {
		s.lookupError(w, r, err, "report_not_found")
		return
	}
	allowed, err := s.canViewReport(r.Context(), report, claims)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if !allowed {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": operations.ErrForbidden, "message": operations.ForbiddenMessage})
		return
	}

	resp := reportDetailResponse{reportResponse: mapReport(report)}
	if student, err := s.store.Queries.GetStudent(r.Context(), report.StudentID); err == nil {
		resp.StudentName = student.Name
	}
	if form, err := s.store.Queries.GetForm(r.Context(), report.FormID); err == nil {
		resp.FormTitle = form.Title
		resp.Fields = decodeFields(form.Fields)
	}
	resp.Answers, err = s.answersFor(r.Context(), report.FormInstanceID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) canViewReport(ctx context.Context, report db.Report, claims *auth.Claims) (bool, error) {
	if claims.IsPrivileged() || workflow.IsReviewer(report, claims.UserID) {
		return true, nil
	}
	if claims.IsStaff() {
		return false, nil
	}
	return s.ownsStudent(ctx, claims.UserID, report.StudentID)
}

func (s *Server) handleCommentReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	reportID := chi.URLParam(r, "reportId")
	if reportID == "" {
		writeError(w, http.StatusBadRequest, "missing_report_id")
		return
	}
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	report, err := operations.AdvanceReportStage(r.Context(), s.store, operations.AdvanceInput{
		ReportID:    reportID,
		UserID:      claims.UserID,
		Comment:     req.Comment,
		CommentType: req.CommentType,
	})
	metrics.ObserveTransition("advance", operationCode(err))
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), report.ClassID, "report", report.ID, "advanced")
	s.notifyReviewer(r.Context(), report)

	writeJSON(w, http.StatusOK, mapReport(report))
}

func (s *Server) handleRejectReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	reportID := chi.URLParam(r, "reportId")
	if reportID == "" {
		writeError(w, http.StatusBadRequest, "missing_report_id")
		return
	}
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	report, err := operations.RejectReport(r.Context(), s.store, operations.RejectInput{
		ReportID:   reportID,
		RejectedBy: claims.UserID,
		Reason:     req.Reason,
		Privileged: claims.IsPrivileged(),
	})
	metrics.ObserveTransition("reject", operationCode(err))
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), report.ClassID, "report", report.ID, "rejected")
	if awaiting := workflow.Derive(report).AwaitingUserID; awaiting != "" && !workflow.AwaitsUser(report, claims.UserID) {
		s.notifyAsync(awaiting, notify.Rejected(uuidString(report.ID), report.RejectionReason.String))
	}

	writeJSON(w, http.StatusOK, mapReport(report))
}

// handleDraftReportSummary generates a final report draft from the student's
// answers and the reviewer comments, and stores it on the report.
func (s *Server) handleDraftReportSummary(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	reportID, ok := urlUUID(w, r, "reportId", "report_id")
	if !ok {
		return
	}
	if s.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "summary_unavailable")
		return
	}

	report, err := s.store.Queries.GetReport(r.Context(), reportID)
	if err != nil {
		s.lookupError(w, r, err, "report_not_found")
		return
	}
	if !claims.IsPrivileged() && !sameUser(report.TeacherID, claims.UserID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": operations.ErrForbidden, "message": operations.ForbiddenMessage})
		return
	}
	if !workflow.Derive(report).Complete {
		writeError(w, http.StatusConflict, operations.ErrReportNotComplete)
		return
	}

	text, err := s.reportTranscript(r.Context(), report)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	result, err := s.summarizer.Summarize(r.Context(), text)
	if err != nil {
		if errors.Is(err, summary.ErrEmptyInput) {
			writeError(w, http.StatusConflict, "empty_transcript")
			return
		}
		s.serverError(w, r, err)
		return
	}

	updated, err := operations.SetFinalReport(r.Context(), s.store, operations.FinalReportInput{
		ReportID:    uuidString(report.ID),
		UserID:      claims.UserID,
		FinalReport: result.Text,
		Privileged:  claims.IsPrivileged(),
	})
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), updated.ClassID, "report", updated.ID, "updated")

	writeJSON(w, http.StatusOK, summaryDraftResponse{Report: mapReport(updated), Source: string(result.Source)})
}

func (s *Server) handlePatchFinalReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	reportID := chi.URLParam(r, "reportId")
	if reportID == "" {
		writeError(w, http.StatusBadRequest, "missing_report_id")
		return
	}
	var req finalReportRequest
	if !decodeValid(w, r, &req) {
		return
	}

	report, err := operations.SetFinalReport(r.Context(), s.store, operations.FinalReportInput{
		ReportID:    reportID,
		UserID:      claims.UserID,
		FinalReport: req.FinalReport,
		Privileged:  claims.IsPrivileged(),
	})
	if err != nil {
		s.writeOperationError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), report.ClassID, "report", report.ID, "updated")

	writeJSON(w, http.StatusOK, mapReport(report))
}

// reportTranscript joins the answers and both reviewer comments into the text
// handed to the summarizer.
func (s *Server) reportTranscript(ctx context.Context, report db.Report) (string, error) {
	var b strings.Builder
	form, err := s.store.Queries.GetForm(ctx, report.FormID)
	if err != nil && !db.IsNotFound(err) {
		return "", err
	}
	answers, err := s.answersFor(ctx, report.FormInstanceID)
	if err != nil {
		return "", err
	}
	if transcript := forms.Transcript(decodeFields(form.Fields), answers); transcript != "" {
		b.WriteString(transcript)
		b.WriteString("\n")
	}
	if report.TimeTeacherComment.Valid {
		b.WriteString("Time-teacher comment: ")
		b.WriteString(report.TimeTeacherComment.String)
		b.WriteString("\n")
	}
	if report.TeacherComment.Valid {
		b.WriteString("Teacher comment: ")
		b.WriteString(report.TeacherComment.String)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

func operationCode(err error) string {
	if err == nil {
		return ""
	}
	var opErr *operations.Error
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	return operations.ErrServerError
}

func mapReport(report db.Report) reportResponse {
	return reportResponse{
		ID:                     uuidString(report.ID),
		FormID:                 uuidString(report.FormID),
		FormInstanceID:         uuidString(report.FormInstanceID),
		StudentID:              uuidString(report.StudentID),
		ClassID:                uuidString(report.ClassID),
		Stage:                  report.Stage,
		TimeTeacherID:          uuidString(report.TimeTeacherID),
		TeacherID:              uuidString(report.TeacherID),
		TimeTeacherComment:     textPtr(report.TimeTeacherComment),
		TimeTeacherCompletedAt: timePtr(report.TimeTeacherCompletedAt),
		TeacherComment:         textPtr(report.TeacherComment),
		TeacherCompletedAt:     timePtr(report.TeacherCompletedAt),
		RejectedAt:             timePtr(report.RejectedAt),
		RejectedBy:             uuidString(report.RejectedBy),
		RejectionReason:        textPtr(report.RejectionReason),
		FinalReport:            textPtr(report.FinalReport),
		CreatedAt:              timePtr(report.CreatedAt),
		UpdatedAt:              timePtr(report.UpdatedAt),
		State:                  workflow.Derive(report),
	}
}
