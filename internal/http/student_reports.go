package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/forms"
	"semaphore/reports/internal/summary"
)

type studentReportResponse struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"studentId"`
	ClassID     string     `json:"classId"`
	Title       string     `json:"title"`
	PeriodStart *time.Time `json:"periodStart,omitempty"`
	PeriodEnd   *time.Time `json:"periodEnd,omitempty"`
	Content     string     `json:"content"`
	Source      string     `json:"source"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type createStudentReportRequest struct {
	StudentID   string     `json:"studentId" validate:"required,uuid"`
	Title       string     `json:"title" validate:"notblank,max=200"`
	PeriodStart *time.Time `json:"periodStart"`
	PeriodEnd   *time.Time `json:"periodEnd"`
	Content     string     `json:"content" validate:"max=20000"`
	Generate    bool       `json:"generate"`
}

type patchStudentReportRequest struct {
	Title   string `json:"title" validate:"notblank,max=200"`
	Content string `json:"content" validate:"notblank,max=20000"`
}

func (s *Server) handleGetStudentReports(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	studentID, ok := urlUUID(w, r, "studentId", "student_id")
	if !ok {
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

	list, err := s.store.Queries.ListStudentReportsByStudent(r.Context(), db.ListStudentReportsByStudentParams{StudentID: studentID, Limit: queryLimit(r)})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	resp := make([]studentReportResponse, 0, len(list))
	for _, item := range list {
		resp = append(resp, mapStudentReport(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateStudentReport stores a manual report, or with generate set,
// summarizes the student's responses submitted within the period.
func (s *Server) handleCreateStudentReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req createStudentReportRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodEnd.Before(*req.PeriodStart) {
		writeError(w, http.StatusBadRequest, "invalid_period")
		return
	}
	content := strings.TrimSpace(req.Content)
	if !req.Generate && content == "" {
		writeError(w, http.StatusBadRequest, "missing_content")
		return
	}
	studentID, _ := parseUUID(req.StudentID)

	student, err := s.store.Queries.GetStudent(r.Context(), studentID)
	if err != nil {
		s.lookupError(w, r, err, "student_not_found")
		return
	}

	source := db.SummarySourceManual
	if req.Generate {
		if s.summarizer == nil {
			writeError(w, http.StatusServiceUnavailable, "summary_unavailable")
			return
		}
		text, err := s.studentTranscript(r.Context(), student.ID, optionalTime(req.PeriodStart), optionalTime(req.PeriodEnd))
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		result, err := s.summarizer.Summarize(r.Context(), text)
		if err != nil {
			if errors.Is(err, summary.ErrEmptyInput) {
				writeError(w, http.StatusConflict, "no_responses")
				return
			}
			s.serverError(w, r, err)
			return
		}
		content = result.Text
		source = result.Source
	}

	report, err := s.store.Queries.CreateStudentReport(r.Context(), db.CreateStudentReportParams{
		ID:          pgUUID(uuid.New()),
		StudentID:   student.ID,
		ClassID:     student.ClassID,
		Title:       strings.TrimSpace(req.Title),
		PeriodStart: optionalTime(req.PeriodStart),
		PeriodEnd:   optionalTime(req.PeriodEnd),
		Content:     content,
		Source:      source,
		CreatedBy:   pgUUIDFromString(claims.UserID),
		CreatedAt:   nowPgTime(),
	})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), report.ClassID, "student_report", report.ID, "created")

	writeJSON(w, http.StatusCreated, mapStudentReport(report))
}

func (s *Server) handleGetStudentReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	reportID, ok := urlUUID(w, r, "studentReportId", "student_report_id")
	if !ok {
		return
	}

	report, err := s.store.Queries.GetStudentReport(r.Context(), reportID)
	if err != nil {
		s.lookupError(w, r, err, "student_report_not_found")
		return
	}
	if !claims.IsStaff() {
		owned, err := s.ownsStudent(r.Context(), claims.UserID, report.StudentID)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !owned {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}
	writeJSON(w, http.StatusOK, mapStudentReport(report))
}

// handlePatchStudentReport replaces title and content. Edited text counts as
// manual from then on.
func (s *Server) handlePatchStudentReport(w http.ResponseWriter, r *http.Request) {
	reportID, ok := urlUUID(w, r, "studentReportId", "student_report_id")
	if !ok {
		return
	}
	var req patchStudentReportRequest
	if !decodeValid(w, r, &req) {
		return
	}

	report, err := s.store.Queries.UpdateStudentReport(r.Context(), db.UpdateStudentReportParams{
		ID:        reportID,
		Title:     strings.TrimSpace(req.Title),
		Content:   strings.TrimSpace(req.Content),
		Source:    db.SummarySourceManual,
		UpdatedAt: nowPgTime(),
	})
	if err != nil {
		s.lookupError(w, r, err, "student_report_not_found")
		return
	}
	s.publishForClass(r.Context(), report.ClassID, "student_report", report.ID, "updated")

	writeJSON(w, http.StatusOK, mapStudentReport(report))
}

func (s *Server) handleDeleteStudentReport(w http.ResponseWriter, r *http.Request) {
	reportID, ok := urlUUID(w, r, "studentReportId", "student_report_id")
	if !ok {
		return
	}

	report, err := s.store.Queries.GetStudentReport(r.Context(), reportID)
	if err != nil {
		s.lookupError(w, r, err, "student_report_not_found")
		return
	}
	if _, err := s.store.Queries.DeleteStudentReport(r.Context(), reportID); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), report.ClassID, "student_report", report.ID, "deleted")

	w.WriteHeader(http.StatusNoContent)
}

// studentTranscript renders every response of the student in the period, one
// block per form.
func (s *Server) studentTranscript(ctx context.Context, studentID pgtype.UUID, from, to pgtype.Timestamptz) (string, error) {
	responses, err := s.store.Queries.ListFormResponsesByStudent(ctx, db.ListFormResponsesByStudentParams{
		StudentID: studentID,
		From:      from,
		To:        to,
	})
	if err != nil {
		return "", err
	}

	formsByID := make(map[[16]byte]db.Form)
	var b strings.Builder
	for _, response := range responses {
		form, ok := formsByID[response.FormID.Bytes]
		if !ok {
			form, err = s.store.Queries.GetForm(ctx, response.FormID)
			if err != nil {
				if db.IsNotFound(err) {
					continue
				}
				return "", err
			}
			formsByID[response.FormID.Bytes] = form
		}
		transcript := forms.Transcript(decodeFields(form.Fields), decodeAnswers(response.Answers))
		if transcript == "" {
			continue
		}
		b.WriteString(form.Title)
		b.WriteString("\n")
		b.WriteString(transcript)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}

func mapStudentReport(report db.StudentReport) studentReportResponse {
	return studentReportResponse{
		ID:          uuidString(report.ID),
		StudentID:   uuidString(report.StudentID),
		ClassID:     uuidString(report.ClassID),
		Title:       report.Title,
		PeriodStart: timePtr(report.PeriodStart),
		PeriodEnd:   timePtr(report.PeriodEnd),
		Content:     report.Content,
		Source:      string(report.Source),
		CreatedBy:   uuidString(report.CreatedBy),
		CreatedAt:   timePtr(report.CreatedAt),
		UpdatedAt:   timePtr(report.UpdatedAt),
	}
}
