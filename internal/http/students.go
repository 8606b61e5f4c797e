package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/validate"
)

// maxBulkStudents bounds one bulk create request.
const maxBulkStudents = 500

type studentResponse struct {
	ID            string     `json:"id"`
	ClassID       string     `json:"classId"`
	UserID        string     `json:"userId,omitempty"`
	Name          string     `json:"name"`
	Email         *string    `json:"email,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	StudentNumber *string    `json:"studentNumber,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

type studentRequest struct {
	ClassID       string  `json:"classId" validate:"omitempty,uuid"`
	UserID        *string `json:"userId" validate:"omitempty,uuid"`
	Name          string  `json:"name" validate:"notblank,max=200"`
	Email         string  `json:"email" validate:"omitempty,email"`
	Phone         string  `json:"phone" validate:"max=50"`
	StudentNumber string  `json:"studentNumber" validate:"max=50"`
}

func (s *Server) handleGetStudents(w http.ResponseWriter, r *http.Request) {
	classID, ok := urlUUID(w, r, "classId", "class_id")
	if !ok {
		return
	}

	students, err := s.store.Queries.ListStudentsByClass(r.Context(), db.ListStudentsByClassParams{
		ClassID: classID,
		Search:  strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:   queryLimit(r),
	})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapStudents(students))
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if req.ClassID == "" {
		writeError(w, http.StatusBadRequest, "missing_class_id")
		return
	}
	classID, _ := parseUUID(req.ClassID)

	student, err := s.store.Queries.CreateStudent(r.Context(), studentParams(classID, req))
	if err != nil {
		s.studentWriteError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), student.ClassID, "student", student.ID, "created")

	writeJSON(w, http.StatusCreated, mapStudent(student))
}

// handleCreateStudents adds a list of students to one class in a single
// transaction. Either all rows are created or none.
func (s *Server) handleCreateStudents(w http.ResponseWriter, r *http.Request) {
	classID, ok := urlUUID(w, r, "classId", "class_id")
	if !ok {
		return
	}
	var req []studentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "missing_students")
		return
	}
	if len(req) > maxBulkStudents {
		writeError(w, http.StatusBadRequest, "too_many_students")
		return
	}
	for i := range req {
		if err := validate.Struct(req[i]); err != nil {
			writeError(w, http.StatusBadRequest, validate.Code(err))
			return
		}
	}

	created := make([]db.Student, 0, len(req))
	err := s.store.WithTx(r.Context(), func(q *db.Queries) error {
		for _, item := range req {
			student, err := q.CreateStudent(r.Context(), studentParams(classID, item))
			if err != nil {
				return err
			}
			created = append(created, student)
		}
		return nil
	})
	if err != nil {
		s.studentWriteError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), classID, "student", classID, "created")

	writeJSON(w, http.StatusCreated, mapStudents(created))
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	studentID, ok := urlUUID(w, r, "studentId", "student_id")
	if !ok {
		return
	}

	student, err := s.store.Queries.GetStudent(r.Context(), studentID)
	if err != nil {
		s.lookupError(w, r, err, "student_not_found")
		return
	}
	if !claims.IsStaff() && !sameUser(student.UserID, claims.UserID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, mapStudent(student))
}

func (s *Server) handlePatchStudent(w http.ResponseWriter, r *http.Request) {
	studentID, ok := urlUUID(w, r, "studentId", "student_id")
	if !ok {
		return
	}
	var req studentRequest
	if !decodeValid(w, r, &req) {
		return
	}

	current, err := s.store.Queries.GetStudent(r.Context(), studentID)
	if err != nil {
		s.lookupError(w, r, err, "student_not_found")
		return
	}
	classID := current.ClassID
	if req.ClassID != "" {
		classID, _ = parseUUID(req.ClassID)
	}
	userID := current.UserID
	if req.UserID != nil {
		userID, _ = optionalUUID(req.UserID)
	}

	student, err := s.store.Queries.UpdateStudent(r.Context(), db.UpdateStudentParams{
		ID:            studentID,
		ClassID:       classID,
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		Email:         pgText(req.Email),
		Phone:         pgText(req.Phone),
		StudentNumber: pgText(req.StudentNumber),
		UpdatedAt:     nowPgTime(),
	})
	if err != nil {
		s.studentWriteError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), student.ClassID, "student", student.ID, "updated")

	writeJSON(w, http.StatusOK, mapStudent(student))
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	studentID, ok := urlUUID(w, r, "studentId", "student_id")
	if !ok {
		return
	}

	student, err := s.store.Queries.GetStudent(r.Context(), studentID)
	if err != nil {
		s.lookupError(w, r, err, "student_not_found")
		return
	}
	if _, err := s.store.Queries.DeleteStudent(r.Context(), studentID); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.publishForClass(r.Context(), student.ClassID, "student", student.ID, "deleted")

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) studentWriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case db.IsNotFound(err):
		writeError(w, http.StatusNotFound, "student_not_found")
	case db.IsForeignKeyViolation(err):
		writeError(w, http.StatusNotFound, "class_not_found")
	case db.IsUniqueViolation(err):
		writeError(w, http.StatusConflict, "student_exists")
	default:
		s.serverError(w, r, err)
	}
}

func studentParams(classID pgtype.UUID, req studentRequest) db.CreateStudentParams {
	userID, _ := optionalUUID(req.UserID)
	return db.CreateStudentParams{
		ID:            pgUUID(uuid.New()),
		ClassID:       classID,
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		Email:         pgText(req.Email),
		Phone:         pgText(req.Phone),
		StudentNumber: pgText(req.StudentNumber),
		CreatedAt:     nowPgTime(),
		UpdatedAt:     nowPgTime(),
	}
}

func mapStudents(students []db.Student) []studentResponse {
	resp := make([]studentResponse, 0, len(students))
	for _, student := range students {
		resp = append(resp, mapStudent(student))
	}
	return resp
}

func mapStudent(student db.Student) studentResponse {
	return studentResponse{
		ID:            uuidString(student.ID),
		ClassID:       uuidString(student.ClassID),
		UserID:        uuidString(student.UserID),
		Name:          student.Name,
		Email:         textPtr(student.Email),
		Phone:         textPtr(student.Phone),
		StudentNumber: textPtr(student.StudentNumber),
		CreatedAt:     timePtr(student.CreatedAt),
		UpdatedAt:     timePtr(student.UpdatedAt),
	}
}
