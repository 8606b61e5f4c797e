package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"semaphore/reports/internal/db"
)

type classResponse struct {
	ID            string     `json:"id"`
	GroupID       string     `json:"groupId"`
	Name          string     `json:"name"`
	Description   *string    `json:"description,omitempty"`
	TimeTeacherID string     `json:"timeTeacherId,omitempty"`
	TeacherID     string     `json:"teacherId,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

type createClassRequest struct {
	GroupID       string  `json:"groupId" validate:"required,uuid"`
	Name          string  `json:"name" validate:"notblank,max=200"`
	Description   string  `json:"description" validate:"max=2000"`
	TimeTeacherID *string `json:"timeTeacherId" validate:"omitempty,uuid"`
	TeacherID     *string `json:"teacherId" validate:"omitempty,uuid"`
}

type patchClassRequest struct {
	Name          string  `json:"name" validate:"notblank,max=200"`
	Description   string  `json:"description" validate:"max=2000"`
	TimeTeacherID *string `json:"timeTeacherId" validate:"omitempty,uuid"`
	TeacherID     *string `json:"teacherId" validate:"omitempty,uuid"`
}

func (s *Server) handleGetClasses(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "groupId", "group_id")
	if !ok {
		return
	}

	classes, err := s.store.Queries.ListClassesByGroup(r.Context(), db.ListClassesByGroupParams{GroupID: groupID, Limit: queryLimit(r)})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	resp := make([]classResponse, 0, len(classes))
	for _, class := range classes {
		resp = append(resp, mapClass(class))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if !decodeValid(w, r, &req) {
		return
	}
	groupID, _ := parseUUID(req.GroupID)
	timeTeacherID, _ := optionalUUID(req.TimeTeacherID)
	teacherID, _ := optionalUUID(req.TeacherID)

	class, err := s.store.Queries.CreateClass(r.Context(), db.CreateClassParams{
		ID:            pgUUID(uuid.New()),
		GroupID:       groupID,
		Name:          strings.TrimSpace(req.Name),
		Description:   pgText(req.Description),
		TimeTeacherID: timeTeacherID,
		TeacherID:     teacherID,
		CreatedAt:     nowPgTime(),
		UpdatedAt:     nowPgTime(),
	})
	if err != nil {
		switch {
		case db.IsForeignKeyViolation(err):
			writeError(w, http.StatusNotFound, "group_not_found")
		case db.IsUniqueViolation(err):
			writeError(w, http.StatusConflict, "class_exists")
		default:
			s.serverError(w, r, err)
		}
		return
	}
	s.publish(r.Context(), class.GroupID, "class", class.ID, "created")

	writeJSON(w, http.StatusCreated, mapClass(class))
}

func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	classID, ok := urlUUID(w, r, "classId", "class_id")
	if !ok {
		return
	}

	class, err := s.store.Queries.GetClass(r.Context(), classID)
	if err != nil {
		s.lookupError(w, r, err, "class_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapClass(class))
}

// handlePatchClass replaces the class reviewers for future reports only.
// Existing reports keep the reviewers they were created with.
func (s *Server) handlePatchClass(w http.ResponseWriter, r *http.Request) {
	classID, ok := urlUUID(w, r, "classId", "class_id")
	if !ok {
		return
	}
	var req patchClassRequest
	if !decodeValid(w, r, &req) {
		return
	}
	timeTeacherID, _ := optionalUUID(req.TimeTeacherID)
	teacherID, _ := optionalUUID(req.TeacherID)

	class, err := s.store.Queries.UpdateClass(r.Context(), db.UpdateClassParams{
		ID:            classID,
		Name:          strings.TrimSpace(req.Name),
		Description:   pgText(req.Description),
		TimeTeacherID: timeTeacherID,
		TeacherID:     teacherID,
		UpdatedAt:     nowPgTime(),
	})
	if err != nil {
		s.lookupError(w, r, err, "class_not_found")
		return
	}
	s.publish(r.Context(), class.GroupID, "class", class.ID, "updated")

	writeJSON(w, http.StatusOK, mapClass(class))
}

func (s *Server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	classID, ok := urlUUID(w, r, "classId", "class_id")
	if !ok {
		return
	}

	class, err := s.store.Queries.GetClass(r.Context(), classID)
	if err != nil {
		s.lookupError(w, r, err, "class_not_found")
		return
	}
	if _, err := s.store.Queries.DeleteClass(r.Context(), classID); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.publish(r.Context(), class.GroupID, "class", class.ID, "deleted")

	w.WriteHeader(http.StatusNoContent)
}

func mapClass(class db.Class) classResponse {
	return classResponse{
		ID:            uuidString(class.ID),
		GroupID:       uuidString(class.GroupID),
		Name:          class.Name,
		Description:   textPtr(class.Description),
		TimeTeacherID: uuidString(class.TimeTeacherID),
		TeacherID:     uuidString(class.TeacherID),
		CreatedAt:     timePtr(class.CreatedAt),
		UpdatedAt:     timePtr(class.UpdatedAt),
	}
}
