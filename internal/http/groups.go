package http

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/workflow"
)

type groupResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	OwnerID     string          `json:"ownerId,omitempty"`
	CreatedAt   *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
	Classes     []classResponse `json:"classes,omitempty"`
}

type groupRequest struct {
	Name        string `json:"name" validate:"notblank,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type groupStatsResponse struct {
	GroupID        string         `json:"groupId"`
	Classes        int64          `json:"classes"`
	Students       int64          `json:"students"`
	Forms          int64          `json:"forms"`
	Reports        int            `json:"reports"`
	ReportsByPhase map[string]int `json:"reportsByPhase"`
	CompletionRate float64        `json:"completionRate"`
}

func (s *Server) handleGetGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.Queries.ListGroups(r.Context(), queryLimit(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	resp := make([]groupResponse, 0, len(groups))
	for _, group := range groups {
		resp = append(resp, mapGroup(group))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req groupRequest
	if !decodeValid(w, r, &req) {
		return
	}

	group, err := s.store.Queries.CreateGroup(r.Context(), db.CreateGroupParams{
		ID:          pgUUID(uuid.New()),
		Name:        strings.TrimSpace(req.Name),
		Description: pgText(req.Description),
		OwnerID:     pgUUIDFromString(claims.UserID),
		CreatedAt:   nowPgTime(),
		UpdatedAt:   nowPgTime(),
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "group_exists")
			return
		}
		s.serverError(w, r, err)
		return
	}
	s.publish(r.Context(), group.ID, "group", group.ID, "created")

	writeJSON(w, http.StatusCreated, mapGroup(group))
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "groupId", "group_id")
	if !ok {
		return
	}

	group, err := s.store.Queries.GetGroup(r.Context(), groupID)
	if err != nil {
		s.lookupError(w, r, err, "group_not_found")
		return
	}
	classes, err := s.store.Queries.ListClassesByGroup(r.Context(), db.ListClassesByGroupParams{GroupID: groupID, Limit: maxLimit})
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	resp := mapGroup(group)
	resp.Classes = make([]classResponse, 0, len(classes))
	for _, class := range classes {
		resp.Classes = append(resp.Classes, mapClass(class))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePatchGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "groupId", "group_id")
	if !ok {
		return
	}
	var req groupRequest
	if !decodeValid(w, r, &req) {
		return
	}

	group, err := s.store.Queries.UpdateGroup(r.Context(), db.UpdateGroupParams{
		ID:          groupID,
		Name:        strings.TrimSpace(req.Name),
		Description: pgText(req.Description),
		UpdatedAt:   nowPgTime(),
	})
	if err != nil {
		s.lookupError(w, r, err, "group_not_found")
		return
	}
	s.publish(r.Context(), group.ID, "group", group.ID, "updated")

	writeJSON(w, http.StatusOK, mapGroup(group))
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "groupId", "group_id")
	if !ok {
		return
	}

	deleted, err := s.store.Queries.DeleteGroup(r.Context(), groupID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if deleted == 0 {
		writeError(w, http.StatusNotFound, "group_not_found")
		return
	}
	s.publish(r.Context(), groupID, "group", groupID, "deleted")

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetGroupStats(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "groupId", "group_id")
	if !ok {
		return
	}

	if _, err := s.store.Queries.GetGroup(r.Context(), groupID); err != nil {
		s.lookupError(w, r, err, "group_not_found")
		return
	}
	counts, err := s.store.Queries.CountGroupMembers(r.Context(), groupID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	phases, err := s.store.Queries.CountReportsByPhase(r.Context(), db.CountReportsByPhaseParams{GroupID: groupID})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	byPhase, total := phaseCounts(phases)

	resp := groupStatsResponse{
		GroupID:        uuidString(groupID),
		Classes:        counts.Classes,
		Students:       counts.Students,
		Forms:          counts.Forms,
		Reports:        total,
		ReportsByPhase: byPhase,
		CompletionRate: completionRate(byPhase[string(workflow.PhaseComplete)], total),
	}
	writeJSON(w, http.StatusOK, resp)
}

// phaseCounts fills every phase, including empty ones, and returns the total.
func phaseCounts(rows []db.CountReportsByPhaseRow) (map[string]int, int) {
	counts := map[string]int{
		string(workflow.PhaseAwaitingResponse):    0,
		string(workflow.PhaseAwaitingTimeTeacher): 0,
		string(workflow.PhaseAwaitingTeacher):     0,
		string(workflow.PhaseComplete):            0,
		string(workflow.PhaseRejected):            0,
	}
	total := 0
	for _, row := range rows {
		counts[row.Phase] += int(row.Reports)
		total += int(row.Reports)
	}
	return counts, total
}

// completionRate is a percentage rounded to one decimal.
func completionRate(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(done)/float64(total)*1000) / 10
}

func mapGroup(group db.Group) groupResponse {
	return groupResponse{
		ID:          uuidString(group.ID),
		Name:        group.Name,
		Description: textPtr(group.Description),
		OwnerID:     uuidString(group.OwnerID),
		CreatedAt:   timePtr(group.CreatedAt),
		UpdatedAt:   timePtr(group.UpdatedAt),
	}
}
