// Package workflow holds the report review state machine.
//
// A report moves 0 -> 1 when the student submits, 1 -> 2 when the assigned
// time-teacher comments and 2 -> 3 when the assigned teacher comments.
// Rejection records who rejected and why but keeps the stage, so the reviewer
// of the current stage stays responsible for the report. Derive is the only
// place that answers "who acts next"; callers must not re-derive it from the
// raw columns.
package workflow

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"semaphore/reports/internal/db"
)

const (
	StageAwaitingResponse    int32 = 0
	StageAwaitingTimeTeacher int32 = 1
	StageAwaitingTeacher     int32 = 2
	StageComplete            int32 = 3
)

const (
	MinCommentLength = 10
	MaxReasonLength  = 2000
)

type Phase string

const (
	PhaseAwaitingResponse    Phase = "awaiting_response"
	PhaseAwaitingTimeTeacher Phase = "awaiting_time_teacher"
	PhaseAwaitingTeacher     Phase = "awaiting_teacher"
	PhaseComplete            Phase = "complete"
	PhaseRejected            Phase = "rejected"
)

type Role string

const (
	RoleNone        Role = ""
	RoleStudent     Role = "student"
	RoleTimeTeacher Role = "time_teacher"
	RoleTeacher     Role = "teacher"
)

type CommentType string

const (
	CommentTimeTeacher CommentType = "time_teacher"
	CommentTeacher     CommentType = "teacher"
)

var (
	ErrInvalidCommentType = errors.New("invalid_comment_type")
	ErrInvalidStage       = errors.New("invalid_stage")
	ErrForbidden          = errors.New("forbidden")
	ErrCommentTooShort    = errors.New("comment_too_short")
	ErrMissingReason      = errors.New("missing_reason")
	ErrReasonTooLong      = errors.New("reason_too_long")
	ErrAlreadyRejected    = errors.New("already_rejected")
	ErrResponseLocked     = errors.New("response_locked")
)

// State is the derived view of a report.
type State struct {
	Stage          int32  `json:"stage"`
	Phase          Phase  `json:"phase"`
	AwaitingRole   Role   `json:"awaitingRole,omitempty"`
	AwaitingUserID string `json:"awaitingUserId,omitempty"`
	Rejected       bool   `json:"rejected"`
	Complete       bool   `json:"complete"`
}

func Derive(r db.Report) State {
	state := State{Stage: r.Stage, Rejected: r.RejectedAt.Valid}

	switch r.Stage {
	case StageAwaitingResponse:
		state.Phase = PhaseAwaitingResponse
		state.AwaitingRole = RoleStudent
	case StageAwaitingTimeTeacher:
		state.Phase = PhaseAwaitingTimeTeacher
		state.AwaitingRole = RoleTimeTeacher
		state.AwaitingUserID = uuidString(r.TimeTeacherID)
	case StageAwaitingTeacher:
		state.Phase = PhaseAwaitingTeacher
		state.AwaitingRole = RoleTeacher
		state.AwaitingUserID = uuidString(r.TeacherID)
	default:
		state.Phase = PhaseComplete
	}

	if state.Rejected {
		state.Phase = PhaseRejected
		if r.Stage >= StageComplete {
			// Not reachable through Reject; treat as awaiting the teacher.
			state.AwaitingRole = RoleTeacher
			state.AwaitingUserID = uuidString(r.TeacherID)
		}
		return state
	}
	state.Complete = r.Stage >= StageComplete
	return state
}

// AwaitsUser reports whether userID is the reviewer the report is waiting on.
func AwaitsUser(r db.Report, userID string) bool {
	if userID == "" {
		return false
	}
	return strings.EqualFold(Derive(r).AwaitingUserID, userID)
}

// IsReviewer reports whether userID is one of the report's assigned reviewers.
func IsReviewer(r db.Report, userID string) bool {
	if userID == "" {
		return false
	}
	return strings.EqualFold(uuidString(r.TimeTeacherID), userID) || strings.EqualFold(uuidString(r.TeacherID), userID)
}

func ParseCommentType(value string) (CommentType, error) {
	switch CommentType(strings.TrimSpace(value)) {
	case CommentTimeTeacher:
		return CommentTimeTeacher, nil
	case CommentTeacher:
		return CommentTeacher, nil
	default:
		return "", ErrInvalidCommentType
	}
}

// RequiredStage is the stage a comment of the given type advances from.
func RequiredStage(ct CommentType) (int32, error) {
	switch ct {
	case CommentTimeTeacher:
		return StageAwaitingTimeTeacher, nil
	case CommentTeacher:
		return StageAwaitingTeacher, nil
	default:
		return 0, ErrInvalidCommentType
	}
}

// Authorize checks that actorID is the reviewer assigned to comments of type ct.
func Authorize(r db.Report, actorID string, ct CommentType) error {
	var assigned pgtype.UUID
	switch ct {
	case CommentTimeTeacher:
		assigned = r.TimeTeacherID
	case CommentTeacher:
		assigned = r.TeacherID
	default:
		return ErrInvalidCommentType
	}
	if actorID == "" || !assigned.Valid || !strings.EqualFold(uuidString(assigned), actorID) {
		return ErrForbidden
	}
	return nil
}

// Advance applies a reviewer comment and returns the next report value.
// The input is not modified.
func Advance(r db.Report, actorID, comment string, ct CommentType, now time.Time) (db.Report, error) {
	required, err := RequiredStage(ct)
	if err != nil {
		return r, err
	}
	if err := Authorize(r, actorID, ct); err != nil {
		return r, err
	}
	if r.Stage != required {
		return r, ErrInvalidStage
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) < MinCommentLength {
		return r, ErrCommentTooShort
	}

	next := r
	at := pgtype.Timestamptz{Time: now.UTC(), Valid: true}
	switch ct {
	case CommentTimeTeacher:
		next.TimeTeacherComment = pgtype.Text{String: comment, Valid: true}
		next.TimeTeacherCompletedAt = at
	case CommentTeacher:
		next.TeacherComment = pgtype.Text{String: comment, Valid: true}
		next.TeacherCompletedAt = at
	}
	next.Stage = r.Stage + 1
	clearRejection(&next)
	next.UpdatedAt = at
	return next, nil
}

// Reject records a rejection. The stage is kept, except that a complete report
// is reopened for the teacher so it is never complete and rejected at once.
func Reject(r db.Report, actorID string, privileged bool, reason string, now time.Time) (db.Report, error) {
	if !privileged && !IsReviewer(r, actorID) {
		return r, ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return r, ErrMissingReason
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return r, ErrReasonTooLong
	}
	if r.RejectedAt.Valid {
		return r, ErrAlreadyRejected
	}
	rejectedBy, err := uuid.Parse(actorID)
	if err != nil {
		return r, ErrForbidden
	}

	next := r
	at := pgtype.Timestamptz{Time: now.UTC(), Valid: true}
	if next.Stage >= StageComplete {
		next.Stage = StageAwaitingTeacher
		next.TeacherCompletedAt = pgtype.Timestamptz{}
	}
	next.RejectedAt = at
	next.RejectedBy = pgtype.UUID{Bytes: rejectedBy, Valid: true}
	next.RejectionReason = pgtype.Text{String: reason, Valid: true}
	next.UpdatedAt = at
	return next, nil
}

// Submit moves a report to stage 1 after the student (re)submits answers.
// A resubmission resets any time-teacher review and clears a rejection.
func Submit(r db.Report, now time.Time) (db.Report, error) {
	if r.Stage > StageAwaitingTimeTeacher {
		return r, ErrResponseLocked
	}
	next := r
	next.Stage = StageAwaitingTimeTeacher
	next.TimeTeacherComment = pgtype.Text{}
	next.TimeTeacherCompletedAt = pgtype.Timestamptz{}
	clearRejection(&next)
	next.UpdatedAt = pgtype.Timestamptz{Time: now.UTC(), Valid: true}
	return next, nil
}

func clearRejection(r *db.Report) {
	r.RejectedAt = pgtype.Timestamptz{}
	r.RejectedBy = pgtype.UUID{}
	r.RejectionReason = pgtype.Text{}
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}
