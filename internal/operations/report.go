package operations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/workflow"
)

var now = func() time.Time { return time.Now().UTC() }

type AdvanceInput struct {
	ReportID    string
	UserID      string
	Comment     string
	CommentType string
}

// AdvanceReportStage applies a reviewer comment inside one transaction and
// returns the stored report. The row is locked and the update is conditional on
// the stage it was read at, so repeated submissions cannot advance twice.
func AdvanceReportStage(ctx context.Context, store *db.Store, in AdvanceInput) (db.Report, error) {
	reportID, err := parseUUID(in.ReportID)
	if err != nil {
		return db.Report{}, &Error{Code: ErrInvalidReportID}
	}
	commentType, err := workflow.ParseCommentType(in.CommentType)
	if err != nil {
		return db.Report{}, fromWorkflow(err)
	}

	var updated db.Report
	err = store.WithTx(ctx, func(q *db.Queries) error {
		report, err := q.GetReportForUpdate(ctx, reportID)
		if err != nil {
			if db.IsNotFound(err) {
				return &Error{Code: ErrReportNotFound}
			}
			return err
		}
		next, err := workflow.Advance(report, in.UserID, in.Comment, commentType, now())
		if err != nil {
			return fromWorkflow(err)
		}
		updated, err = saveWorkflow(ctx, q, report.Stage, next)
		return err
	})
	return updated, asError(err)
}

type RejectInput struct {
	ReportID   string
	RejectedBy string
	Reason     string
	// Privileged callers (admin, dev) may reject reports they do not review.
	Privileged bool
}

func RejectReport(ctx context.Context, store *db.Store, in RejectInput) (db.Report, error) {
	reportID, err := parseUUID(in.ReportID)
	if err != nil {
		return db.Report{}, &Error{Code: ErrInvalidReportID}
	}

	var updated db.Report
	err = store.WithTx(ctx, func(q *db.Queries) error {
		report, err := q.GetReportForUpdate(ctx, reportID)
		if err != nil {
			if db.IsNotFound(err) {
				return &Error{Code: ErrReportNotFound}
			}
			return err
		}
		next, err := workflow.Reject(report, in.RejectedBy, in.Privileged, in.Reason, now())
		if err != nil {
			return fromWorkflow(err)
		}
		updated, err = saveWorkflow(ctx, q, report.Stage, next)
		return err
	})
	return updated, asError(err)
}

type FinalReportInput struct {
	ReportID    string
	UserID      string
	FinalReport string
	Privileged  bool
}

// SetFinalReport stores the final report text. Only the assigned teacher, or a
// privileged caller, may write it and only once the report is complete.
func SetFinalReport(ctx context.Context, store *db.Store, in FinalReportInput) (db.Report, error) {
	reportID, err := parseUUID(in.ReportID)
	if err != nil {
		return db.Report{}, &Error{Code: ErrInvalidReportID}
	}

	var updated db.Report
	err = store.WithTx(ctx, func(q *db.Queries) error {
		report, err := q.GetReportForUpdate(ctx, reportID)
		if err != nil {
			if db.IsNotFound(err) {
				return &Error{Code: ErrReportNotFound}
			}
			return err
		}
		if !in.Privileged && !strings.EqualFold(uuidString(report.TeacherID), in.UserID) {
			return &Error{Code: ErrForbidden, Message: ForbiddenMessage}
		}
		if !workflow.Derive(report).Complete {
			return &Error{Code: ErrReportNotComplete}
		}
		text := strings.TrimSpace(in.FinalReport)
		updated, err = q.UpdateReportFinal(ctx, db.UpdateReportFinalParams{
			ID:          report.ID,
			FinalReport: pgtype.Text{String: text, Valid: text != ""},
			UpdatedAt:   pgTime(now()),
		})
		return err
	})
	return updated, asError(err)
}

func saveWorkflow(ctx context.Context, q *db.Queries, expectedStage int32, next db.Report) (db.Report, error) {
	saved, err := q.SaveReportWorkflow(ctx, db.SaveReportWorkflowParams{
		ID:                     next.ID,
		ExpectedStage:          expectedStage,
		Stage:                  next.Stage,
		TimeTeacherComment:     next.TimeTeacherComment,
		TimeTeacherCompletedAt: next.TimeTeacherCompletedAt,
		TeacherComment:         next.TeacherComment,
		TeacherCompletedAt:     next.TeacherCompletedAt,
		RejectedAt:             next.RejectedAt,
		RejectedBy:             next.RejectedBy,
		RejectionReason:        next.RejectionReason,
		UpdatedAt:              next.UpdatedAt,
	})
	if err != nil {
		if db.IsNotFound(err) {
			return db.Report{}, &Error{Code: ErrStageChanged}
		}
		return db.Report{}, err
	}
	return saved, nil
}

func parseUUID(id string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

func pgTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}
