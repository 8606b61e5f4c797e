package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const reportColumns = `r.id, r.form_id, r.form_instance_id, r.student_id, r.class_id, r.stage,
    r.time_teacher_id, r.teacher_id, r.time_teacher_comment, r.time_teacher_completed_at,
    r.teacher_comment, r.teacher_completed_at, r.rejected_at, r.rejected_by, r.rejection_reason,
    r.final_report, r.created_at, r.updated_at`

func scanReport(row scanner) (Report, error) {
	var i Report
	err := row.Scan(
		&i.ID,
		&i.FormID,
		&i.FormInstanceID,
		&i.StudentID,
		&i.ClassID,
		&i.Stage,
		&i.TimeTeacherID,
		&i.TeacherID,
		&i.TimeTeacherComment,
		&i.TimeTeacherCompletedAt,
		&i.TeacherComment,
		&i.TeacherCompletedAt,
		&i.RejectedAt,
		&i.RejectedBy,
		&i.RejectionReason,
		&i.FinalReport,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getReport = `-- name: GetReport :one
SELECT ` + reportColumns + `
FROM reports r
WHERE r.id = $1
`

func (q *Queries) GetReport(ctx context.Context, id pgtype.UUID) (Report, error) {
	return scanReport(q.db.QueryRow(ctx, getReport, id))
}

const getReportForUpdate = `-- name: GetReportForUpdate :one
SELECT ` + reportColumns + `
FROM reports r
WHERE r.id = $1
FOR UPDATE
`

func (q *Queries) GetReportForUpdate(ctx context.Context, id pgtype.UUID) (Report, error) {
	return scanReport(q.db.QueryRow(ctx, getReportForUpdate, id))
}

const getReportByInstanceForUpdate = `-- name: GetReportByInstanceForUpdate :one
SELECT ` + reportColumns + `
FROM reports r
WHERE r.form_instance_id = $1
FOR UPDATE
`

func (q *Queries) GetReportByInstanceForUpdate(ctx context.Context, formInstanceID pgtype.UUID) (Report, error) {
	return scanReport(q.db.QueryRow(ctx, getReportByInstanceForUpdate, formInstanceID))
}

const listReports = `-- name: ListReports :many
SELECT ` + reportColumns + `
FROM reports r
JOIN classes c ON c.id = r.class_id
WHERE ($1::uuid IS NULL OR r.class_id = $1)
  AND ($2::uuid IS NULL OR r.student_id = $2)
  AND ($3::uuid IS NULL OR r.form_id = $3)
  AND ($4::uuid IS NULL OR c.group_id = $4)
  AND ($5::int IS NULL OR r.stage = $5)
  AND ($6::uuid IS NULL OR r.time_teacher_id = $6 OR r.teacher_id = $6)
  AND ($7::uuid IS NULL OR r.student_id IN (SELECT s.id FROM students s WHERE s.user_id = $7))
  AND ($8::text IS NULL
    OR ($8 = 'rejected' AND r.rejected_at IS NOT NULL)
    OR (r.rejected_at IS NULL AND (
         ($8 = 'awaiting_response' AND r.stage = 0)
      OR ($8 = 'awaiting_time_teacher' AND r.stage = 1)
      OR ($8 = 'awaiting_teacher' AND r.stage = 2)
      OR ($8 = 'complete' AND r.stage >= 3))))
  AND ($9::uuid IS NULL
    OR (r.stage = 1 AND r.time_teacher_id = $9)
    OR (r.stage = 2 AND r.teacher_id = $9))
  AND (NOT $10::boolean OR r.stage = 0)
ORDER BY r.updated_at DESC
LIMIT $11
`

// ListReportsParams filters reports. Phase matches the phase workflow.Derive
// reports. The awaiting filters keep reports whose current stage waits on the
// given reviewer or on the student.
type ListReportsParams struct {
	ClassID         pgtype.UUID
	StudentID       pgtype.UUID
	FormID          pgtype.UUID
	GroupID         pgtype.UUID
	Stage           pgtype.Int4
	ReviewerID      pgtype.UUID
	StudentUserID   pgtype.UUID
	Phase           pgtype.Text
	AwaitingUserID  pgtype.UUID
	AwaitingStudent bool
	Limit           int32
}

func (q *Queries) ListReports(ctx context.Context, arg ListReportsParams) ([]Report, error) {
	rows, err := q.db.Query(ctx, listReports,
		arg.ClassID,
		arg.StudentID,
		arg.FormID,
		arg.GroupID,
		arg.Stage,
		arg.ReviewerID,
		arg.StudentUserID,
		arg.Phase,
		arg.AwaitingUserID,
		arg.AwaitingStudent,
		arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanReport)
}

const listStalledReports = `-- name: ListStalledReports :many
SELECT ` + reportColumns + `
FROM reports r
WHERE r.stage IN (1, 2)
  AND r.updated_at < $1
ORDER BY r.updated_at
LIMIT $2
`

type ListStalledReportsParams struct {
	Before pgtype.Timestamptz
	Limit  int32
}

func (q *Queries) ListStalledReports(ctx context.Context, arg ListStalledReportsParams) ([]Report, error) {
	rows, err := q.db.Query(ctx, listStalledReports, arg.Before, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanReport)
}

const createReport = `-- name: CreateReport :one
INSERT INTO reports AS r (id, form_id, form_instance_id, student_id, class_id, stage,
    time_teacher_id, teacher_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
RETURNING ` + reportColumns

type CreateReportParams struct {
	ID             pgtype.UUID
	FormID         pgtype.UUID
	FormInstanceID pgtype.UUID
	StudentID      pgtype.UUID
	ClassID        pgtype.UUID
	Stage          int32
	TimeTeacherID  pgtype.UUID
	TeacherID      pgtype.UUID
	CreatedAt      pgtype.Timestamptz
}

func (q *Queries) CreateReport(ctx context.Context, arg CreateReportParams) (Report, error) {
	row := q.db.QueryRow(ctx, createReport,
		arg.ID,
		arg.FormID,
		arg.FormInstanceID,
		arg.StudentID,
		arg.ClassID,
		arg.Stage,
		arg.TimeTeacherID,
		arg.TeacherID,
		arg.CreatedAt,
	)
	return scanReport(row)
}

const saveReportWorkflow = `-- name: SaveReportWorkflow :one
UPDATE reports AS r
SET stage = $3,
    time_teacher_comment = $4,
    time_teacher_completed_at = $5,
    teacher_comment = $6,
    teacher_completed_at = $7,
    rejected_at = $8,
    rejected_by = $9,
    rejection_reason = $10,
    updated_at = $11
WHERE r.id = $1 AND r.stage = $2
RETURNING ` + reportColumns

type SaveReportWorkflowParams struct {
	ID                     pgtype.UUID
	ExpectedStage          int32
	Stage                  int32
	TimeTeacherComment     pgtype.Text
	TimeTeacherCompletedAt pgtype.Timestamptz
	TeacherComment         pgtype.Text
	TeacherCompletedAt     pgtype.Timestamptz
	RejectedAt             pgtype.Timestamptz
	RejectedBy             pgtype.UUID
	RejectionReason        pgtype.Text
	UpdatedAt              pgtype.Timestamptz
}

// SaveReportWorkflow writes the workflow columns only while the row is still
// at ExpectedStage. A concurrent transition makes it return pgx.ErrNoRows.
func (q *Queries) SaveReportWorkflow(ctx context.Context, arg SaveReportWorkflowParams) (Report, error) {
	row := q.db.QueryRow(ctx, saveReportWorkflow,
		arg.ID,
		arg.ExpectedStage,
		arg.Stage,
		arg.TimeTeacherComment,
		arg.TimeTeacherCompletedAt,
		arg.TeacherComment,
		arg.TeacherCompletedAt,
		arg.RejectedAt,
		arg.RejectedBy,
		arg.RejectionReason,
		arg.UpdatedAt,
	)
	return scanReport(row)
}

const updateReportFinal = `-- name: UpdateReportFinal :one
UPDATE reports AS r
SET final_report = $2, updated_at = $3
WHERE r.id = $1
RETURNING ` + reportColumns

type UpdateReportFinalParams struct {
	ID          pgtype.UUID
	FinalReport pgtype.Text
	UpdatedAt   pgtype.Timestamptz
}

func (q *Queries) UpdateReportFinal(ctx context.Context, arg UpdateReportFinalParams) (Report, error) {
	return scanReport(q.db.QueryRow(ctx, updateReportFinal, arg.ID, arg.FinalReport, arg.UpdatedAt))
}

const groupIDForClass = `-- name: GroupIDForClass :one
SELECT group_id FROM classes WHERE id = $1
`

func (q *Queries) GroupIDForClass(ctx context.Context, classID pgtype.UUID) (pgtype.UUID, error) {
	var groupID pgtype.UUID
	err := q.db.QueryRow(ctx, groupIDForClass, classID).Scan(&groupID)
	return groupID, err
}

const countReportsByPhase = `-- name: CountReportsByPhase :many
SELECT
    CASE
        WHEN r.rejected_at IS NOT NULL THEN 'rejected'
        WHEN r.stage = 0 THEN 'awaiting_response'
        WHEN r.stage = 1 THEN 'awaiting_time_teacher'
        WHEN r.stage = 2 THEN 'awaiting_teacher'
        ELSE 'complete'
    END AS phase,
    COUNT(*) AS reports
FROM reports r
JOIN classes c ON c.id = r.class_id
WHERE ($1::uuid IS NULL OR c.group_id = $1)
  AND ($2::uuid IS NULL OR r.form_id = $2)
GROUP BY 1
`

type CountReportsByPhaseParams struct {
	GroupID pgtype.UUID
	FormID  pgtype.UUID
}

type CountReportsByPhaseRow struct {
	Phase   string
	Reports int64
}

func (q *Queries) CountReportsByPhase(ctx context.Context, arg CountReportsByPhaseParams) ([]CountReportsByPhaseRow, error) {
	rows, err := q.db.Query(ctx, countReportsByPhase, arg.GroupID, arg.FormID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(row scanner) (CountReportsByPhaseRow, error) {
		var i CountReportsByPhaseRow
		err := row.Scan(&i.Phase, &i.Reports)
		return i, err
	})
}
