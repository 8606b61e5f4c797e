package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const studentReportColumns = `id, student_id, class_id, title, period_start, period_end, content, source, created_by, created_at, updated_at`

func scanStudentReport(row scanner) (StudentReport, error) {
	var i StudentReport
	err := row.Scan(
		&i.ID,
		&i.StudentID,
		&i.ClassID,
		&i.Title,
		&i.PeriodStart,
		&i.PeriodEnd,
		&i.Content,
		&i.Source,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listStudentReportsByStudent = `-- name: ListStudentReportsByStudent :many
SELECT ` + studentReportColumns + `
FROM student_reports
WHERE student_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListStudentReportsByStudentParams struct {
	StudentID pgtype.UUID
	Limit     int32
}

func (q *Queries) ListStudentReportsByStudent(ctx context.Context, arg ListStudentReportsByStudentParams) ([]StudentReport, error) {
	rows, err := q.db.Query(ctx, listStudentReportsByStudent, arg.StudentID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanStudentReport)
}

const getStudentReport = `-- name: GetStudentReport :one
SELECT ` + studentReportColumns + `
FROM student_reports
WHERE id = $1
`

func (q *Queries) GetStudentReport(ctx context.Context, id pgtype.UUID) (StudentReport, error) {
	return scanStudentReport(q.db.QueryRow(ctx, getStudentReport, id))
}

const createStudentReport = `-- name: CreateStudentReport :one
INSERT INTO student_reports (id, student_id, class_id, title, period_start, period_end, content, source, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
RETURNING ` + studentReportColumns

type CreateStudentReportParams struct {
	ID          pgtype.UUID
	StudentID   pgtype.UUID
	ClassID     pgtype.UUID
	Title       string
	PeriodStart pgtype.Timestamptz
	PeriodEnd   pgtype.Timestamptz
	Content     string
	Source      SummarySource
	CreatedBy   pgtype.UUID
	CreatedAt   pgtype.Timestamptz
}

func (q *Queries) CreateStudentReport(ctx context.Context, arg CreateStudentReportParams) (StudentReport, error) {
	row := q.db.QueryRow(ctx, createStudentReport,
		arg.ID,
		arg.StudentID,
		arg.ClassID,
		arg.Title,
		arg.PeriodStart,
		arg.PeriodEnd,
		arg.Content,
		string(arg.Source),
		arg.CreatedBy,
		arg.CreatedAt,
	)
	return scanStudentReport(row)
}

const updateStudentReport = `-- name: UpdateStudentReport :one
UPDATE student_reports
SET title = $2, content = $3, source = $4, updated_at = $5
WHERE id = $1
RETURNING ` + studentReportColumns

type UpdateStudentReportParams struct {
	ID        pgtype.UUID
	Title     string
	Content   string
	Source    SummarySource
	UpdatedAt pgtype.Timestamptz
}

func (q *Queries) UpdateStudentReport(ctx context.Context, arg UpdateStudentReportParams) (StudentReport, error) {
	row := q.db.QueryRow(ctx, updateStudentReport, arg.ID, arg.Title, arg.Content, string(arg.Source), arg.UpdatedAt)
	return scanStudentReport(row)
}

const deleteStudentReport = `-- name: DeleteStudentReport :execrows
DELETE FROM student_reports WHERE id = $1
`

func (q *Queries) DeleteStudentReport(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteStudentReport, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
