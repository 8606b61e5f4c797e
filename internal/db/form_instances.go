package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const formInstanceColumns = `id, form_id, student_id, status, submitted_at, created_at, updated_at`

func scanFormInstance(row scanner) (FormInstance, error) {
	var i FormInstance
	err := row.Scan(
		&i.ID,
		&i.FormID,
		&i.StudentID,
		&i.Status,
		&i.SubmittedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listFormInstancesByForm = `-- name: ListFormInstancesByForm :many
SELECT ` + formInstanceColumns + `
FROM form_instances
WHERE form_id = $1
ORDER BY created_at
LIMIT $2
`

type ListFormInstancesByFormParams struct {
	FormID pgtype.UUID
	Limit  int32
}

func (q *Queries) ListFormInstancesByForm(ctx context.Context, arg ListFormInstancesByFormParams) ([]FormInstance, error) {
	rows, err := q.db.Query(ctx, listFormInstancesByForm, arg.FormID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanFormInstance)
}

const listFormInstancesByStudent = `-- name: ListFormInstancesByStudent :many
SELECT ` + formInstanceColumns + `
FROM form_instances
WHERE student_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListFormInstancesByStudentParams struct {
	StudentID pgtype.UUID
	Limit     int32
}

func (q *Queries) ListFormInstancesByStudent(ctx context.Context, arg ListFormInstancesByStudentParams) ([]FormInstance, error) {
	rows, err := q.db.Query(ctx, listFormInstancesByStudent, arg.StudentID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanFormInstance)
}

const getFormInstance = `-- name: GetFormInstance :one
SELECT ` + formInstanceColumns + `
FROM form_instances
WHERE id = $1
`

func (q *Queries) GetFormInstance(ctx context.Context, id pgtype.UUID) (FormInstance, error) {
	return scanFormInstance(q.db.QueryRow(ctx, getFormInstance, id))
}

const getFormInstanceForUpdate = `-- name: GetFormInstanceForUpdate :one
SELECT ` + formInstanceColumns + `
FROM form_instances
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetFormInstanceForUpdate(ctx context.Context, id pgtype.UUID) (FormInstance, error) {
	return scanFormInstance(q.db.QueryRow(ctx, getFormInstanceForUpdate, id))
}

const createFormInstance = `-- name: CreateFormInstance :one
INSERT INTO form_instances (id, form_id, student_id, status, created_at, updated_at)
VALUES ($1, $2, $3, 'pending', $4, $5)
ON CONFLICT (form_id, student_id) DO NOTHING
RETURNING ` + formInstanceColumns

type CreateFormInstanceParams struct {
	ID        pgtype.UUID
	FormID    pgtype.UUID
	StudentID pgtype.UUID
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// CreateFormInstance returns pgx.ErrNoRows when the student already has an
// instance of the form.
func (q *Queries) CreateFormInstance(ctx context.Context, arg CreateFormInstanceParams) (FormInstance, error) {
	row := q.db.QueryRow(ctx, createFormInstance,
		arg.ID,
		arg.FormID,
		arg.StudentID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanFormInstance(row)
}

const markFormInstanceSubmitted = `-- name: MarkFormInstanceSubmitted :one
UPDATE form_instances
SET status = 'submitted', submitted_at = $2, updated_at = $2
WHERE id = $1
RETURNING ` + formInstanceColumns

func (q *Queries) MarkFormInstanceSubmitted(ctx context.Context, id pgtype.UUID, submittedAt pgtype.Timestamptz) (FormInstance, error) {
	return scanFormInstance(q.db.QueryRow(ctx, markFormInstanceSubmitted, id, submittedAt))
}

const formResponseColumns = `id, form_instance_id, form_id, student_id, answers, created_at, updated_at`

func scanFormResponse(row scanner) (FormResponse, error) {
	var i FormResponse
	err := row.Scan(
		&i.ID,
		&i.FormInstanceID,
		&i.FormID,
		&i.StudentID,
		&i.Answers,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getFormResponseByInstance = `-- name: GetFormResponseByInstance :one
SELECT ` + formResponseColumns + `
FROM form_responses
WHERE form_instance_id = $1
`

func (q *Queries) GetFormResponseByInstance(ctx context.Context, formInstanceID pgtype.UUID) (FormResponse, error) {
	return scanFormResponse(q.db.QueryRow(ctx, getFormResponseByInstance, formInstanceID))
}

const upsertFormResponse = `-- name: UpsertFormResponse :one
INSERT INTO form_responses (id, form_instance_id, form_id, student_id, answers, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (form_instance_id) DO UPDATE
SET answers = EXCLUDED.answers, updated_at = EXCLUDED.updated_at
RETURNING ` + formResponseColumns

type UpsertFormResponseParams struct {
	ID             pgtype.UUID
	FormInstanceID pgtype.UUID
	FormID         pgtype.UUID
	StudentID      pgtype.UUID
	Answers        []byte
	Now            pgtype.Timestamptz
}

func (q *Queries) UpsertFormResponse(ctx context.Context, arg UpsertFormResponseParams) (FormResponse, error) {
	row := q.db.QueryRow(ctx, upsertFormResponse,
		arg.ID,
		arg.FormInstanceID,
		arg.FormID,
		arg.StudentID,
		arg.Answers,
		arg.Now,
	)
	return scanFormResponse(row)
}

const listFormResponsesByForm = `-- name: ListFormResponsesByForm :many
SELECT ` + formResponseColumns + `
FROM form_responses
WHERE form_id = $1
ORDER BY created_at
`

func (q *Queries) ListFormResponsesByForm(ctx context.Context, formID pgtype.UUID) ([]FormResponse, error) {
	rows, err := q.db.Query(ctx, listFormResponsesByForm, formID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanFormResponse)
}

const listFormResponsesByStudent = `-- name: ListFormResponsesByStudent :many
SELECT ` + formResponseColumns + `
FROM form_responses
WHERE student_id = $1
  AND ($2::timestamptz IS NULL OR updated_at >= $2)
  AND ($3::timestamptz IS NULL OR updated_at <= $3)
ORDER BY updated_at
`

type ListFormResponsesByStudentParams struct {
	StudentID pgtype.UUID
	From      pgtype.Timestamptz
	To        pgtype.Timestamptz
}

func (q *Queries) ListFormResponsesByStudent(ctx context.Context, arg ListFormResponsesByStudentParams) ([]FormResponse, error) {
	rows, err := q.db.Query(ctx, listFormResponsesByStudent, arg.StudentID, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanFormResponse)
}

const countFormInstances = `-- name: CountFormInstances :one
SELECT
    COUNT(*) AS total,
    COUNT(*) FILTER (WHERE status = 'submitted') AS submitted
FROM form_instances
WHERE form_id = $1
`

type CountFormInstancesRow struct {
	Total     int64
	Submitted int64
}

func (q *Queries) CountFormInstances(ctx context.Context, formID pgtype.UUID) (CountFormInstancesRow, error) {
	var i CountFormInstancesRow
	err := q.db.QueryRow(ctx, countFormInstances, formID).Scan(&i.Total, &i.Submitted)
	return i, err
}
