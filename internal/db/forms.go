package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const formColumns = `id, class_id, template_id, title, description, fields, status, due_at, created_by, created_at, updated_at`

func scanForm(row scanner) (Form, error) {
	var i Form
	err := row.Scan(
		&i.ID,
		&i.ClassID,
		&i.TemplateID,
		&i.Title,
		&i.Description,
		&i.Fields,
		&i.Status,
		&i.DueAt,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listFormsByClass = `-- name: ListFormsByClass :many
SELECT ` + formColumns + `
FROM forms
WHERE class_id = $1
  AND ($2::text = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3
`

type ListFormsByClassParams struct {
	ClassID pgtype.UUID
	Status  string
	Limit   int32
}

func (q *Queries) ListFormsByClass(ctx context.Context, arg ListFormsByClassParams) ([]Form, error) {
	rows, err := q.db.Query(ctx, listFormsByClass, arg.ClassID, arg.Status, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanForm)
}

const getForm = `-- name: GetForm :one
SELECT ` + formColumns + `
FROM forms
WHERE id = $1
`

func (q *Queries) GetForm(ctx context.Context, id pgtype.UUID) (Form, error) {
	return scanForm(q.db.QueryRow(ctx, getForm, id))
}

const createForm = `-- name: CreateForm :one
INSERT INTO forms (id, class_id, template_id, title, description, fields, status, due_at, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + formColumns

type CreateFormParams struct {
	ID          pgtype.UUID
	ClassID     pgtype.UUID
	TemplateID  pgtype.UUID
	Title       string
	Description pgtype.Text
	Fields      []byte
	Status      FormStatus
	DueAt       pgtype.Timestamptz
	CreatedBy   pgtype.UUID
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

func (q *Queries) CreateForm(ctx context.Context, arg CreateFormParams) (Form, error) {
	row := q.db.QueryRow(ctx, createForm,
		arg.ID,
		arg.ClassID,
		arg.TemplateID,
		arg.Title,
		arg.Description,
		arg.Fields,
		string(arg.Status),
		arg.DueAt,
		arg.CreatedBy,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanForm(row)
}

const updateForm = `-- name: UpdateForm :one
UPDATE forms
SET title = $2, description = $3, fields = $4, status = $5, due_at = $6, updated_at = $7
WHERE id = $1
RETURNING ` + formColumns

type UpdateFormParams struct {
	ID          pgtype.UUID
	Title       string
	Description pgtype.Text
	Fields      []byte
	Status      FormStatus
	DueAt       pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

func (q *Queries) UpdateForm(ctx context.Context, arg UpdateFormParams) (Form, error) {
	row := q.db.QueryRow(ctx, updateForm,
		arg.ID,
		arg.Title,
		arg.Description,
		arg.Fields,
		string(arg.Status),
		arg.DueAt,
		arg.UpdatedAt,
	)
	return scanForm(row)
}

const deleteForm = `-- name: DeleteForm :execrows
DELETE FROM forms WHERE id = $1
`

func (q *Queries) DeleteForm(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteForm, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
