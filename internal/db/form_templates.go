package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const formTemplateColumns = `id, title, description, fields, created_by, created_at, updated_at`

func scanFormTemplate(row scanner) (FormTemplate, error) {
	var i FormTemplate
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Description,
		&i.Fields,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listFormTemplates = `-- name: ListFormTemplates :many
SELECT ` + formTemplateColumns + `
FROM form_templates
ORDER BY created_at DESC
LIMIT $1
`

func (q *Queries) ListFormTemplates(ctx context.Context, limit int32) ([]FormTemplate, error) {
	rows, err := q.db.Query(ctx, listFormTemplates, limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanFormTemplate)
}

const getFormTemplate = `-- name: GetFormTemplate :one
SELECT ` + formTemplateColumns + `
FROM form_templates
WHERE id = $1
`

func (q *Queries) GetFormTemplate(ctx context.Context, id pgtype.UUID) (FormTemplate, error) {
	return scanFormTemplate(q.db.QueryRow(ctx, getFormTemplate, id))
}

const createFormTemplate = `-- name: CreateFormTemplate :one
INSERT INTO form_templates (id, title, description, fields, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + formTemplateColumns

type CreateFormTemplateParams struct {
	ID          pgtype.UUID
	Title       string
	Description pgtype.Text
	Fields      []byte
	CreatedBy   pgtype.UUID
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

func (q *Queries) CreateFormTemplate(ctx context.Context, arg CreateFormTemplateParams) (FormTemplate, error) {
	row := q.db.QueryRow(ctx, createFormTemplate,
		arg.ID,
		arg.Title,
		arg.Description,
		arg.Fields,
		arg.CreatedBy,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanFormTemplate(row)
}

const updateFormTemplate = `-- name: UpdateFormTemplate :one
UPDATE form_templates
SET title = $2, description = $3, fields = $4, updated_at = $5
WHERE id = $1
RETURNING ` + formTemplateColumns

type UpdateFormTemplateParams struct {
	ID          pgtype.UUID
	Title       string
	Description pgtype.Text
	Fields      []byte
	UpdatedAt   pgtype.Timestamptz
}

func (q *Queries) UpdateFormTemplate(ctx context.Context, arg UpdateFormTemplateParams) (FormTemplate, error) {
	row := q.db.QueryRow(ctx, updateFormTemplate, arg.ID, arg.Title, arg.Description, arg.Fields, arg.UpdatedAt)
	return scanFormTemplate(row)
}

const deleteFormTemplate = `-- name: DeleteFormTemplate :execrows
DELETE FROM form_templates WHERE id = $1
`

func (q *Queries) DeleteFormTemplate(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteFormTemplate, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
