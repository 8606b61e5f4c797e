package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const classColumns = `id, group_id, name, description, time_teacher_id, teacher_id, created_at, updated_at`

func scanClass(row scanner) (Class, error) {
	var i Class
	err := row.Scan(
		&i.ID,
		&i.GroupID,
		&i.Name,
		&i.Description,
		&i.TimeTeacherID,
		&i.TeacherID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listClassesByGroup = `-- name: ListClassesByGroup :many
SELECT ` + classColumns + `
FROM classes
WHERE group_id = $1
ORDER BY name
LIMIT $2
`

type ListClassesByGroupParams struct {
	GroupID pgtype.UUID
	Limit   int32
}

func (q *Queries) ListClassesByGroup(ctx context.Context, arg ListClassesByGroupParams) ([]Class, error) {
	rows, err := q.db.Query(ctx, listClassesByGroup, arg.GroupID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanClass)
}

const listClassesByReviewer = `-- name: ListClassesByReviewer :many
SELECT ` + classColumns + `
FROM classes
WHERE time_teacher_id = $1 OR teacher_id = $1
ORDER BY name
LIMIT $2
`

type ListClassesByReviewerParams struct {
	ReviewerID pgtype.UUID
	Limit      int32
}

func (q *Queries) ListClassesByReviewer(ctx context.Context, arg ListClassesByReviewerParams) ([]Class, error) {
	rows, err := q.db.Query(ctx, listClassesByReviewer, arg.ReviewerID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanClass)
}

const getClass = `-- name: GetClass :one
SELECT ` + classColumns + `
FROM classes
WHERE id = $1
`

func (q *Queries) GetClass(ctx context.Context, id pgtype.UUID) (Class, error) {
	return scanClass(q.db.QueryRow(ctx, getClass, id))
}

const createClass = `-- name: CreateClass :one
INSERT INTO classes (id, group_id, name, description, time_teacher_id, teacher_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + classColumns

type CreateClassParams struct {
	ID            pgtype.UUID
	GroupID       pgtype.UUID
	Name          string
	Description   pgtype.Text
	TimeTeacherID pgtype.UUID
	TeacherID     pgtype.UUID
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

func (q *Queries) CreateClass(ctx context.Context, arg CreateClassParams) (Class, error) {
	row := q.db.QueryRow(ctx, createClass,
		arg.ID,
		arg.GroupID,
		arg.Name,
		arg.Description,
		arg.TimeTeacherID,
		arg.TeacherID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanClass(row)
}

const updateClass = `-- name: UpdateClass :one
UPDATE classes
SET name = $2, description = $3, time_teacher_id = $4, teacher_id = $5, updated_at = $6
WHERE id = $1
RETURNING ` + classColumns

type UpdateClassParams struct {
	ID            pgtype.UUID
	Name          string
	Description   pgtype.Text
	TimeTeacherID pgtype.UUID
	TeacherID     pgtype.UUID
	UpdatedAt     pgtype.Timestamptz
}

func (q *Queries) UpdateClass(ctx context.Context, arg UpdateClassParams) (Class, error) {
	row := q.db.QueryRow(ctx, updateClass,
		arg.ID,
		arg.Name,
		arg.Description,
		arg.TimeTeacherID,
		arg.TeacherID,
		arg.UpdatedAt,
	)
	return scanClass(row)
}

const deleteClass = `-- name: DeleteClass :execrows
DELETE FROM classes WHERE id = $1
`

func (q *Queries) DeleteClass(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteClass, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
