package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const groupColumns = `id, name, description, owner_id, created_at, updated_at`

func scanGroup(row scanner) (Group, error) {
	var i Group
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.OwnerID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listGroups = `-- name: ListGroups :many
SELECT ` + groupColumns + `
FROM groups
ORDER BY name
LIMIT $1
`

func (q *Queries) ListGroups(ctx context.Context, limit int32) ([]Group, error) {
	rows, err := q.db.Query(ctx, listGroups, limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanGroup)
}

const getGroup = `-- name: GetGroup :one
SELECT ` + groupColumns + `
FROM groups
WHERE id = $1
`

func (q *Queries) GetGroup(ctx context.Context, id pgtype.UUID) (Group, error) {
	return scanGroup(q.db.QueryRow(ctx, getGroup, id))
}

const createGroup = `-- name: CreateGroup :one
INSERT INTO groups (id, name, description, owner_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + groupColumns

type CreateGroupParams struct {
	ID          pgtype.UUID
	Name        string
	Description pgtype.Text
	OwnerID     pgtype.UUID
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

func (q *Queries) CreateGroup(ctx context.Context, arg CreateGroupParams) (Group, error) {
	row := q.db.QueryRow(ctx, createGroup,
		arg.ID,
		arg.Name,
		arg.Description,
		arg.OwnerID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanGroup(row)
}

const updateGroup = `-- name: UpdateGroup :one
UPDATE groups
SET name = $2, description = $3, updated_at = $4
WHERE id = $1
RETURNING ` + groupColumns

type UpdateGroupParams struct {
	ID          pgtype.UUID
	Name        string
	Description pgtype.Text
	UpdatedAt   pgtype.Timestamptz
}

func (q *Queries) UpdateGroup(ctx context.Context, arg UpdateGroupParams) (Group, error) {
	row := q.db.QueryRow(ctx, updateGroup, arg.ID, arg.Name, arg.Description, arg.UpdatedAt)
	return scanGroup(row)
}

const deleteGroup = `-- name: DeleteGroup :execrows
DELETE FROM groups WHERE id = $1
`

func (q *Queries) DeleteGroup(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteGroup, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const countGroupMembers = `-- name: CountGroupMembers :one
SELECT
    (SELECT COUNT(*) FROM classes c WHERE c.group_id = $1) AS classes,
    (SELECT COUNT(*) FROM students s JOIN classes c ON c.id = s.class_id WHERE c.group_id = $1) AS students,
    (SELECT COUNT(*) FROM forms f JOIN classes c ON c.id = f.class_id WHERE c.group_id = $1) AS forms
`

type CountGroupMembersRow struct {
	Classes  int64
	Students int64
	Forms    int64
}

func (q *Queries) CountGroupMembers(ctx context.Context, groupID pgtype.UUID) (CountGroupMembersRow, error) {
	var i CountGroupMembersRow
	err := q.db.QueryRow(ctx, countGroupMembers, groupID).Scan(&i.Classes, &i.Students, &i.Forms)
	return i, err
}
