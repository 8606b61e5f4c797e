package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const studentColumns = `id, class_id, user_id, name, email, phone, student_number, created_at, updated_at`

func scanStudent(row scanner) (Student, error) {
	var i Student
	err := row.Scan(
		&i.ID,
		&i.ClassID,
		&i.UserID,
		&i.Name,
		&i.Email,
		&i.Phone,
		&i.StudentNumber,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listStudentsByClass = `-- name: ListStudentsByClass :many
SELECT ` + studentColumns + `
FROM students
WHERE class_id = $1
  AND ($2::text = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
ORDER BY name
LIMIT $3
`

type ListStudentsByClassParams struct {
	ClassID pgtype.UUID
	Search  string
	Limit   int32
}

func (q *Queries) ListStudentsByClass(ctx context.Context, arg ListStudentsByClassParams) ([]Student, error) {
	rows, err := q.db.Query(ctx, listStudentsByClass, arg.ClassID, arg.Search, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanStudent)
}

const listStudentsByUser = `-- name: ListStudentsByUser :many
SELECT ` + studentColumns + `
FROM students
WHERE user_id = $1
ORDER BY created_at
`

func (q *Queries) ListStudentsByUser(ctx context.Context, userID pgtype.UUID) ([]Student, error) {
	rows, err := q.db.Query(ctx, listStudentsByUser, userID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanStudent)
}

const getStudent = `-- name: GetStudent :one
SELECT ` + studentColumns + `
FROM students
WHERE id = $1
`

func (q *Queries) GetStudent(ctx context.Context, id pgtype.UUID) (Student, error) {
	return scanStudent(q.db.QueryRow(ctx, getStudent, id))
}

const createStudent = `-- name: CreateStudent :one
INSERT INTO students (id, class_id, user_id, name, email, phone, student_number, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + studentColumns

type CreateStudentParams struct {
	ID            pgtype.UUID
	ClassID       pgtype.UUID
	UserID        pgtype.UUID
	Name          string
	Email         pgtype.Text
	Phone         pgtype.Text
	StudentNumber pgtype.Text
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

func (q *Queries) CreateStudent(ctx context.Context, arg CreateStudentParams) (Student, error) {
	row := q.db.QueryRow(ctx, createStudent,
		arg.ID,
		arg.ClassID,
		arg.UserID,
		arg.Name,
		arg.Email,
		arg.Phone,
		arg.StudentNumber,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanStudent(row)
}

const updateStudent = `-- name: UpdateStudent :one
UPDATE students
SET class_id = $2, user_id = $3, name = $4, email = $5, phone = $6, student_number = $7, updated_at = $8
WHERE id = $1
RETURNING ` + studentColumns

type UpdateStudentParams struct {
	ID            pgtype.UUID
	ClassID       pgtype.UUID
	UserID        pgtype.UUID
	Name          string
	Email         pgtype.Text
	Phone         pgtype.Text
	StudentNumber pgtype.Text
	UpdatedAt     pgtype.Timestamptz
}

func (q *Queries) UpdateStudent(ctx context.Context, arg UpdateStudentParams) (Student, error) {
	row := q.db.QueryRow(ctx, updateStudent,
		arg.ID,
		arg.ClassID,
		arg.UserID,
		arg.Name,
		arg.Email,
		arg.Phone,
		arg.StudentNumber,
		arg.UpdatedAt,
	)
	return scanStudent(row)
}

const deleteStudent = `-- name: DeleteStudent :execrows
DELETE FROM students WHERE id = $1
`

func (q *Queries) DeleteStudent(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteStudent, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listStudentsByClassAfter = `-- name: ListStudentsByClassAfter :many
SELECT ` + studentColumns + `
FROM students
WHERE class_id = $1
  AND ($2::uuid IS NULL OR id > $2)
ORDER BY id
LIMIT $3
`

// ListStudentsByClassAfterParams pages a class by id. After is the last id of
// the previous page, or invalid for the first page.
type ListStudentsByClassAfterParams struct {
	ClassID pgtype.UUID
	After   pgtype.UUID
	Limit   int32
}

func (q *Queries) ListStudentsByClassAfter(ctx context.Context, arg ListStudentsByClassAfterParams) ([]Student, error) {
	rows, err := q.db.Query(ctx, listStudentsByClassAfter, arg.ClassID, arg.After, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanStudent)
}
