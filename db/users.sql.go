package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const insertUser = `-- name: InsertUser :one
INSERT INTO users (username, email, password)
VALUES ($1, $2, $3)
RETURNING id, username, email, password, created_at, updated_at
`

type InsertUserParams struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password pgtype.Text `json:"-"`
}

func (q *Queries) InsertUser(ctx context.Context, arg InsertUserParams) (User, error) {
	row := q.db.QueryRow(ctx, insertUser, arg.Username, arg.Email, arg.Password)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Email,
		&i.Password,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserById = `-- name: GetUserById :one
SELECT id, username, email FROM users
WHERE id = $1
`

type GetUserByIdRow struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

func (q *Queries) GetUserById(ctx context.Context, id uuid.UUID) (GetUserByIdRow, error) {
	row := q.db.QueryRow(ctx, getUserById, id)
	var i GetUserByIdRow
	err := row.Scan(&i.ID, &i.Username, &i.Email)
	return i, err
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT id, username, email FROM users
WHERE email = $1
`

type GetUserByEmailRow struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (GetUserByEmailRow, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var i GetUserByEmailRow
	err := row.Scan(&i.ID, &i.Username, &i.Email)
	return i, err
}

const getUserByEmailInternal = `-- name: GetUserByEmailInternal :one
SELECT id, username, email, password, created_at, updated_at FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmailInternal(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmailInternal, email)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Email,
		&i.Password,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUsersByEmails = `-- name: GetUsersByEmails :many
SELECT id, username, email FROM users
WHERE email = ANY($1::varchar[])
`

type GetUsersByEmailsRow struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

func (q *Queries) GetUsersByEmails(ctx context.Context, emails []string) ([]GetUsersByEmailsRow, error) {
	rows, err := q.db.Query(ctx, getUsersByEmails, emails)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetUsersByEmailsRow
	for rows.Next() {
		var i GetUsersByEmailsRow
		if err := rows.Scan(&i.ID, &i.Username, &i.Email); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRelevantUsers = `-- name: GetRelevantUsers :many
SELECT DISTINCT u.id, u.username, u.email
FROM users u
JOIN user_groups ug ON ug.user_id = u.id
WHERE ug.group_id IN (
    SELECT group_id FROM user_groups WHERE user_id = $1
)
`

type GetRelevantUsersRow struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

func (q *Queries) GetRelevantUsers(ctx context.Context, userID *uuid.UUID) ([]GetRelevantUsersRow, error) {
	rows, err := q.db.Query(ctx, getRelevantUsers, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetRelevantUsersRow
	for rows.Next() {
		var i GetRelevantUsersRow
		if err := rows.Scan(&i.ID, &i.Username, &i.Email); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
