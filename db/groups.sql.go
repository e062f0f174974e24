package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const insertGroup = `-- name: InsertGroup :one
INSERT INTO groups (id, name, start_time, end_time, description, location, image_url, blurhash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, name, start_time, end_time, description, location, image_url, blurhash, created_at, updated_at
`

type InsertGroupParams struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	StartTime   pgtype.Timestamp `json:"start_time"`
	EndTime     pgtype.Timestamp `json:"end_time"`
	Description pgtype.Text      `json:"description"`
	Location    pgtype.Text      `json:"location"`
	ImageUrl    pgtype.Text      `json:"image_url"`
	Blurhash    pgtype.Text      `json:"blurhash"`
}

func (q *Queries) InsertGroup(ctx context.Context, arg InsertGroupParams) (Group, error) {
	row := q.db.QueryRow(ctx, insertGroup,
		arg.ID,
		arg.Name,
		arg.StartTime,
		arg.EndTime,
		arg.Description,
		arg.Location,
		arg.ImageUrl,
		arg.Blurhash,
	)
	var i Group
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.StartTime,
		&i.EndTime,
		&i.Description,
		&i.Location,
		&i.ImageUrl,
		&i.Blurhash,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getGroupById = `-- name: GetGroupById :one
SELECT id, name, start_time, end_time, description, location, image_url, blurhash, created_at, updated_at
FROM groups
WHERE id = $1
`

func (q *Queries) GetGroupById(ctx context.Context, id uuid.UUID) (Group, error) {
	row := q.db.QueryRow(ctx, getGroupById, id)
	var i Group
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.StartTime,
		&i.EndTime,
		&i.Description,
		&i.Location,
		&i.ImageUrl,
		&i.Blurhash,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateGroup = `-- name: UpdateGroup :one
UPDATE groups
SET name        = COALESCE($2, name),
    start_time  = COALESCE($3, start_time),
    end_time    = COALESCE($4, end_time),
    description = COALESCE($5, description),
    location    = COALESCE($6, location),
    image_url   = COALESCE($7, image_url),
    blurhash    = COALESCE($8, blurhash),
    updated_at  = now()
WHERE id = $1
RETURNING id, name, start_time, end_time, description, location, image_url, blurhash, created_at, updated_at
`

type UpdateGroupParams struct {
	ID          uuid.UUID        `json:"id"`
	Name        pgtype.Text      `json:"name"`
	StartTime   pgtype.Timestamp `json:"start_time"`
	EndTime     pgtype.Timestamp `json:"end_time"`
	Description pgtype.Text      `json:"description"`
	Location    pgtype.Text      `json:"location"`
	ImageUrl    pgtype.Text      `json:"image_url"`
	Blurhash    pgtype.Text      `json:"blurhash"`
}

func (q *Queries) UpdateGroup(ctx context.Context, arg UpdateGroupParams) (Group, error) {
	row := q.db.QueryRow(ctx, updateGroup,
		arg.ID,
		arg.Name,
		arg.StartTime,
		arg.EndTime,
		arg.Description,
		arg.Location,
		arg.ImageUrl,
		arg.Blurhash,
	)
	var i Group
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.StartTime,
		&i.EndTime,
		&i.Description,
		&i.Location,
		&i.ImageUrl,
		&i.Blurhash,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteGroup = `-- name: DeleteGroup :one
DELETE FROM groups
WHERE id = $1
RETURNING id
`

type DeleteGroupRow struct {
	ID uuid.UUID `json:"id"`
}

func (q *Queries) DeleteGroup(ctx context.Context, id uuid.UUID) (DeleteGroupRow, error) {
	row := q.db.QueryRow(ctx, deleteGroup, id)
	var i DeleteGroupRow
	err := row.Scan(&i.ID)
	return i, err
}

const getAllGroups = `-- name: GetAllGroups :many
SELECT id, name FROM groups
`

type GetAllGroupsRow struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (q *Queries) GetAllGroups(ctx context.Context) ([]GetAllGroupsRow, error) {
	rows, err := q.db.Query(ctx, getAllGroups)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetAllGroupsRow
	for rows.Next() {
		var i GetAllGroupsRow
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getGroupsForUser = `-- name: GetGroupsForUser :many
SELECT g.id, g.name, g.start_time, g.end_time, g.description, g.location, g.image_url, g.blurhash,
       g.created_at, g.updated_at, ug.admin, ug.muted
FROM groups g
JOIN user_groups ug ON ug.group_id = g.id
WHERE ug.user_id = $1
ORDER BY g.created_at DESC
`

type GetGroupsForUserRow struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	StartTime   pgtype.Timestamp `json:"start_time"`
	EndTime     pgtype.Timestamp `json:"end_time"`
	Description pgtype.Text      `json:"description"`
	Location    pgtype.Text      `json:"location"`
	ImageUrl    pgtype.Text      `json:"image_url"`
	Blurhash    pgtype.Text      `json:"blurhash"`
	CreatedAt   pgtype.Timestamp `json:"created_at"`
	UpdatedAt   pgtype.Timestamp `json:"updated_at"`
	Admin       bool             `json:"admin"`
	Muted       bool             `json:"muted"`
}

func (q *Queries) GetGroupsForUser(ctx context.Context, userID uuid.UUID) ([]GetGroupsForUserRow, error) {
	rows, err := q.db.Query(ctx, getGroupsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetGroupsForUserRow
	for rows.Next() {
		var i GetGroupsForUserRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.StartTime,
			&i.EndTime,
			&i.Description,
			&i.Location,
			&i.ImageUrl,
			&i.Blurhash,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.Admin,
			&i.Muted,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getGroupPreviewByID = `-- name: GetGroupPreviewByID :one
SELECT g.id, g.name, g.description, g.image_url, g.blurhash, g.start_time, g.end_time,
       (SELECT count(*) FROM user_groups ug WHERE ug.group_id = g.id)::int AS member_count
FROM groups g
WHERE g.id = $1
`

type GetGroupPreviewByIDRow struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Description pgtype.Text      `json:"description"`
	ImageUrl    pgtype.Text      `json:"image_url"`
	Blurhash    pgtype.Text      `json:"blurhash"`
	StartTime   pgtype.Timestamp `json:"start_time"`
	EndTime     pgtype.Timestamp `json:"end_time"`
	MemberCount int32            `json:"member_count"`
}

func (q *Queries) GetGroupPreviewByID(ctx context.Context, id uuid.UUID) (GetGroupPreviewByIDRow, error) {
	row := q.db.QueryRow(ctx, getGroupPreviewByID, id)
	var i GetGroupPreviewByIDRow
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.ImageUrl,
		&i.Blurhash,
		&i.StartTime,
		&i.EndTime,
		&i.MemberCount,
	)
	return i, err
}

const getExpiredGroups = `-- name: GetExpiredGroups :many
SELECT id, end_time FROM groups
WHERE end_time IS NOT NULL AND end_time < now()
ORDER BY end_time
LIMIT $1
`

type GetExpiredGroupsRow struct {
	ID      uuid.UUID        `json:"id"`
	EndTime pgtype.Timestamp `json:"end_time"`
}

func (q *Queries) GetExpiredGroups(ctx context.Context, limit int32) ([]GetExpiredGroupsRow, error) {
	rows, err := q.db.Query(ctx, getExpiredGroups, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetExpiredGroupsRow
	for rows.Next() {
		var i GetExpiredGroupsRow
		if err := rows.Scan(&i.ID, &i.EndTime); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
