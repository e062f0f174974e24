package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const insertUserGroup = `-- name: InsertUserGroup :one
INSERT INTO user_groups (user_id, group_id, admin)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, group_id) DO NOTHING
RETURNING id, user_id, group_id, admin, muted, invited_at
`

type InsertUserGroupParams struct {
	UserID  *uuid.UUID `json:"user_id"`
	GroupID *uuid.UUID `json:"group_id"`
	Admin   bool       `json:"admin"`
}

func (q *Queries) InsertUserGroup(ctx context.Context, arg InsertUserGroupParams) (UserGroup, error) {
	row := q.db.QueryRow(ctx, insertUserGroup, arg.UserID, arg.GroupID, arg.Admin)
	var i UserGroup
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.GroupID,
		&i.Admin,
		&i.Muted,
		&i.InvitedAt,
	)
	return i, err
}

const deleteUserGroup = `-- name: DeleteUserGroup :one
DELETE FROM user_groups
WHERE user_id = $1 AND group_id = $2
RETURNING id, user_id, group_id, admin, muted, invited_at
`

type DeleteUserGroupParams struct {
	UserID  *uuid.UUID `json:"user_id"`
	GroupID *uuid.UUID `json:"group_id"`
}

func (q *Queries) DeleteUserGroup(ctx context.Context, arg DeleteUserGroupParams) (UserGroup, error) {
	row := q.db.QueryRow(ctx, deleteUserGroup, arg.UserID, arg.GroupID)
	var i UserGroup
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.GroupID,
		&i.Admin,
		&i.Muted,
		&i.InvitedAt,
	)
	return i, err
}

const getUserGroupByGroupIDAndUserID = `-- name: GetUserGroupByGroupIDAndUserID :one
SELECT id, user_id, group_id, admin, muted, invited_at FROM user_groups
WHERE user_id = $1 AND group_id = $2
`

type GetUserGroupByGroupIDAndUserIDParams struct {
	UserID  *uuid.UUID `json:"user_id"`
	GroupID *uuid.UUID `json:"group_id"`
}

func (q *Queries) GetUserGroupByGroupIDAndUserID(ctx context.Context, arg GetUserGroupByGroupIDAndUserIDParams) (UserGroup, error) {
	row := q.db.QueryRow(ctx, getUserGroupByGroupIDAndUserID, arg.UserID, arg.GroupID)
	var i UserGroup
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.GroupID,
		&i.Admin,
		&i.Muted,
		&i.InvitedAt,
	)
	return i, err
}

const getAllUserGroups = `-- name: GetAllUserGroups :many
SELECT id, user_id, group_id, admin, muted, invited_at FROM user_groups
`

func (q *Queries) GetAllUserGroups(ctx context.Context) ([]UserGroup, error) {
	rows, err := q.db.Query(ctx, getAllUserGroups)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UserGroup
	for rows.Next() {
		var i UserGroup
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.GroupID,
			&i.Admin,
			&i.Muted,
			&i.InvitedAt,
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

const getAllUserGroupsForGroup = `-- name: GetAllUserGroupsForGroup :many
SELECT id, user_id, group_id, admin, muted, invited_at FROM user_groups
WHERE group_id = $1
ORDER BY invited_at
`

func (q *Queries) GetAllUserGroupsForGroup(ctx context.Context, groupID *uuid.UUID) ([]UserGroup, error) {
	rows, err := q.db.Query(ctx, getAllUserGroupsForGroup, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UserGroup
	for rows.Next() {
		var i UserGroup
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.GroupID,
			&i.Admin,
			&i.Muted,
			&i.InvitedAt,
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

const updateUserGroup = `-- name: UpdateUserGroup :one
UPDATE user_groups
SET admin = $3
WHERE user_id = $1 AND group_id = $2
RETURNING id, user_id, group_id, admin, muted, invited_at
`

type UpdateUserGroupParams struct {
	UserID  *uuid.UUID `json:"user_id"`
	GroupID *uuid.UUID `json:"group_id"`
	Admin   bool       `json:"admin"`
}

func (q *Queries) UpdateUserGroup(ctx context.Context, arg UpdateUserGroupParams) (UserGroup, error) {
	row := q.db.QueryRow(ctx, updateUserGroup, arg.UserID, arg.GroupID, arg.Admin)
	var i UserGroup
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.GroupID,
		&i.Admin,
		&i.Muted,
		&i.InvitedAt,
	)
	return i, err
}

const getAllUsersInGroup = `-- name: GetAllUsersInGroup :many
SELECT u.id, u.username, u.email, ug.admin, ug.invited_at
FROM users u
JOIN user_groups ug ON ug.user_id = u.id
WHERE ug.group_id = $1
ORDER BY ug.invited_at
`

type GetAllUsersInGroupRow struct {
	ID        uuid.UUID          `json:"id"`
	Username  string             `json:"username"`
	Email     string             `json:"email"`
	Admin     bool               `json:"admin"`
	InvitedAt pgtype.Timestamptz `json:"invited_at"`
}

func (q *Queries) GetAllUsersInGroup(ctx context.Context, groupID uuid.UUID) ([]GetAllUsersInGroupRow, error) {
	rows, err := q.db.Query(ctx, getAllUsersInGroup, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetAllUsersInGroupRow
	for rows.Next() {
		var i GetAllUsersInGroupRow
		if err := rows.Scan(
			&i.ID,
			&i.Username,
			&i.Email,
			&i.Admin,
			&i.InvitedAt,
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

const deleteUserGroupsForGroup = `-- name: DeleteUserGroupsForGroup :exec
DELETE FROM user_groups
WHERE group_id = $1
`

func (q *Queries) DeleteUserGroupsForGroup(ctx context.Context, groupID *uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteUserGroupsForGroup, groupID)
	return err
}

const toggleGroupMuted = `-- name: ToggleGroupMuted :one
UPDATE user_groups
SET muted = NOT muted
WHERE user_id = $1 AND group_id = $2
RETURNING muted
`

type ToggleGroupMutedParams struct {
	UserID  *uuid.UUID `json:"user_id"`
	GroupID *uuid.UUID `json:"group_id"`
}

type ToggleGroupMutedRow struct {
	Muted bool `json:"muted"`
}

func (q *Queries) ToggleGroupMuted(ctx context.Context, arg ToggleGroupMutedParams) (ToggleGroupMutedRow, error) {
	row := q.db.QueryRow(ctx, toggleGroupMuted, arg.UserID, arg.GroupID)
	var i ToggleGroupMutedRow
	err := row.Scan(&i.Muted)
	return i, err
}

const getMutedUserIDsForGroup = `-- name: GetMutedUserIDsForGroup :many
SELECT user_id FROM user_groups
WHERE group_id = $1 AND muted = true
`

func (q *Queries) GetMutedUserIDsForGroup(ctx context.Context, groupID *uuid.UUID) ([]*uuid.UUID, error) {
	rows, err := q.db.Query(ctx, getMutedUserIDsForGroup, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*uuid.UUID
	for rows.Next() {
		var user_id *uuid.UUID
		if err := rows.Scan(&user_id); err != nil {
			return nil, err
		}
		items = append(items, user_id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
