package db

import (
	"context"

	"github.com/google/uuid"
)

const reserveGroup = `-- name: ReserveGroup :one
INSERT INTO group_reservations (group_id, user_id)
VALUES ($1, $2)
RETURNING group_id, user_id, created_at, expires_at
`

type ReserveGroupParams struct {
	GroupID uuid.UUID `json:"group_id"`
	UserID  uuid.UUID `json:"user_id"`
}

func (q *Queries) ReserveGroup(ctx context.Context, arg ReserveGroupParams) (GroupReservation, error) {
	row := q.db.QueryRow(ctx, reserveGroup, arg.GroupID, arg.UserID)
	var i GroupReservation
	err := row.Scan(&i.GroupID, &i.UserID, &i.CreatedAt, &i.ExpiresAt)
	return i, err
}

const getGroupReservation = `-- name: GetGroupReservation :one
SELECT group_id, user_id, created_at, expires_at FROM group_reservations
WHERE group_id = $1
`

func (q *Queries) GetGroupReservation(ctx context.Context, groupID uuid.UUID) (GroupReservation, error) {
	row := q.db.QueryRow(ctx, getGroupReservation, groupID)
	var i GroupReservation
	err := row.Scan(&i.GroupID, &i.UserID, &i.CreatedAt, &i.ExpiresAt)
	return i, err
}

const deleteGroupReservation = `-- name: DeleteGroupReservation :exec
DELETE FROM group_reservations
WHERE group_id = $1
`

func (q *Queries) DeleteGroupReservation(ctx context.Context, groupID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteGroupReservation, groupID)
	return err
}

const deleteExpiredReservations = `-- name: DeleteExpiredReservations :execrows
DELETE FROM group_reservations
WHERE expires_at < now()
`

func (q *Queries) DeleteExpiredReservations(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, deleteExpiredReservations)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
