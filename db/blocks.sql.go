package db

import (
	"context"

	"github.com/google/uuid"
)

const insertBlock = `-- name: InsertBlock :exec
INSERT INTO blocks (blocker_id, blocked_id)
VALUES ($1, $2)
ON CONFLICT (blocker_id, blocked_id) DO NOTHING
`

type InsertBlockParams struct {
	BlockerID uuid.UUID `json:"blocker_id"`
	BlockedID uuid.UUID `json:"blocked_id"`
}

func (q *Queries) InsertBlock(ctx context.Context, arg InsertBlockParams) error {
	_, err := q.db.Exec(ctx, insertBlock, arg.BlockerID, arg.BlockedID)
	return err
}

const deleteBlock = `-- name: DeleteBlock :exec
DELETE FROM blocks
WHERE blocker_id = $1 AND blocked_id = $2
`

type DeleteBlockParams struct {
	BlockerID uuid.UUID `json:"blocker_id"`
	BlockedID uuid.UUID `json:"blocked_id"`
}

func (q *Queries) DeleteBlock(ctx context.Context, arg DeleteBlockParams) error {
	_, err := q.db.Exec(ctx, deleteBlock, arg.BlockerID, arg.BlockedID)
	return err
}

const checkBlockConflictWithGroup = `-- name: CheckBlockConflictWithGroup :one
SELECT EXISTS (
    SELECT 1 FROM blocks b
    JOIN user_groups ug ON ug.user_id IN (b.blocker_id, b.blocked_id)
    WHERE ug.group_id = $2
      AND (b.blocked_id = $1 OR b.blocker_id = $1)
)
`

type CheckBlockConflictWithGroupParams struct {
	BlockedID uuid.UUID  `json:"blocked_id"`
	GroupID   *uuid.UUID `json:"group_id"`
}

// CheckBlockConflictWithGroup reports whether joining the group would put the
// user in a group with someone either side has blocked.
func (q *Queries) CheckBlockConflictWithGroup(ctx context.Context, arg CheckBlockConflictWithGroupParams) (bool, error) {
	row := q.db.QueryRow(ctx, checkBlockConflictWithGroup, arg.BlockedID, arg.GroupID)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}
