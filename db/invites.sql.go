package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const insertInvite = `-- name: InsertInvite :one
INSERT INTO invites (code, group_id, created_by, expires_at, max_uses)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, code, group_id, created_by, expires_at, max_uses, use_count, created_at
`

type InsertInviteParams struct {
	Code      string             `json:"code"`
	GroupID   uuid.UUID          `json:"group_id"`
	CreatedBy uuid.UUID          `json:"created_by"`
	ExpiresAt pgtype.Timestamptz `json:"expires_at"`
	MaxUses   int32              `json:"max_uses"`
}

func (q *Queries) InsertInvite(ctx context.Context, arg InsertInviteParams) (Invite, error) {
	row := q.db.QueryRow(ctx, insertInvite,
		arg.Code,
		arg.GroupID,
		arg.CreatedBy,
		arg.ExpiresAt,
		arg.MaxUses,
	)
	var i Invite
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.GroupID,
		&i.CreatedBy,
		&i.ExpiresAt,
		&i.MaxUses,
		&i.UseCount,
		&i.CreatedAt,
	)
	return i, err
}

const getInviteByCode = `-- name: GetInviteByCode :one
SELECT id, code, group_id, created_by, expires_at, max_uses, use_count, created_at
FROM invites
WHERE code = $1
`

func (q *Queries) GetInviteByCode(ctx context.Context, code string) (Invite, error) {
	row := q.db.QueryRow(ctx, getInviteByCode, code)
	var i Invite
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.GroupID,
		&i.CreatedBy,
		&i.ExpiresAt,
		&i.MaxUses,
		&i.UseCount,
		&i.CreatedAt,
	)
	return i, err
}

const incrementInviteUseCount = `-- name: IncrementInviteUseCount :execrows
UPDATE invites
SET use_count = use_count + 1
WHERE id = $1 AND (max_uses = 0 OR use_count < max_uses)
`

// IncrementInviteUseCount bumps the use counter only while capacity remains.
// Callers must check the returned row count: 0 means the invite is exhausted.
func (q *Queries) IncrementInviteUseCount(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, incrementInviteUseCount, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteExpiredInvites = `-- name: DeleteExpiredInvites :execrows
DELETE FROM invites
WHERE (expires_at IS NOT NULL AND expires_at < now())
   OR (max_uses > 0 AND use_count >= max_uses)
`

func (q *Queries) DeleteExpiredInvites(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, deleteExpiredInvites)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
