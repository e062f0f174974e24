package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const insertMessage = `-- name: InsertMessage :one
INSERT INTO messages (id, user_id, group_id, ciphertext, message_type, msg_nonce, key_envelopes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, user_id, group_id, ciphertext, message_type, msg_nonce, key_envelopes, created_at
`

type InsertMessageParams struct {
	ID           uuid.UUID   `json:"id"`
	UserID       *uuid.UUID  `json:"user_id"`
	GroupID      *uuid.UUID  `json:"group_id"`
	Ciphertext   []byte      `json:"ciphertext"`
	MessageType  MessageType `json:"message_type"`
	MsgNonce     []byte      `json:"msg_nonce"`
	KeyEnvelopes []byte      `json:"key_envelopes"`
}

func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) (Message, error) {
	row := q.db.QueryRow(ctx, insertMessage,
		arg.ID,
		arg.UserID,
		arg.GroupID,
		arg.Ciphertext,
		arg.MessageType,
		arg.MsgNonce,
		arg.KeyEnvelopes,
	)
	var i Message
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.GroupID,
		&i.Ciphertext,
		&i.MessageType,
		&i.MsgNonce,
		&i.KeyEnvelopes,
		&i.CreatedAt,
	)
	return i, err
}

const getRelevantMessages = `-- name: GetRelevantMessages :many
SELECT m.id, m.user_id, m.group_id, m.ciphertext, m.message_type, m.msg_nonce, m.key_envelopes, m.created_at
FROM messages m
WHERE m.group_id IN (
    SELECT group_id FROM user_groups WHERE user_id = $1
)
ORDER BY m.created_at
`

type GetRelevantMessagesRow struct {
	ID           uuid.UUID          `json:"id"`
	SenderID     *uuid.UUID         `json:"sender_id"`
	GroupID      *uuid.UUID         `json:"group_id"`
	Ciphertext   []byte             `json:"ciphertext"`
	MessageType  MessageType        `json:"message_type"`
	MsgNonce     []byte             `json:"msg_nonce"`
	KeyEnvelopes []byte             `json:"key_envelopes"`
	Timestamp    pgtype.Timestamptz `json:"timestamp"`
}

func (q *Queries) GetRelevantMessages(ctx context.Context, userID uuid.UUID) ([]GetRelevantMessagesRow, error) {
	rows, err := q.db.Query(ctx, getRelevantMessages, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetRelevantMessagesRow
	for rows.Next() {
		var i GetRelevantMessagesRow
		if err := rows.Scan(
			&i.ID,
			&i.SenderID,
			&i.GroupID,
			&i.Ciphertext,
			&i.MessageType,
			&i.MsgNonce,
			&i.KeyEnvelopes,
			&i.Timestamp,
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

const deleteMessagesForGroup = `-- name: DeleteMessagesForGroup :exec
DELETE FROM messages
WHERE group_id = $1
`

func (q *Queries) DeleteMessagesForGroup(ctx context.Context, groupID *uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteMessagesForGroup, groupID)
	return err
}
