package db

import (
	"context"
)

const insertPushReceipt = `-- name: InsertPushReceipt :exec
INSERT INTO push_receipts (ticket_id, push_token)
VALUES ($1, $2)
`

type InsertPushReceiptParams struct {
	TicketID  string `json:"ticket_id"`
	PushToken string `json:"push_token"`
}

func (q *Queries) InsertPushReceipt(ctx context.Context, arg InsertPushReceiptParams) error {
	_, err := q.db.Exec(ctx, insertPushReceipt, arg.TicketID, arg.PushToken)
	return err
}

const getPendingReceipts = `-- name: GetPendingReceipts :many
SELECT id, ticket_id, push_token, created_at FROM push_receipts
WHERE created_at < now() - interval '15 minutes'
`

func (q *Queries) GetPendingReceipts(ctx context.Context) ([]PushReceipt, error) {
	rows, err := q.db.Query(ctx, getPendingReceipts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PushReceipt
	for rows.Next() {
		var i PushReceipt
		if err := rows.Scan(&i.ID, &i.TicketID, &i.PushToken, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteReceipts = `-- name: DeleteReceipts :exec
DELETE FROM push_receipts
WHERE ticket_id = ANY($1::text[])
`

func (q *Queries) DeleteReceipts(ctx context.Context, ticketIDs []string) error {
	_, err := q.db.Exec(ctx, deleteReceipts, ticketIDs)
	return err
}

const deleteOldReceipts = `-- name: DeleteOldReceipts :exec
DELETE FROM push_receipts
WHERE created_at < now() - interval '24 hours'
`

func (q *Queries) DeleteOldReceipts(ctx context.Context) error {
	_, err := q.db.Exec(ctx, deleteOldReceipts)
	return err
}
