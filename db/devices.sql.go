package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const registerDeviceKey = `-- name: RegisterDeviceKey :one
INSERT INTO devices (user_id, device_identifier, public_key)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, device_identifier)
DO UPDATE SET public_key = EXCLUDED.public_key, updated_at = now()
RETURNING id, user_id, device_identifier, public_key, expo_push_token, created_at, updated_at
`

type RegisterDeviceKeyParams struct {
	UserID           uuid.UUID `json:"user_id"`
	DeviceIdentifier string    `json:"device_identifier"`
	PublicKey        []byte    `json:"public_key"`
}

func (q *Queries) RegisterDeviceKey(ctx context.Context, arg RegisterDeviceKeyParams) (Device, error) {
	row := q.db.QueryRow(ctx, registerDeviceKey, arg.UserID, arg.DeviceIdentifier, arg.PublicKey)
	var i Device
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.DeviceIdentifier,
		&i.PublicKey,
		&i.ExpoPushToken,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateDevicePushToken = `-- name: UpdateDevicePushToken :one
UPDATE devices
SET expo_push_token = $3, updated_at = now()
WHERE user_id = $1 AND device_identifier = $2
RETURNING id, user_id, device_identifier, public_key, expo_push_token, created_at, updated_at
`

type UpdateDevicePushTokenParams struct {
	UserID           uuid.UUID   `json:"user_id"`
	DeviceIdentifier string      `json:"device_identifier"`
	ExpoPushToken    pgtype.Text `json:"expo_push_token"`
}

func (q *Queries) UpdateDevicePushToken(ctx context.Context, arg UpdateDevicePushTokenParams) (Device, error) {
	row := q.db.QueryRow(ctx, updateDevicePushToken, arg.UserID, arg.DeviceIdentifier, arg.ExpoPushToken)
	var i Device
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.DeviceIdentifier,
		&i.PublicKey,
		&i.ExpoPushToken,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const clearDevicePushToken = `-- name: ClearDevicePushToken :exec
UPDATE devices
SET expo_push_token = NULL, updated_at = now()
WHERE user_id = $1 AND device_identifier = $2
`

type ClearDevicePushTokenParams struct {
	UserID           uuid.UUID `json:"user_id"`
	DeviceIdentifier string    `json:"device_identifier"`
}

func (q *Queries) ClearDevicePushToken(ctx context.Context, arg ClearDevicePushTokenParams) error {
	_, err := q.db.Exec(ctx, clearDevicePushToken, arg.UserID, arg.DeviceIdentifier)
	return err
}

const getPushTokensForUsers = `-- name: GetPushTokensForUsers :many
SELECT user_id, expo_push_token FROM devices
WHERE user_id = ANY($1::uuid[]) AND expo_push_token IS NOT NULL
`

type GetPushTokensForUsersRow struct {
	UserID        uuid.UUID   `json:"user_id"`
	ExpoPushToken pgtype.Text `json:"expo_push_token"`
}

func (q *Queries) GetPushTokensForUsers(ctx context.Context, userIDs []uuid.UUID) ([]GetPushTokensForUsersRow, error) {
	rows, err := q.db.Query(ctx, getPushTokensForUsers, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetPushTokensForUsersRow
	for rows.Next() {
		var i GetPushTokensForUsersRow
		if err := rows.Scan(&i.UserID, &i.ExpoPushToken); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deletePushTokenByValue = `-- name: DeletePushTokenByValue :exec
UPDATE devices
SET expo_push_token = NULL, updated_at = now()
WHERE expo_push_token = $1
`

func (q *Queries) DeletePushTokenByValue(ctx context.Context, token pgtype.Text) error {
	_, err := q.db.Exec(ctx, deletePushTokenByValue, token)
	return err
}

const getRelevantDeviceKeys = `-- name: GetRelevantDeviceKeys :many
SELECT d.user_id, d.device_identifier, d.public_key
FROM devices d
WHERE d.user_id IN (
    SELECT ug.user_id FROM user_groups ug
    WHERE ug.group_id IN (
        SELECT group_id FROM user_groups WHERE user_id = $1
    )
)
`

type GetRelevantDeviceKeysRow struct {
	UserID           uuid.UUID `json:"user_id"`
	DeviceIdentifier string    `json:"device_identifier"`
	PublicKey        []byte    `json:"public_key"`
}

func (q *Queries) GetRelevantDeviceKeys(ctx context.Context, userID uuid.UUID) ([]GetRelevantDeviceKeysRow, error) {
	rows, err := q.db.Query(ctx, getRelevantDeviceKeys, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetRelevantDeviceKeysRow
	for rows.Next() {
		var i GetRelevantDeviceKeysRow
		if err := rows.Scan(&i.UserID, &i.DeviceIdentifier, &i.PublicKey); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
