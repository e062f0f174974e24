package db

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

func (e *MessageType) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = MessageType(s)
	case string:
		*e = MessageType(s)
	default:
		return fmt.Errorf("unsupported scan type for MessageType: %T", src)
	}
	return nil
}

func (e MessageType) Value() (driver.Value, error) {
	return string(e), nil
}

type User struct {
	ID        uuid.UUID          `json:"id"`
	Username  string             `json:"username"`
	Email     string             `json:"email"`
	Password  pgtype.Text        `json:"-"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}

type Device struct {
	ID               int64              `json:"id"`
	UserID           uuid.UUID          `json:"user_id"`
	DeviceIdentifier string             `json:"device_identifier"`
	PublicKey        []byte             `json:"public_key"`
	ExpoPushToken    pgtype.Text        `json:"-"`
	CreatedAt        pgtype.Timestamptz `json:"created_at"`
	UpdatedAt        pgtype.Timestamptz `json:"updated_at"`
}

type Group struct {
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
}

type UserGroup struct {
	ID        int64              `json:"id"`
	UserID    *uuid.UUID         `json:"user_id"`
	GroupID   *uuid.UUID         `json:"group_id"`
	Admin     bool               `json:"admin"`
	Muted     bool               `json:"muted"`
	InvitedAt pgtype.Timestamptz `json:"invited_at"`
}

type Message struct {
	ID           uuid.UUID          `json:"id"`
	UserID       *uuid.UUID         `json:"user_id"`
	GroupID      *uuid.UUID         `json:"group_id"`
	Ciphertext   []byte             `json:"ciphertext"`
	MessageType  MessageType        `json:"message_type"`
	MsgNonce     []byte             `json:"msg_nonce"`
	KeyEnvelopes []byte             `json:"key_envelopes"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
}

type Invite struct {
	ID        uuid.UUID          `json:"id"`
	Code      string             `json:"code"`
	GroupID   uuid.UUID          `json:"group_id"`
	CreatedBy uuid.UUID          `json:"created_by"`
	ExpiresAt pgtype.Timestamptz `json:"expires_at"`
	MaxUses   int32              `json:"max_uses"`
	UseCount  int32              `json:"use_count"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type GroupReservation struct {
	GroupID   uuid.UUID          `json:"group_id"`
	UserID    uuid.UUID          `json:"user_id"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
	ExpiresAt pgtype.Timestamptz `json:"expires_at"`
}

type Block struct {
	BlockerID uuid.UUID          `json:"blocker_id"`
	BlockedID uuid.UUID          `json:"blocked_id"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type PushReceipt struct {
	ID        int64              `json:"id"`
	TicketID  string             `json:"ticket_id"`
	PushToken string             `json:"push_token"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}
