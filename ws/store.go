package ws

import (
	"chat-relay-server/db"
	"context"

	"github.com/google/uuid"
)

// MessageStore is the slice of the durable store the hub consumes: the
// persist-before-fanout write and the bulk reads backing the startup sync.
// *db.Queries satisfies it.
type MessageStore interface {
	InsertMessage(ctx context.Context, arg db.InsertMessageParams) (db.Message, error)
	GetUserById(ctx context.Context, id uuid.UUID) (db.GetUserByIdRow, error)
	GetAllGroups(ctx context.Context) ([]db.GetAllGroupsRow, error)
	GetAllUserGroups(ctx context.Context) ([]db.UserGroup, error)
}

// Notifier delivers push notifications to offline group members after a
// broadcast. May be nil when push is disabled.
type Notifier interface {
	SendMessageNotification(
		ctx context.Context,
		groupID uuid.UUID,
		groupName string,
		senderID uuid.UUID,
		senderName string,
		messagePreview string,
	)
}
