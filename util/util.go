package util

import (
	"chat-relay-server/db"
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// GetUser resolves the authenticated user from the gin context set by the JWT
// middleware.
func GetUser(c *gin.Context, queries *db.Queries) (db.GetUserByIdRow, error) {
	ctx := c.Request.Context()
	id, exists := c.Get("userID")
	if !exists {
		return db.GetUserByIdRow{}, errors.New("userID not found in context")
	}

	userID, ok := id.(uuid.UUID)
	if !ok {
		return db.GetUserByIdRow{}, errors.New("userID is not a uuid")
	}

	user, err := queries.GetUserById(ctx, userID)
	if err != nil {
		return db.GetUserByIdRow{}, errors.New("user not found")
	}
	return user, nil
}

// MembershipChecker reports whether a user is a member of a group. The ws
// package consumes this so connection read loops can be tested without a
// database.
type MembershipChecker func(ctx context.Context, userID uuid.UUID, groupID uuid.UUID) (bool, error)

func UserInGroup(ctx context.Context, userID uuid.UUID, groupID uuid.UUID, queries *db.Queries) (bool, error) {
	_, dbErr := queries.GetUserGroupByGroupIDAndUserID(ctx, db.GetUserGroupByGroupIDAndUserIDParams{
		UserID:  &userID,
		GroupID: &groupID,
	})
	if dbErr != nil {
		if errors.Is(dbErr, pgx.ErrNoRows) {
			return false, nil
		}
		return false, dbErr
	}
	return true, nil
}

func NullablePgText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func NullablePgTimestamp(t *time.Time) pgtype.Timestamp {
	if t == nil {
		return pgtype.Timestamp{Valid: false}
	}
	return pgtype.Timestamp{Time: *t, Valid: true}
}

func GenerateInviteCode(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b), nil
}
