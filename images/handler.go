package images

import (
	"chat-relay-server/db"
	"chat-relay-server/s3store"
	"chat-relay-server/util"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// Encrypted image blobs are capped well below the websocket frame limit
	// since they travel over presigned HTTP, not the socket.
	maxUploadBytes = 10 << 20 // 10 MiB

	uploadURLTTL   = 15 * time.Minute
	downloadURLTTL = 1 * time.Hour
)

type ImageHandler struct {
	store s3store.Store
	db    *db.Queries
	ctx   context.Context
	conn  *pgxpool.Pool
}

func NewImageHandler(store s3store.Store, db *db.Queries, ctx context.Context, conn *pgxpool.Pool) *ImageHandler {
	return &ImageHandler{store: store, db: db, ctx: ctx, conn: conn}
}

type presignUploadRequest struct {
	GroupID       uuid.UUID `json:"group_id" binding:"required"`
	ContentLength int64     `json:"content_length" binding:"required"`
}

type presignUploadResponse struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
}

type presignDownloadRequest struct {
	Key string `json:"key" binding:"required"`
}

type presignDownloadResponse struct {
	DownloadURL string `json:"download_url"`
}

// PresignUpload issues a time-limited PUT URL for an encrypted image blob.
// Objects are keyed under the group so expiry cleanup can sweep them by
// prefix.
func (h *ImageHandler) PresignUpload(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := util.GetUser(c, h.db)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found or unauthorized"})
		return
	}

	var req presignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ContentLength <= 0 || req.ContentLength > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content length"})
		return
	}

	isMember, err := util.UserInGroup(ctx, user.ID, req.GroupID, h.db)
	if err != nil || !isMember {
		c.JSON(http.StatusForbidden, gin.H{"error": "User does not have access to this group"})
		return
	}

	key := fmt.Sprintf("groups/%s/%s", req.GroupID.String(), uuid.NewString())
	uploadURL, err := h.store.PresignUpload(ctx, key, uploadURLTTL, req.ContentLength)
	if err != nil {
		log.Printf("Error presigning upload for user %s, group %s: %v", user.ID.String(), req.GroupID.String(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create upload URL"})
		return
	}

	c.JSON(http.StatusOK, presignUploadResponse{Key: key, UploadURL: uploadURL})
}

// PresignDownload issues a time-limited GET URL for an object the user's
// group membership entitles them to.
func (h *ImageHandler) PresignDownload(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := util.GetUser(c, h.db)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found or unauthorized"})
		return
	}

	var req presignDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	groupID, ok := groupIDFromKey(req.Key)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid object key"})
		return
	}

	isMember, err := util.UserInGroup(ctx, user.ID, groupID, h.db)
	if err != nil || !isMember {
		c.JSON(http.StatusForbidden, gin.H{"error": "User does not have access to this object"})
		return
	}

	downloadURL, err := h.store.PresignDownload(ctx, req.Key, downloadURLTTL)
	if err != nil {
		log.Printf("Error presigning download for user %s, key %s: %v", user.ID.String(), req.Key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create download URL"})
		return
	}

	c.JSON(http.StatusOK, presignDownloadResponse{DownloadURL: downloadURL})
}

// groupIDFromKey extracts the group UUID from a "groups/<uuid>/<object>" key.
func groupIDFromKey(key string) (uuid.UUID, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "groups" || parts[2] == "" {
		return uuid.Nil, false
	}
	groupID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	return groupID, true
}
