package server

import (
	"chat-relay-server/db"
	"chat-relay-server/util"
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// API bundles the miscellaneous authenticated HTTP endpoints that do not
// touch the hub.
type API struct {
	db   *db.Queries
	ctx  context.Context
	conn *pgxpool.Pool
}

func NewAPI(db *db.Queries, ctx context.Context, conn *pgxpool.Pool) *API {
	return &API{db: db, ctx: ctx, conn: conn}
}

func (api *API) WhoAmI(c *gin.Context) {
	user, err := util.GetUser(c, api.db)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found or unauthorized"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetRelevantDeviceKeys returns the public keys for every device of every
// user sharing a group with the caller. Clients need these to seal per-device
// key envelopes.
func (api *API) GetRelevantDeviceKeys(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := util.GetUser(c, api.db)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found or unauthorized"})
		return
	}

	keys, err := api.db.GetRelevantDeviceKeys(ctx, user.ID)
	if err != nil {
		log.Printf("Error retrieving device keys for user %s: %v", user.ID.String(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve device keys"})
		return
	}
	if keys == nil {
		keys = make([]db.GetRelevantDeviceKeysRow, 0)
	}
	c.JSON(http.StatusOK, keys)
}

type blockRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

func (api *API) BlockUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := util.GetUser(c, api.db)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found or unauthorized"})
		return
	}

	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot block yourself"})
		return
	}

	if err := api.db.InsertBlock(ctx, db.InsertBlockParams{
		BlockerID: user.ID,
		BlockedID: req.UserID,
	}); err != nil {
		log.Printf("Error blocking user %s by %s: %v", req.UserID.String(), user.ID.String(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to block user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User blocked"})
}

func (api *API) UnblockUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := util.GetUser(c, api.db)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found or unauthorized"})
		return
	}

	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := api.db.DeleteBlock(ctx, db.DeleteBlockParams{
		BlockerID: user.ID,
		BlockedID: req.UserID,
	}); err != nil {
		log.Printf("Error unblocking user %s by %s: %v", req.UserID.String(), user.ID.String(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unblock user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User unblocked"})
}
