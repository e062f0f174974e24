package router

import (
	"chat-relay-server/auth"
	"chat-relay-server/images"
	"chat-relay-server/notifications"
	"chat-relay-server/server"
	"chat-relay-server/ws"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

var r *gin.Engine

func InitRouter(
	authHandler *auth.AuthHandler,
	wsHandler *ws.Handler,
	api *server.API,
	imageHandler *images.ImageHandler,
	notificationHandler *notifications.NotificationHandler,
	redisClient *redis.Client,
) {
	r = gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:8081"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) bool {
			return origin == "http://localhost:8081"
		},
		MaxAge: 12 * time.Hour,
	}))

	// general API
	apiRoutes := r.Group("/api/")
	apiRoutes.Use(auth.JWTAuthMiddleware())

	apiRoutes.GET("/users/whoami", api.WhoAmI)
	apiRoutes.GET("/users/device-keys", api.GetRelevantDeviceKeys)
	apiRoutes.POST("/users/block", api.BlockUser)
	apiRoutes.POST("/users/unblock", api.UnblockUser)

	apiRoutes.POST("/groups/reserve/:groupID", api.ReserveGroup)
	apiRoutes.POST("/groups/:groupID/toggle-mute", api.ToggleGroupMuted)

	// Notification routes
	apiRoutes.POST("/notifications/register-token", notificationHandler.RegisterPushToken)
	apiRoutes.DELETE("/notifications/token", notificationHandler.ClearPushToken)

	// auth routes group, rate limited per client IP across all instances
	authRoutes := r.Group("/auth/")
	authRoutes.Use(authRateLimiter(redisClient))
	authRoutes.POST("/signup", authHandler.Signup)
	authRoutes.POST("/login", authHandler.Login)

	// WS routes
	wsRoutes := r.Group("/ws/")
	wsRoutes.Use(auth.JWTAuthMiddleware())

	wsRoutes.POST("/create-group", wsHandler.CreateGroup)
	wsRoutes.PUT("/update-group/:groupID", wsHandler.UpdateGroup)
	wsRoutes.POST("/invite-users-to-group", wsHandler.InviteUsersToGroup)
	wsRoutes.POST("/remove-user-from-group", wsHandler.RemoveUserFromGroup)
	wsRoutes.GET("/get-groups", wsHandler.GetGroups)
	wsRoutes.GET("/get-users-in-group/:groupID", wsHandler.GetUsersInGroup)
	wsRoutes.POST("/leave-group/:groupID", wsHandler.LeaveGroup)
	wsRoutes.GET("/relevant-users", wsHandler.GetRelevantUsers)
	wsRoutes.GET("/relevant-messages", wsHandler.GetRelevantMessages)

	// Invite link routes
	wsRoutes.POST("/invites", wsHandler.CreateInvite)
	wsRoutes.GET("/invites/:code", wsHandler.ValidateInvite)
	wsRoutes.POST("/invites/:code/accept", wsHandler.AcceptInvite)

	// authenticated after upgrade
	r.GET("/ws/establish-connection", wsHandler.EstablishConnection)

	// Image routes
	imageRoutes := r.Group("/images")
	imageRoutes.Use(auth.JWTAuthMiddleware())
	imageRoutes.POST("/presign-upload", imageHandler.PresignUpload)
	imageRoutes.POST("/presign-download", imageHandler.PresignDownload)
}

// authRateLimiter limits signup/login attempts per IP, backed by Redis so the
// limit holds across instances.
func authRateLimiter(redisClient *redis.Client) gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted("10-M")
	if err != nil {
		log.Fatalf("Could not parse auth rate limit: %v", err)
	}
	store, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
		Prefix: "ratelimit:auth",
	})
	if err != nil {
		log.Fatalf("Could not create rate limit store: %v", err)
	}
	return mgin.NewMiddleware(limiter.New(store, rate))
}

func Start(addr string) error {
	return r.Run(addr)
}
