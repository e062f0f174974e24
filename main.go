package main

import (
	"chat-relay-server/auth"
	"chat-relay-server/db"
	"chat-relay-server/images"
	"chat-relay-server/jobs"
	"chat-relay-server/notifications"
	"chat-relay-server/router"
	"chat-relay-server/s3store"
	"chat-relay-server/server"
	"chat-relay-server/ws"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var (
	RedisClient      *redis.Client
	ServerInstanceID string
)

func InitializeRedis(ctx context.Context) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Fatal("REDIS_URL environment variable not set")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Could not parse REDIS_URL: %v", err)
	}
	RedisClient = redis.NewClient(opts)
	if err := RedisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Could not connect to Redis: %v", err)
	}
	log.Println("Successfully connected to Redis.")
}

func init() {
	ServerInstanceID = uuid.NewString()
	log.Printf("Initializing with ServerInstanceID: %s", ServerInstanceID)
}

func main() {
	ctx := context.Background()

	InitializeRedis(ctx)

	connPool, err := pgxpool.New(ctx, os.Getenv("DB_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	queries := db.New(connPool)

	authHandler := auth.NewAuthHandler(queries, connPool)

	notificationService := notifications.NewNotificationService(queries, RedisClient)
	notificationHandler := notifications.NewNotificationHandler(queries, ctx)

	bus := ws.NewRedisBus(RedisClient)
	hub := ws.NewHub(queries, ctx, RedisClient, bus, ServerInstanceID, notificationService, ws.DefaultConfig())
	wsHandler := ws.NewHandler(hub, queries, ctx, connPool)
	go hub.Run()

	api := server.NewAPI(queries, ctx, connPool)

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to AWS: %v\n", err)
		os.Exit(1)
	}
	store := s3store.New(cfg, os.Getenv("S3_BUCKET"))

	jobs.SetNotificationService(notificationService)
	baseJob := jobs.NewBaseJob(queries, RedisClient, connPool, store.GetS3Client(), store.GetBucket(), ctx)
	scheduler, err := jobs.NewScheduler(baseJob, ctx, RedisClient, ServerInstanceID)
	if err != nil {
		log.Fatalf("Could not create job scheduler: %v", err)
	}
	scheduler.Start()

	imageHandler := images.NewImageHandler(store, queries, ctx, connPool)

	defer connPool.Close()
	defer scheduler.Stop()

	router.InitRouter(authHandler, wsHandler, api, imageHandler, notificationHandler, RedisClient)
	if err := router.Start(":8080"); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
