package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"zephia/internal/db"
	"zephia/internal/messaging"
	myMiddleware "zephia/internal/middleware"
	"zephia/internal/storage"
	"zephia/internal/user"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()

	// Get Secrets from Environment (Docker)
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("❌ DB_DSN is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("❌ JWT_SECRET is not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.Migrate(context.Background()); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// 4. Initialize User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, jwtSecret)
	userHandler := user.NewHandler(userService)

	// 5. Initialize Messaging Feature
	notifier := messaging.NewRedisNotifier(redisClient, logger)
	conversationStore := messaging.NewPostgresConversationStore(database.Conn, notifier)
	messageStore := messaging.NewPostgresMessageStore(database.Conn, notifier)
	messagingService := messaging.NewService(conversationStore, messageStore, userService, notifier, logger)

	// Attachments are optional: enabled only when S3 settings are present.
	var signer messaging.AttachmentSigner
	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		uploader, err := storage.NewUploader(context.Background(), storage.Config{
			Bucket:       bucket,
			Region:       os.Getenv("S3_REGION"),
			BaseEndpoint: os.Getenv("S3_ENDPOINT"),
			AccessKey:    os.Getenv("S3_ACCESS_KEY"),
			SecretKey:    os.Getenv("S3_SECRET_KEY"),
		})
		if err != nil {
			log.Fatalf("❌ Failed to configure S3: %v", err)
		}
		signer = uploader
		log.Println("✅ Attachment storage enabled")
	}

	hub := messaging.NewHub(logger)
	go hub.Run()

	messagingHandler := messaging.NewHandler(hub, messagingService, signer, logger)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users", userHandler.ListUsers)
		r.Get("/api/users/search", userHandler.SearchUsers)

		// WebSocket (Real-time)
		r.Get("/ws", messagingHandler.ServeWs)

		r.Get("/api/conversations", messagingHandler.ListConversations)
		r.Post("/api/conversations", messagingHandler.StartConversation)
		r.Post("/api/conversations/{id}/read", messagingHandler.MarkRead)
		r.Get("/api/messages", messagingHandler.GetChatHistory)
		r.Post("/api/messages", messagingHandler.SendMessage)
		r.Post("/api/attachments/presign", messagingHandler.PresignAttachment)
	})

	log.Printf("🚀 Server starting on %s", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(err)
	}
}
