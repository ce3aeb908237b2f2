package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/maneesh/soundpost/internal/blobstore"
	"github.com/maneesh/soundpost/internal/chunker"
	"github.com/maneesh/soundpost/internal/config"
	"github.com/maneesh/soundpost/internal/handlers"
	"github.com/maneesh/soundpost/internal/posts"
	"github.com/maneesh/soundpost/internal/storage"
	"github.com/maneesh/soundpost/internal/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	log.Println("Starting SoundPost service...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Service: %s, Port: %s", cfg.ServiceName, cfg.ServicePort)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	// Initialize MinIO client
	log.Println("Connecting to MinIO...")
	minioClient, err := storage.NewMinioClient(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucketName,
		cfg.MinIOUseSSL,
	)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO client: %v", err)
	}
	log.Println("MinIO client initialized")

	// Initialize MySQL client
	log.Println("Connecting to MySQL...")
	mysqlClient, err := storage.NewMySQLClient(cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to initialize MySQL client: %v", err)
	}
	defer mysqlClient.Close()
	if err := mysqlClient.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	log.Println("MySQL client initialized")

	// Initialize Redis client
	log.Println("Connecting to Redis...")
	redisClient, err := storage.NewRedisClient(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to initialize Redis client: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis client initialized")

	// Wire the blob store. Bucket bootstrap runs in the background; the
	// store rejects traffic with a not-ready error until it completes,
	// and /api/bucket-status reports readiness to deployment tooling.
	chunkerInstance := chunker.NewChunker(cfg.GetChunkSizeBytes())
	store := blobstore.New(minioClient, mysqlClient, chunkerInstance)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Init(ctx); err != nil {
			log.Printf("Blob store initialization failed: %v", err)
		}
	}()

	// Initialize service and handlers
	service := posts.NewService(store, mysqlClient, redisClient)
	dev := cfg.IsDevelopment()
	uploadHandler := handlers.NewUploadHandler(service, dev)
	streamHandler := handlers.NewStreamHandler(service, dev)
	postsHandler := handlers.NewPostsHandler(service, dev)

	// Setup HTTP router
	router := mux.NewRouter()

	// Liveness endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Readiness probe for the blob store
	router.HandleFunc("/api/bucket-status", postsHandler.BucketStatus).Methods("GET")

	// Track operations with tracing
	router.Handle("/upload/file", otelhttp.NewHandler(uploadHandler, "POST /upload/file")).Methods("POST")
	router.Handle("/api/stream/{fileId}", otelhttp.NewHandler(streamHandler, "GET /api/stream/{fileId}")).Methods("GET")
	router.Handle("/api/music", otelhttp.NewHandler(http.HandlerFunc(postsHandler.List), "GET /api/music")).Methods("GET")
	router.Handle("/api/music/{id}", otelhttp.NewHandler(http.HandlerFunc(postsHandler.Get), "GET /api/music/{id}")).Methods("GET")
	router.Handle("/api/music/{id}/comment", otelhttp.NewHandler(http.HandlerFunc(postsHandler.Comment), "POST /api/music/{id}/comment")).Methods("POST")

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on port %s", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
