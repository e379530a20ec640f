package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/sujalbistaa/classhub/internal/auth"
	"github.com/sujalbistaa/classhub/internal/db"
	"github.com/sujalbistaa/classhub/internal/engine"
	routes "github.com/sujalbistaa/classhub/internal/http"
	"github.com/sujalbistaa/classhub/internal/identity"
	"github.com/sujalbistaa/classhub/internal/media"
	"github.com/sujalbistaa/classhub/internal/models"
	"github.com/sujalbistaa/classhub/internal/ws"
)

func main() {
	// Allows running in production (where env vars are set directly)
	// without a .env file.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}
	cookieSecret := os.Getenv("VISITOR_COOKIE_SECRET")
	if cookieSecret == "" {
		log.Fatal("VISITOR_COOKIE_SECRET environment variable not set")
	}
	isProduction := os.Getenv("ENV") == "production"

	database, err := db.Init()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	log.Println("Running database migrations...")
	if err := database.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations complete.")

	authService := auth.NewService(database, jwtSecret)
	if err := authService.SeedAdmin(
		os.Getenv("ADMIN_NAME"),
		os.Getenv("ADMIN_EMAIL"),
		os.Getenv("ADMIN_PASSWORD"),
	); err != nil {
		log.Fatalf("Failed to seed admin account: %v", err)
	}

	uploadsDir := os.Getenv("UPLOADS_DIR")
	if uploadsDir == "" {
		uploadsDir = "./uploads"
	}
	uploader, err := media.NewDiskUploader(uploadsDir, "/uploads")
	if err != nil {
		log.Fatalf("Failed to initialize upload storage: %v", err)
	}

	resolver := identity.NewResolver(cookieSecret, isProduction)
	dedupEngine := engine.New(database)

	hub := ws.NewHub()
	go hub.Run()
	gateway := ws.NewGateway(hub, dedupEngine, authService, resolver, os.Getenv("CORS_ORIGIN"))

	if isProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	env := &routes.Env{
		DB:       database,
		Engine:   dedupEngine,
		Auth:     authService,
		Resolver: resolver,
		Gateway:  gateway,
		Uploader: uploader,
	}
	routes.SetupRoutes(router, env, uploader.Dir())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	hub.Stop()

	log.Println("Server exiting")
}
