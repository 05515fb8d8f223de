package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkamau/duka-server/internal/api"
	"github.com/jkamau/duka-server/internal/config"
	"github.com/jkamau/duka-server/internal/notify"
	"github.com/jkamau/duka-server/internal/repository"
	"github.com/jkamau/duka-server/internal/service"
	"github.com/jkamau/duka-server/internal/session"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	// Load configuration
	cfg := config.LoadConfig()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to set up database: %v", err)
	}
	defer db.Close()

	// Session store
	tokenTTL := time.Duration(cfg.Auth.TokenHours) * time.Hour
	sessions, err := session.NewStore(cfg.Redis.Addr, cfg.Redis.Password, tokenTTL)
	if err != nil {
		log.Fatalf("Failed to connect to session store: %v", err)
	}
	defer sessions.Close()

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Create service
	svc := service.NewDefaultService(repo, sessions, cfg.Auth.JWTSecret, tokenTTL)

	// Inventory change listener for the watch endpoint
	watcher, err := notify.NewListener(cfg.Database.GetDSN())
	if err != nil {
		log.Printf("Inventory notifications disabled: %v", err)
		watcher = nil
	} else {
		defer watcher.Close()
	}

	// Create API handler
	handler := api.NewHandler(svc, sessions, watcher)

	// Set up Gin router
	router := gin.Default()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.CORSOrigins}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.Use(api.MetricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Set up routes
	handler.SetupRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", serverAddr)
	if err := http.ListenAndServe(serverAddr, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
