package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/sitepulse/linkaudit/internal/api"
	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
	"github.com/sitepulse/linkaudit/internal/middleware"
	"github.com/sitepulse/linkaudit/internal/notify"
	"github.com/sitepulse/linkaudit/internal/pipeline"
	"github.com/sitepulse/linkaudit/internal/scheduler"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServerConfig creates a new configuration from environment variables
func NewServerConfig() *ServerConfig {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return &ServerConfig{
		Port:            port,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute, // a synchronous full audit can be slow
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env: %v", err)
	}

	serverConfig := NewServerConfig()

	log.Println("Loading audit policy...")
	auditConfig, err := config.Load(os.Getenv("AUDIT_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load audit config: %v", err)
	}

	log.Println("Initializing database...")
	dbConn, err := db.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Database initialized successfully")

	notifier := notify.NewFromEnv()
	pipe := pipeline.New(dbConn, auditConfig, notifier, nil)

	log.Println("Starting scheduler service...")
	schedulerService := scheduler.NewService(dbConn, pipe, auditConfig.Scheduler)
	if err := schedulerService.Start(); err != nil {
		log.Fatalf("Failed to start scheduler service: %v", err)
	}
	log.Println("Scheduler service started successfully")

	// Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Add middleware
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   "link-audit",
		})
	})

	r.POST("/audit/run", api.RunAuditHandler(pipe))
	r.GET("/audit/history", api.AuditHistoryHandler(dbConn))

	r.POST("/scheduler/audits", api.ScheduleAuditHandler(schedulerService))
	r.POST("/scheduler/quick-checks", api.ScheduleQuickCheckHandler(schedulerService))
	r.POST("/scheduler/process", api.ProcessQueueHandler(schedulerService))
	r.DELETE("/scheduler/jobs/:id", api.CancelJobHandler(schedulerService))
	r.PUT("/scheduler/config", api.UpdateSchedulerConfigHandler(schedulerService))
	r.GET("/scheduler/status", api.QueueStatusHandler(schedulerService))

	r.POST("/links/:id/fix", api.FixLinkHandler(dbConn, auditConfig))
	r.POST("/corrections/:id/rollback", api.RollbackCorrectionHandler(dbConn))

	r.POST("/resource-requests", api.ResourceRequestHandler(dbConn, notifier, auditConfig.Alert.Recipient))

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + serverConfig.Port,
		Handler:      r,
		ReadTimeout:  serverConfig.ReadTimeout,
		WriteTimeout: serverConfig.WriteTimeout,
		IdleTimeout:  serverConfig.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", serverConfig.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create shutdown context
	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	// Shutdown server gracefully
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop scheduler service gracefully
	if err := schedulerService.Stop(); err != nil {
		log.Printf("Failed to stop scheduler service: %v", err)
	}

	log.Println("Server exited")
}
