package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/credvue/fieldcollect/internal/config"
	"github.com/credvue/fieldcollect/internal/database"
	"github.com/credvue/fieldcollect/internal/geo"
	"github.com/credvue/fieldcollect/internal/handlers"
	"github.com/credvue/fieldcollect/internal/models"
	"github.com/credvue/fieldcollect/internal/services/feedback"
	"github.com/credvue/fieldcollect/internal/sweep"
	"github.com/credvue/fieldcollect/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := config.GetLogger()

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema
	log.Println("Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.User{},
		&models.Case{},
		&models.CaseUpload{},
		&models.Feedback{},
		&models.PayoutGrid{},
		&models.PerformanceMetric{},
		&models.Referral{},
	)
	if err != nil {
		log.Printf("Migration warning: %v\n", err)
	} else {
		log.Println("Schema synchronized successfully")
	}

	// 4. Start the alert hub for dashboard push
	hub := websocket.NewHub()
	go hub.Run()

	// 5. Set up HTTP router
	router := handlers.NewRouter(db, cfg, logger, hub)

	// 6. Start the broken-PTP sweep in the background
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if cfg.Sweep.Enabled {
		feedbackSvc := feedback.NewService(db.DB, geo.NewValidator(cfg.Geo.FakeVisitThresholdMeters))
		runner := sweep.NewRunner(feedbackSvc, hub, logger, cfg)
		runner.Start(sweepCtx)
		log.Printf("PTP sweep scheduled every %s", cfg.Sweep.Interval)
	} else {
		log.Println("PTP sweep disabled by configuration")
	}

	// 7. Start server with graceful shutdown
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("Received signal: %v. Shutting down gracefully...\n", sig)

	// Create context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Stop the sweep loop
	stopSweep()

	// Close database (this also stops embedded PostgreSQL)
	log.Println("Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
}
