package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/pagelake/internal/config"
	"github.com/rpattn/pagelake/internal/datalake"
	"github.com/rpattn/pagelake/internal/db"
	"github.com/rpattn/pagelake/internal/ingestion"
	"github.com/rpattn/pagelake/internal/middleware"
	"github.com/rpattn/pagelake/internal/partner"
	"github.com/rpattn/pagelake/internal/repository"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Migrations.Enabled {
		if err := db.RunMigrations(cfg.Database); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	store, err := newStore(cfg.DataLake)
	if err != nil {
		log.Fatalf("Failed to create data lake store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize data lake: %v", err)
	}

	// Create repositories
	stagingRepo := repository.NewStagingRepository(conn.Pool)
	stagingLogRepo := repository.NewStagingLogRepository(conn.Pool)
	processedRepo := repository.NewProcessedRowRepository(conn.Pool)

	fetcher := partner.NewClient(&http.Client{Timeout: cfg.Fetch.Timeout})
	directory := partner.NewDirectory(cfg.Partners)
	log.Printf("Configured partner platforms: %v", directory.Platforms())

	service := ingestion.NewService(stagingRepo, stagingLogRepo, processedRepo, fetcher, directory, store)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	mux := http.NewServeMux()
	mux.Handle("/pages/", ingestion.NewHTTPHandler(service))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(middleware.Recover(mux))),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Fetch.Timeout + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting pages server on %s", cfg.Server.Addr)
		log.Printf("Metrics available at %s/metrics", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func newStore(cfg config.DataLakeConfig) (datalake.Store, error) {
	if cfg.Backend == config.BackendMinio {
		return datalake.NewMinioStore(cfg.Minio)
	}
	return datalake.NewLocalStore(cfg.RawDir, cfg.ProcessedDir), nil
}
