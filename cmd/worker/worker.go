package main

import (
	"log"

	"fossawork-backend/internal/auth"
	"fossawork-backend/internal/config"
	"fossawork-backend/internal/logger"
	"fossawork-backend/internal/queue"
	"fossawork-backend/internal/scheduler"
	"fossawork-backend/internal/scraper"
	"fossawork-backend/internal/store"
)

// Standalone scrape worker. Runs the asynq consumer only; schedule
// ticking stays in the API process.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required for the worker")
	}

	logger.InitLogger(cfg)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer st.Close()

	sealer, err := auth.NewSealer(cfg.CredentialKey)
	if err != nil {
		log.Fatal("Invalid credential key:", err)
	}

	progress := scheduler.NewTracker(cfg.ProgressTTL)
	exec := scheduler.NewExecutor(cfg, st, scraper.New(cfg), sealer, progress)

	srv, mux, err := queue.NewServer(cfg, exec)
	if err != nil {
		log.Fatal("Failed to build asynq server:", err)
	}

	logger.Info("Scrape worker starting", "concurrency", cfg.WorkerConcurrency)
	if err := srv.Run(mux); err != nil {
		log.Fatal("Worker stopped:", err)
	}
}
