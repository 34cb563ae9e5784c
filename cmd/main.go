package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"fossawork-backend/internal/auth"
	"fossawork-backend/internal/config"
	"fossawork-backend/internal/logger"
	"fossawork-backend/internal/queue"
	"fossawork-backend/internal/scheduler"
	"fossawork-backend/internal/scraper"
	"fossawork-backend/internal/store"
	"fossawork-backend/internal/telemetry"
	"fossawork-backend/middleware"
	"fossawork-backend/routes"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("fossawork-backend", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err.Error())
		} else {
			defer shutdown()
		}
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer st.Close()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	sealer, err := auth.NewSealer(cfg.CredentialKey)
	if err != nil {
		log.Fatal("Invalid credential key:", err)
	}

	// Scheduler wiring: the executor does the actual scrape; the runner
	// decides whether it happens inline or through the asynq queue.
	progress := scheduler.NewTracker(cfg.ProgressTTL)
	exec := scheduler.NewExecutor(cfg, st, scraper.New(cfg), sealer, progress)

	var runner scheduler.Runner
	if rdb != nil {
		connOpt, err := queue.RedisConnOpt(cfg)
		if err != nil {
			log.Fatal("Invalid Redis config for asynq:", err)
		}
		client := asynq.NewClient(connOpt)
		defer client.Close()
		runner = queue.NewQueueRunner(client, cfg.ScrapeTimeout)

		// Embedded worker so a single-process deployment still drains
		// the queue (and the progress endpoint sees live runs). Set
		// EMBEDDED_WORKER=false when cmd/worker runs separately; two
		// consumers would race on the same user.
		if cfg.EmbeddedWorker {
			srv, mux, err := queue.NewServer(cfg, exec)
			if err != nil {
				log.Fatal("Failed to build asynq server:", err)
			}
			go func() {
				if err := srv.Run(mux); err != nil {
					logger.Error("asynq server stopped", "error", err.Error())
				}
			}()
			defer srv.Shutdown()
		}
	} else {
		runner = scheduler.NewInlineRunner(exec)
	}

	sched := scheduler.NewService(cfg, st, runner, progress)
	if err := sched.Start(); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}
	defer sched.Stop()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware("fossawork-backend"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	authMW := middleware.NewAuthMiddleware(cfg, rdb)

	routes.SetupAuthRoutes(router, cfg, st, sealer, rdb, authMW)
	routes.SetupScheduleRoutes(router, cfg, st, authMW)
	routes.SetupScrapeRoutes(router, st, runner, progress, authMW)
	routes.SetupWorkOrderRoutes(router, st, authMW)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
