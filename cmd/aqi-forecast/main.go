package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/air-quality-forecast/internal/api/http"
	"github.com/i474232898/air-quality-forecast/internal/app"
	"github.com/i474232898/air-quality-forecast/internal/config"
	"github.com/i474232898/air-quality-forecast/internal/scheduler"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Record store, source, artifacts and job runner.
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Close()

	// Scheduler that periodically refreshes data and retrains.
	sched := scheduler.New(a.Runner, cfg.IngestInterval, cfg.TrainInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	server := fiber.New(fiber.Config{
		AppName:               "air-quality-forecast",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	server.Use(logger.New())
	server.Use(recover.New())

	// Basic health endpoint
	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "air-quality-forecast",
			"location": a.Location.Key(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(server, httpapi.Deps{
		Repo:       a.Repo,
		Artifacts:  a.Artifacts,
		Predictor:  a.Predictor,
		Jobs:       a.Runner,
		Location:   a.Location.Key(),
		DailyDrift: cfg.ForecastDailyDrift,
	})

	go func() {
		if err := server.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("INFO: serving %s on :%s", a.Location.Key(), cfg.Port)

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
