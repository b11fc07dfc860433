// main.go - Tracked site host: serves the public site and relays beacons
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"unipulse/internal"
	"unipulse/internal/config"
	"unipulse/internal/jobs"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	cfg := config.GetConfig()

	client, err := internal.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	app := internal.NewServer(client)

	var background []jobs.Job
	if client.GeoDB != nil && client.GeoUpdater.Configured() {
		background = append(background, jobs.GeoLiteUpdate(client.GeoUpdater, client.GeoDB, client.Logger))
	}
	scheduler := jobs.NewScheduler(client.Logger, background...)
	scheduler.Start(context.Background())

	log.Printf("Starting server on :%s...", cfg.AppPort)
	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	waitForShutdownSignal(app, scheduler, client)
}

// waitForShutdownSignal sets up signal handling and performs graceful shutdown
func waitForShutdownSignal(app *fiber.App, scheduler *jobs.Scheduler, client *internal.Client) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	log.Printf("Received signal: %v", sig)

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	log.Println("Initiating graceful shutdown...")
	scheduler.Stop()
	// In-flight requests finish first so their beacons reach the dispatcher
	// before it is drained.
	err := errors.Join(app.ShutdownWithContext(ctx), client.Shutdown(ctx))
	if err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("Server shutdown complete")
}
