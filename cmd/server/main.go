package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"

	"github.com/wavechat/relay/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("Starting Wavechat relay...")

	// Load local .env if present (dev convenience).
	_ = godotenv.Load()

	cfg := server.NewConfigFromEnv()

	registry, err := server.NewRegistry(*cfg)
	if err != nil {
		log.Fatalf("Failed to create registry: %v", err)
	}

	mux := server.SetupRoutes(registry, *cfg)
	httpServer := server.CreateServer(cfg.Port, mux)

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(_ context.Context) error {
				return server.ShutdownServer(httpServer, shutdownTimeout)
			},
			"registry": func(_ context.Context) error {
				return registry.Shutdown(shutdownTimeout)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Relay exited with code: %d", exitCode)
	os.Exit(exitCode)
}
