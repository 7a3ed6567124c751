package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/threadscope/internal/infrastructure/config"
	"github.com/GriffinCanCode/threadscope/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment
	port := flag.String("port", cfg.Server.Port, "Server port")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	features := flag.String("features", cfg.Features.Path, "Glob of extra feature files")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Logging.Development = *dev
	cfg.Features.Path = *features

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Close(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
