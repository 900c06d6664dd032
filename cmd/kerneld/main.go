package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Kernel.Image, "image", cfg.Kernel.Image, "Boot image (.yaml, .yml or .toml)")
	flag.IntVar(&cfg.Kernel.Slots, "slots", cfg.Kernel.Slots, "Process table size")
	flag.IntVar(&cfg.Kernel.DemoRounds, "rounds", cfg.Kernel.DemoRounds, "Requests per client process")
	flag.StringVar(&cfg.Admin.Address, "admin", cfg.Admin.Address, "Admin HTTP address")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to boot kernel: %v", err)
	}
	defer srv.Close()

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		srv.Close()
		log.Fatalf("Kernel stopped: %v", err)
	}
}
