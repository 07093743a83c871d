// If you are AI: This is the main entrypoint for the pnrelay server.
// It handles configuration loading, server startup, and graceful shutdown.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"pnrelay/internal/config"
	"pnrelay/internal/server"
)

// main is the entrypoint for the pnrelay server.
// It loads configuration, starts the relay, and handles graceful shutdown.
func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file (built-in defaults when empty)")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = config.Default()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	fmt.Println("Phoenix SDR Signal Relay")
	fmt.Printf("Detector stream:  port %d (%d Hz float32 I/Q)\n", cfg.Server.DetectorPort, cfg.Streams.DetectorSampleRate)
	fmt.Printf("Display stream:   port %d (%d Hz float32 I/Q)\n", cfg.Server.DisplayPort, cfg.Streams.DisplaySampleRate)
	fmt.Printf("Control relay:    port %d (text commands)\n", cfg.Server.ControlPort)
	fmt.Printf("Discovery coord:  port %d (TCP service registry)\n\n", cfg.Server.DiscoveryPort)

	// Create server
	srv := server.New(cfg)

	// Bind listeners and launch components; a port conflict is fatal.
	if err := srv.Start(); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}

	// Wait for SIGINT/SIGTERM, then tear everything down in order.
	if err := srv.WaitForSignal(); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}

	log.Println("Server shut down cleanly")
}
