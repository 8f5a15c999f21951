// Package main provides the standalone MCP entry point for the HCC MVI risk
// server. It needs no external database: assessments live in SQLite and the
// calibrated model in a JSON file under the data directory.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hcc-mvi-risk-server/internal/config"
	"github.com/hcc-mvi-risk-server/internal/mcp"
)

func main() {
	// stdout belongs to the stdio transport.
	log.SetOutput(os.Stderr)

	cfg := config.LoadLiteConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	server, err := mcp.NewLiteServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}

	log.Println("HCC MVI risk MCP server (lite) stopped")
}
