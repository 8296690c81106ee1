package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mixaill76/claude_bridge/internal/config"
	"github.com/mixaill76/claude_bridge/internal/converter/anthropic"
	"github.com/mixaill76/claude_bridge/internal/httputil"
	"github.com/mixaill76/claude_bridge/internal/logger"
	"github.com/mixaill76/claude_bridge/internal/proxy"
	"github.com/mixaill76/claude_bridge/internal/router"
	"github.com/mixaill76/claude_bridge/internal/tokens"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	provider, err := config.NewProvider(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := provider.Snapshot()

	log := logger.New(cfg.Logging.Level)

	// Startup info (INFO level)
	log.Info("Starting claude_bridge",
		"logging_level", cfg.Logging.Level,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"upstream", cfg.OpenAI.BaseURL,
		"client_auth", cfg.APIKey != "",
	)
	log.Info("Model routing configured",
		"default", cfg.Models.Default,
		"small", cfg.Models.Small,
		"think", cfg.Models.Think,
		"long_context", cfg.Models.LongContext,
	)

	counter := tokens.NewCounter(log)
	cache, err := tokens.NewCache(0)
	if err != nil {
		log.Error("Failed to create token cache", "error", err)
		os.Exit(1)
	}
	conv := anthropic.New(counter, cache, log)

	client := httputil.NewHTTPClient(httputil.DefaultHTTPClientConfig())
	prx := proxy.New(provider, conv, client, log)
	rtr := router.New(prx, provider, cache, log)

	watcher, err := config.NewWatcher(provider, log)
	if err != nil {
		log.Warn("Config hot reload disabled", "error", err)
	} else if err := watcher.Start(); err != nil {
		log.Warn("Config hot reload disabled", "error", err)
	} else {
		defer func() { _ = watcher.Stop() }()
		log.Info("Config hot reload enabled", "path", *configPath)
	}

	mux := http.NewServeMux()
	mux.Handle("/", rtr)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down server...")

	// Create context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server shutdown complete")
}
