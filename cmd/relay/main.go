package main

import (
	"chat-relay/admin"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/transport"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 5 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components and returns once the relay is fully stopped,
// so every deferred close runs before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.Load()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := moderation.ParseReplacement(config.ModerationCharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage, search and moderation
	store, closeStore, err := repositories.NewStore(config.StoreBackend, logger)
	if err != nil {
		return exitConfig, err
	}
	defer func() {
		logger.Info("Closing message store...")
		_ = closeStore()
	}()

	index, err := search.NewIndex(logger, config.SearchLimit)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open search index: %w", err)
	}
	defer func() {
		logger.Info("Closing search index...")
		_ = index.Close()
	}()

	words := moderation.ParseWords(config.ModerationWords)
	if config.ModerationDictionaryDir != "" {
		dictionary, err := moderation.LoadDictionary(os.DirFS(config.ModerationDictionaryDir), ".")
		if err != nil {
			return exitConfig, fmt.Errorf("failed to load moderation dictionary: %w", err)
		}
		logger.Info(fmt.Sprintf("%d censored files loaded [%s]",
			len(dictionary.Languages), strings.Join(dictionary.Languages, ",")))
		words = append(words, dictionary.Words...)
	}
	moderator, err := moderation.NewModerator(words, charReplacement, logger)
	if err != nil {
		return exitConfig, err
	}

	// 3. Supervision & orchestration
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	registry := runtime.NewRegistry()
	counters := observability.NewCounters()

	orchestrator := runtime.NewOrchestrator(logger, sup, registry, store, counters,
		config.BufferSize, config.SinkTimeout, config.ReapDelay).
		WithSearch(index).
		WithCensor(moderator).
		WithCollapseReconnects(config.CollapseReconnects)
	orchestrator.Add(index)
	sup.Add(workers.NewMonitorWorker(logger, config.MonitorInterval, registry, counters))

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)
	stopped := make(chan struct{})
	go func() {
		orchestrator.Start(ctx)
		close(stopped)
	}()

	// 5. Websocket listener
	wsServer := transport.NewServer(logger, orchestrator,
		fmt.Sprintf("%s:%d", config.Host, config.Port),
		config.ConnectionBufferSize, config.ReadLimit)
	go func() {
		if err := wsServer.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("websocket server error: %w", err)
		}
	}()

	// 6. Admin gRPC listener
	adminAddress := fmt.Sprintf("%s:%d", config.Host, config.AdminPort)
	listener, err := net.Listen("tcp", adminAddress)
	if err != nil {
		orchestrator.Stop()
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", adminAddress, err)
	}
	adminServer := admin.NewServer(logger)
	go func() {
		if err := adminServer.Serve(listener); err != nil {
			errChan <- fmt.Errorf("admin server error: %w", err)
		}
	}()
	adminServer.SetServing(true)

	// 7. Wait for Stop or Error
	code, runErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Graceful shutdown
	logger.Info("Shutting down gracefully...")
	stop()
	adminServer.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Websocket server shutdown", "error", err)
	}
	orchestrator.Stop()
	<-stopped
	adminServer.Stop()
	logger.Info("Program stopped cleanly")

	return code, runErr
}
