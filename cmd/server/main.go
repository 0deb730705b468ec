package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/plexrelay/chatrelay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not load .env file", "error", err)
	}

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	server.SetConfig(cfg)

	var bus server.Bus
	if cfg.RedisHost == "" {
		logger.Info("REDIS_HOST not set, running on the in-process bus")
		bus = server.NewMemoryBus()
	} else {
		logger.Info("connecting to bus", "addr", cfg.RedisAddr())
		bus = server.NewRedisBus(cfg.RedisAddr(), logger)
	}

	relay := server.NewRelay(bus, cfg.Channel, logger)
	if err := relay.Start(context.Background()); err != nil {
		logger.Error("relay start failed", "error", err)
		os.Exit(1)
	}

	mux := server.SetupRoutes(relay)
	httpServer := server.CreateServer(cfg.Port, mux)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := relay.Shutdown(); err != nil {
		logger.Error("relay shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}
