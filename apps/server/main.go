package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"chupistica-server/apps/server/internal/archive"
	"chupistica-server/apps/server/internal/dispatch"
	"chupistica-server/apps/server/internal/gateway"
	"chupistica-server/apps/server/internal/registry"
	"chupistica-server/apps/server/internal/room"
)

func main() {
	logger, err := buildLogger(envStr("LOG_MODE", "prod"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	store, archiveMode, err := archive.NewStoreFromEnv()
	if err != nil {
		logger.Fatal("init archive store", zap.Error(err))
	}
	if store != nil {
		defer store.Close()
	}

	reg := registry.New(registry.Config{
		MaxSessions: envInt("MAX_SESSIONS", 1024),
		IdleTimeout: envDur("IDLE_TIMEOUT", 30*time.Minute),
		EndedGrace:  envDur("ENDED_GRACE", 5*time.Minute),
		Room: room.Config{
			QueueSize: envInt("ROOM_QUEUE_SIZE", 64),
			Archive:   store,
			Logger:    logger.Named("room"),
		},
		Logger: logger.Named("registry"),
	})

	dispatcher := dispatch.New(reg, dispatch.Config{
		DefaultTimeout: envDur("COMMAND_TIMEOUT", 10*time.Second),
		Logger:         logger.Named("dispatch"),
	})

	gw := gateway.New(dispatcher, reg, store, gateway.Config{
		SubscriberBuffer: envInt("SUBSCRIBER_BUFFER", 256),
		Logger:           logger.Named("gateway"),
	})

	router := mux.NewRouter()
	gw.Routes(router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reg.RunReaper(ctx, envDur("REAP_INTERVAL", time.Minute))

	addr := envStr("LISTEN_ADDR", ":8080")
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("archive", archiveMode))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("http shutdown", zap.Error(err))
	}
	gw.CloseAll()
	reg.CloseAll()
	logger.Info("server stopped")
}

func buildLogger(mode string) (*zap.Logger, error) {
	if mode == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envDur(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
