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

	"github.com/BhargavShekhar/meet-p2p/internal/config"
	"github.com/BhargavShekhar/meet-p2p/internal/logging"
	"github.com/BhargavShekhar/meet-p2p/internal/server"
	"github.com/BhargavShekhar/meet-p2p/internal/signaling"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoadServer()
	log := logging.Setup(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := signaling.NewHub(log)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           server.NewMux(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting signaling server", "addr", cfg.HTTP.Address, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server stopped", "err", err)
		os.Exit(1)
	}
}
