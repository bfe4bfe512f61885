package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/roomkit/internal/adapters/http"
	wssignal "github.com/dkeye/roomkit/internal/adapters/signal"
	"github.com/dkeye/roomkit/internal/config"
	"github.com/dkeye/roomkit/internal/mediaplane/local"
	"github.com/dkeye/roomkit/internal/room"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	provider := local.NewProvider(cfg.StunServer, cfg.DestroyClients)
	registry := wssignal.NewRegistry()
	notifier := wssignal.NewNotifier(registry)

	manager := room.NewManager(notifier, provider, room.Options{
		EndpointTimeout: cfg.EndpointTimeout,
		CleanupWorkers:  cfg.CleanupWorkers,
	})
	rooms := room.NewNotificationManager(manager, notifier)

	limiter := wssignal.NewJoinRateLimiter(10, time.Minute)
	ctl := wssignal.NewController(rooms, registry, notifier, limiter)

	r := router.SetupRouter(ctx, cfg, rooms, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("roomkit server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	manager.Close(shutdownCtx)
	log.Info().Msg("Server exited gracefully")
}
