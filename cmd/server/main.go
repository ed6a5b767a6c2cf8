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

	router "github.com/classcast/classcast/internal/adapters/http"
	"github.com/classcast/classcast/internal/adapters/media"
	sig "github.com/classcast/classcast/internal/adapters/signal"
	"github.com/classcast/classcast/internal/app"
	"github.com/classcast/classcast/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	engine, err := media.NewEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media engine")
	}

	rooms := app.NewRoomRegistry(engine.Workers(), cfg.MaxClientsPerRoom)
	sessions := app.NewRegistry()
	ctl := sig.NewController(rooms, sessions, cfg)

	r := router.SetupRouter(ctx, cfg, ctl, rooms)
	addr := fmt.Sprintf(":%d", cfg.ListenPort)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("workers", cfg.NumWorkers).
			Int("max_clients", cfg.MaxClientsPerRoom).Msg("classcast server started")
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
	rooms.CloseAll()
	engine.Close()
	log.Info().Msg("Server exited gracefully")
}
