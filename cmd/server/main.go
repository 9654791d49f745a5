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

	router "github.com/deathboy20/stream-server/internal/adapters/http"
	"github.com/deathboy20/stream-server/internal/app"
	"github.com/deathboy20/stream-server/internal/auth"
	"github.com/deathboy20/stream-server/internal/config"
	"github.com/deathboy20/stream-server/internal/observability"
	"github.com/deathboy20/stream-server/internal/store"
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

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Store:    st,
		Tokens:   auth.NewMinter(cfg.Secret),
		Metrics:  observability.NewMetrics("stream_server"),
		Presence: app.NewPresence(),

		ClientURL:       cfg.ClientURL,
		SessionTTL:      cfg.SessionTTL,
		ChatHistory:     cfg.ChatHistory,
		MaxParticipants: cfg.MaxParticipants,
	}
	orch.StartSweeper(ctx, cfg.SweepInterval)

	r := router.SetupRouter(ctx, cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("stream server started")
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
	log.Info().Msg("Server exited gracefully")
}
