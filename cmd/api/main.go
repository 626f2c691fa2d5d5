package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scythe504/ludo-backend/internal/config"
	"github.com/scythe504/ludo-backend/internal/database"
	"github.com/scythe504/ludo-backend/internal/game"
	"github.com/scythe504/ludo-backend/internal/server"
)

func gracefulShutdown(apiServer *http.Server, svc *game.Service, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")
	stop()

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	svc.Stop()

	log.Info().Msg("server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	config.InitConfig()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetupLogger(cfg)

	var archive game.Archive
	db, err := database.New(context.Background(), cfg.DatabaseURL)
	switch {
	case errors.Is(err, database.ErrArchiveDisabled):
		log.Info().Msg("DATABASE_URL not set, event archive disabled")
		db = nil
	case err != nil:
		log.Fatal().Err(err).Msg("cannot open event archive")
	default:
		archive = db
		defer db.Close()
	}

	store := game.NewStore(
		game.WithDecisionDuration(cfg.DecisionDuration),
		game.WithDiceRange(cfg.DiceMin, cfg.DiceMax),
	)
	watchdog := game.NewWatchdog(store,
		game.WithPollInterval(cfg.WatchdogInterval),
		game.WithCleanupInterval(cfg.CleanupInterval),
		game.WithEventMaxAge(cfg.EventRetention),
	)
	timer := game.NewTurnTimer(store,
		game.WithAnimationDelay(cfg.AnimationDelay),
		game.WithDecisionTick(cfg.DecisionTick),
	)
	svc := game.NewService(store, timer, watchdog, archive)
	svc.Start(context.Background())

	apiServer := server.NewServer(cfg, svc, db)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(apiServer, svc, done)

	log.Info().Str("addr", apiServer.Addr).Msg("ludo server listening")
	err = apiServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server error")
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info().Msg("graceful shutdown complete")
}
