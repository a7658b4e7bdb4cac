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
	"github.com/sourcegraph/conc"

	router "github.com/dkeye/Dispatch/internal/adapters/http"
	wsignal "github.com/dkeye/Dispatch/internal/adapters/signal"
	"github.com/dkeye/Dispatch/internal/app"
	"github.com/dkeye/Dispatch/internal/app/orch"
	"github.com/dkeye/Dispatch/internal/config"
	rest "github.com/dkeye/Dispatch/internal/transport/http"
)

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console output until the config says otherwise, so config.Load can log.
	setupLogger(config.LogConfig{Level: "info"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg.Log)

	policy, err := app.PolicyFromString(cfg.WS.SlowConsumer)
	if err != nil {
		log.Fatal().Err(err).Msg("slow consumer policy")
	}
	ice, err := cfg.ICEServers()
	if err != nil {
		log.Fatal().Err(err).Msg("ice servers")
	}

	reg := app.NewRegistry()
	hub := orch.New(reg, app.NewCalls(), policy, orch.Config{
		RingTimeout:    cfg.Calls.RingTimeout,
		CoalesceWindow: cfg.Presence.CoalesceWindow,
		RejectBusy:     cfg.Calls.RejectBusy,
	})
	ctrl := wsignal.NewSignalWSController(hub, wsignal.OptionsFromConfig(cfg))
	handlers := &rest.Handlers{Presence: reg, ICE: ice, Done: hub.Done()}

	r := router.SetupRouter(ctx, cfg, ctrl, handlers)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() { hub.Run(ctx) })
	wg.Go(func() {
		log.Info().Str("addr", addr).Msg("Dispatch server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	ctrl.Wait()
	wg.Wait()
	log.Info().Msg("Server exited gracefully")
}
