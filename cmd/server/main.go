package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	wsignal "github.com/gatherly/office/internal/adapters/signal"

	"github.com/gatherly/office/internal/adapters/httpapi"
	"github.com/gatherly/office/internal/app"
	"github.com/gatherly/office/internal/config"
	"github.com/gatherly/office/internal/metrics"
	"github.com/gatherly/office/internal/presence"
	"github.com/gatherly/office/internal/zone"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.LogFile != "" {
		fileSink := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
		}
		log.Logger = log.Output(zerolog.MultiLevelWriter(
			zerolog.ConsoleWriter{Out: os.Stderr},
			io.Writer(fileSink),
		))
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	rooms := app.NewRoomManager(func() app.RoomOptions {
		return app.RoomOptions{
			Zones: zone.DefaultOffices(),
			Presence: presence.Config{
				SpawnX:  cfg.SpawnX,
				SpawnY:  cfg.SpawnY,
				ChatCap: cfg.ChatCap,
			},
			ChatLimiter: app.NewChatRateLimiter(cfg.ChatLimit, cfg.ChatInterval),
			Metrics:     m,
		}
	})

	ctl := wsignal.NewController(rooms, cfg, m)
	r := httpapi.SetupRouter(ctx, cfg, rooms, ctl, registry)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Office server started")
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
