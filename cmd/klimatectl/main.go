package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonnyarndt/klimate/internal/bridge"
	"github.com/jonnyarndt/klimate/internal/config"
	"github.com/jonnyarndt/klimate/internal/console"
	"github.com/jonnyarndt/klimate/internal/hvac"
	"github.com/jonnyarndt/klimate/internal/observability"
	"github.com/jonnyarndt/klimate/internal/protocol/climate"
)

func main() {
	configPath := flag.String("config", "klimate.toml", "unit configuration path")
	flag.Parse()

	logger := observability.InitLogger("klimatectl")
	cfg, err := config.LoadUnitConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration rejected")
	}
	observability.RegisterMetrics()

	link := hvac.NewLink(hvac.LinkConfig{
		Addr:                 cfg.HVAC.Addr(),
		ConnectTimeout:       cfg.HVAC.ConnectTimeout(),
		AutoReconnect:        cfg.HVAC.AutoReconnect,
		ReconnectDelay:       cfg.HVAC.ReconnectDelay(),
		ReconnectMultiplier:  cfg.HVAC.ReconnectMultiplier,
		MaxReconnectDelay:    cfg.HVAC.MaxReconnectDelay(),
		ReconnectJitter:      cfg.HVAC.ReconnectJitter,
		MaxReconnectAttempts: cfg.HVAC.MaxReconnectAttempts,
	}, logger)
	zones := make([]climate.ZoneID, len(cfg.HVAC.ZoneIDs))
	for i, zone := range cfg.HVAC.ZoneIDs {
		zones[i] = climate.ZoneID(zone)
	}
	store := hvac.NewStore(cfg.Storage.SetpointPaths, zones, cfg.HVAC.IdleSetpointC, logger)
	ctrl := hvac.NewController(cfg.HVAC, link, store, logger)
	defer ctrl.Close()

	if cfg.Bridge.Enabled {
		b := bridge.New(cfg.Bridge, ctrl, logger)
		if err := b.Start(); err != nil {
			logger.Error().Err(err).Msg("bridge start failed")
		} else {
			defer b.Stop()
		}
	}

	if !ctrl.Initialize() {
		logger.Warn().Msg("unit unreachable at startup, reconnect policy applies")
	}

	srv := &http.Server{
		Addr:    cfg.Console.Addr,
		Handler: console.NewRouter(ctrl, cfg.Console),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Console.Addr).Msg("console listening")
		serveErr <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("console server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}
