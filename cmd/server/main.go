package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/api/router"
	"fleettrack/internal/config"
	"fleettrack/internal/protocol"
	"fleettrack/internal/protocol/gt06"
	"fleettrack/internal/protocol/h02"
	"fleettrack/internal/protocol/server"
	"fleettrack/internal/protocol/teltonika"
)

func main() {
	cfg := config.Load()
	logger := log.NewEntry(config.NewLogger(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}
	defer app.close()

	codecs := []protocol.Codec{
		&gt06.Decoder{VerifyChecksum: cfg.VerifyChecksum},
		h02.NewDecoder(),
		&teltonika.Decoder{VerifyChecksum: cfg.VerifyChecksum},
	}
	tcp := server.NewTCPServer(cfg.TCPAddr(), cfg.IdleTimeout, codecs, app.registry, app.positions, app.commands, logger)
	if err := tcp.Start(ctx); err != nil {
		logger.WithError(err).Fatal("TCP server failed to start")
	}

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: router.NewRouter(router.Services{
			Devices:   app.devices,
			Positions: app.positions,
			Trips:     app.trips,
			Alerts:    app.alerts,
			Geofences: app.geofences,
			Commands:  app.commands,
			Sessions:  app.registry,
			Presence:  app.presence,
		}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	if cfg.OfflineCheckInterval > 0 {
		go runOfflineChecks(ctx, app, cfg.OfflineCheckInterval, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown")
	}
	tcp.Stop()
}

func runOfflineChecks(ctx context.Context, app *application, every time.Duration, logger *log.Entry) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			alerts, err := app.alerts.CheckOfflineAll(ctx, now.UTC())
			if err != nil {
				logger.WithError(err).Error("offline check failed")
			}
			if len(alerts) > 0 {
				logger.WithField("alerts", len(alerts)).Info("offline vehicles detected")
			}
		}
	}
}
