package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/b0bbywan/odio-bluetooth/api"
	"github.com/b0bbywan/odio-bluetooth/backend"
	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		logger.Fatal("[%s] Failed to load config: %v", config.AppName, err)
	}

	logger.SetLevel(cfg.LogLevel)
	logger.SetComponentLevels(cfg.LogLevels)

	// Cancelled on SIGINT/SIGTERM; every listener derives from it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := backend.New(ctx, cfg)
	if err != nil {
		logger.Fatal("[%s] Backend initialization failed: %v", config.AppName, err)
	}

	if err := b.Start(); err != nil {
		b.Close()
		logger.Fatal("[%s] Backend start failed: %v", config.AppName, err)
	}

	server := api.NewServer(cfg.Api, b)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		if server == nil {
			<-ctx.Done()
			return
		}
		if err := server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[%s] http server error: %v", config.AppName, err)
			stop()
		}
	}()

	notify(daemon.SdNotifyReady)
	logger.Info("[%s] started", config.AppName)

	<-ctx.Done()
	logger.Info("[%s] Shutdown signal received, stopping...", config.AppName)
	notify(daemon.SdNotifyStopping)

	<-serverDone
	b.Close()
	logger.Info("[%s] stopped", config.AppName)
}

// notify reports the service state to systemd when running under a
// Type=notify unit. Outside systemd it is a no-op.
func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("[%s] sd_notify %q failed: %v", config.AppName, state, err)
		return
	}
	if sent {
		logger.Debug("[%s] sd_notify %q", config.AppName, state)
	}
}
