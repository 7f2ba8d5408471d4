package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/lxb/internal/ble"
	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/hub"
	"github.com/srg/lxb/internal/monitor"
	"github.com/srg/lxb/internal/recorder"
	"github.com/srg/lxb/internal/registry"
	"github.com/srg/lxb/internal/supervisor"
)

// shutdownGrace bounds how long the hub server is given to drain
// in-flight websocket writes before Shutdown forces a close.
const shutdownGrace = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the acquisition daemon: auto-connect, decode, process, record, and serve the subscriber hub",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().String("addr", ":8787", "address the websocket hub listens on")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")

	logger := cfg.NewLogger()
	clk := clock.System{}

	if err := os.MkdirAll(cfg.Recorder.DataRoot, 0o755); err != nil {
		return fmt.Errorf("lxbd: create data root: %w", err)
	}

	reg := registry.New(clk, filepath.Join(cfg.Recorder.DataRoot, "registry.yaml"))
	if err := reg.Load(); err != nil {
		return fmt.Errorf("lxbd: load registry: %w", err)
	}

	scanner := ble.NewScanner(logger, clk)
	rec := recorder.NewManager(clk, cfg.Recorder.DataRoot, logger)
	mon := monitor.New(clk)
	h := hub.New(hub.Config{
		Logger:              logger,
		Clock:               clk,
		SendTimeout:         cfg.Hub.SendTimeout,
		PrioritySendTimeout: cfg.Hub.PrioritySendTimeout,
	})

	sup := supervisor.New(logger, clk, supervisor.FromAppConfig(cfg), scanner, reg, rec, h, mon)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("lxbd: start supervisor: %w", err)
	}
	h.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeHTTP)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sup.DeviceConnectionStatus())
	})
	server := &http.Server{Addr: addr, Handler: mux}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("lxbd: hub listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("lxbd: shutdown signal received")
	case err := <-serverErr:
		logger.WithError(err).Error("lxbd: hub server failed")
	}

	cancel()
	sup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
