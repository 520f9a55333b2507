package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"echojournal/internal/config"
	"echojournal/internal/device"
	"echojournal/internal/logging"
	"echojournal/internal/monitor"
	"echojournal/internal/player"
	"echojournal/internal/recorder"
	"echojournal/internal/settings"
	"echojournal/internal/storage"
	"echojournal/internal/store/sqlite"
	"echojournal/internal/ui"
)

func main() {
	dataDir := flag.String("data-dir", "", "directory for recordings, database and config (default ~/.echojournal)")
	monitorAddr := flag.String("monitor", "", "serve /metrics and /live on this address, overrides monitor_addr")
	listDevices := flag.Bool("list-devices", false, "print audio devices as JSON and exit")
	flag.Parse()

	if err := run(*dataDir, *monitorAddr, *listDevices); err != nil {
		fmt.Fprintf(os.Stderr, "echojournal: %v\n", err)
		os.Exit(1)
	}
}

func run(dataDir, monitorAddr string, listDevices bool) error {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return err
	}
	if monitorAddr != "" {
		cfg.MonitorAddr = monitorAddr
	}

	logger, logFile, err := logging.Setup(cfg.LogPath(), cfg.Level())
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger.Info("starting echojournal", "data_dir", cfg.DataDir, "config", cfg.Path)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host, err := device.Open(device.Config{
		SampleRate:      cfg.SampleRate,
		Channels:        cfg.Channels,
		FramesPerBuffer: cfg.FramesPerBuffer,
		InputDevice:     cfg.InputDevice,
		OutputDevice:    cfg.OutputDevice,
		Volume:          cfg.Volume,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := host.Close(); err != nil {
			logger.Warn("closing audio host", "error", err)
		}
	}()

	if listDevices {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(host.Devices())
	}

	store, err := sqlite.Open(ctx, cfg.DatabasePath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	prefs, err := settings.Open(cfg.SettingsPath(), logger)
	if err != nil {
		return err
	}

	files := storage.New(cfg.RecordingsDir(), cfg.TempDir(), logger)
	if err := files.CleanUpTemporaryFiles(ctx); err != nil {
		logger.Warn("cleaning temporary recordings", "error", err)
	}

	rec := recorder.New(host.Input(), recorder.Options{
		TempDir:  cfg.TempDir(),
		Interval: cfg.SampleInterval,
		Logger:   logger,
	})
	pl := player.New(host.Output(), player.Options{
		Interval: cfg.ProgressInterval,
		Logger:   logger,
	})

	appCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.MonitorAddr != "" {
		mon := monitor.New(monitor.Options{
			Addr:     cfg.MonitorAddr,
			Recorder: rec,
			Player:   pl,
			Logger:   logger,
		})
		go func() {
			if err := mon.Run(appCtx); err != nil {
				logger.Error("monitor failed", "error", err)
			}
		}()
	}

	model := ui.New(appCtx, ui.Deps{
		Config:   cfg,
		Recorder: rec,
		Player:   pl,
		Storage:  files,
		Echos:    store,
		Settings: prefs,
		Audio:    host,
		Logger:   logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run ui: %w", err)
	}

	// a signal can end the program without the quit key
	rec.Cancel()
	pl.Stop()
	logger.Info("echojournal stopped")
	return nil
}
