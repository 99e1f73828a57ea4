package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quiltwm/quilt/internal/config"
	"github.com/quiltwm/quilt/internal/ipc"
	"github.com/quiltwm/quilt/internal/reactor"
	"github.com/quiltwm/quilt/internal/runtimepath"
	"github.com/quiltwm/quilt/internal/snapshot"
	"github.com/quiltwm/quilt/internal/x11"
)

// runDaemon starts the window manager in the foreground and blocks until the
// reactor stops: clean shutdown via SaveAndExit, signal, or lost X connection.
func runDaemon() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	provider, err := x11.Open(logger)
	if err != nil {
		logger.Error("failed to connect to display server", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	snapshotPath, err := runtimepath.SnapshotPath()
	if err != nil {
		logger.Error("failed to resolve snapshot path", "error", err)
		os.Exit(1)
	}
	restored, err := snapshot.Load(snapshotPath)
	if err != nil {
		if errors.Is(err, snapshot.ErrCorrupt) {
			logger.Warn("snapshot is corrupt, starting with empty state", "path", snapshotPath)
			restored = nil
		} else {
			logger.Error("failed to load snapshot", "path", snapshotPath, "error", err)
			os.Exit(1)
		}
	}

	rx := reactor.New(provider, cfg, snapshotPath, logger)
	if err := rx.Bootstrap(restored); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- rx.Run(ctx) }()

	reload := func() error {
		next, err := config.Load()
		if err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		return rx.UpdateConfig(next)
	}

	server, err := ipc.NewServer(rx, reload, logger)
	if err != nil {
		logger.Error("failed to create IPC server", "error", err)
		os.Exit(1)
	}
	if err := server.Start(); err != nil {
		logger.Error("failed to start IPC server", "error", err)
		os.Exit(1)
	}
	defer server.Stop()

	if cfgPath, err := runtimepath.ConfigPath(); err == nil {
		watcher := config.NewWatcher(cfgPath, logger, func(next *config.Config) {
			if err := rx.UpdateConfig(next); err != nil {
				logger.Warn("failed to apply reloaded config", "error", err)
			}
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	} else {
		logger.Warn("config watching disabled", "error", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, reloading config")
				if err := reload(); err != nil {
					logger.Warn("reload failed", "error", err)
				}
			default:
				logger.Info("received signal, saving state and exiting", "signal", sig.String())
				go func() {
					if err := rx.SaveAndExit(); err != nil {
						logger.Error("save and exit failed", "error", err)
						cancel()
					}
				}()
			}
		}
	}()

	logger.Info("quilt daemon started", "snapshot", snapshotPath)
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reactor stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("quilt daemon stopped")
}

func logLevel() slog.Level {
	switch os.Getenv("QUILT_LOG") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
