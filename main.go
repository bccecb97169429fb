package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codeberg.org/miketth/micboard/pkg/config"
	"codeberg.org/miketth/micboard/pkg/control"
	jsonstore "codeberg.org/miketth/micboard/pkg/historystore/json"
	"codeberg.org/miketth/micboard/pkg/historystore/memory"
	"codeberg.org/miketth/micboard/pkg/historystore/sqlite"
	"codeberg.org/miketth/micboard/pkg/micboard"
	"codeberg.org/miketth/micboard/pkg/notify"
	"codeberg.org/miketth/micboard/pkg/pulse"
	"codeberg.org/miketth/micboard/pkg/telemetry"
)

func main() {
	err := run()
	if err != nil {
		log.Fatalf("error: %+v", err)
	}
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml (default: search XDG config dirs)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log, err := newLogger(*debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := pulse.LookPath(cfg.Pactl.Path); err != nil {
		return fmt.Errorf("find pactl: %w", err)
	}

	exclude, err := micboard.NewExclusion(cfg.ExcludePattern)
	if err != nil {
		return fmt.Errorf("compile exclude pattern: %w", err)
	}

	store, storeTask, err := openStore(cfg, log.Named("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorw("close store", "error", err)
		}
	}()

	var conn *dbus.Conn
	if cfg.Notify.Backend == "dbus" || cfg.Control.Enabled {
		conn, err = dbus.ConnectSessionBus()
		if err != nil {
			log.Warnw("no session bus, desktop notifications and control service disabled", "error", err)
			conn = nil
		} else {
			defer conn.Close()
		}
	}

	recorder := telemetry.NewRecorder(store, cfg.Metrics.Enabled, log.Named("telemetry"))
	notifications := notify.NewQueue(newNotifier(cfg, conn, log), cfg.Notify.QueueSize, log.Named("notify"))
	monitor := pulse.NewMonitor(cfg.Pactl.Path, log.Named("pulse"))

	sw := micboard.NewSwitcher(micboard.SwitcherConfig{
		Directory: pulse.NewPactl(cfg.Pactl.Path),
		Source:    monitor,
		History:   micboard.NewHistory(store, exclude, log.Named("history")),
		Settings:  store,
		Exclude:   exclude,
		Notifier:  notifications,
		Telemetry: recorder,
		Log:       log.Named("switcher"),
		Debounce:  cfg.Debounce,
	})

	tasks := []task{
		{"switcher", sw.Run},
		{"pactl monitor", monitor.Run},
		{"notifications", notifications.Run},
		{"systemd notify", systemdNotifyLoop},
	}
	if storeTask != nil {
		tasks = append(tasks, task{"save state", storeTask})
	}
	if cfg.Metrics.Listen != "" {
		reg := telemetry.NewRegistry(recorder)
		tasks = append(tasks, task{"metrics", func(ctx context.Context) error {
			return telemetry.Serve(ctx, cfg.Metrics.Listen, reg, log.Named("metrics"))
		}})
	}
	if cfg.Control.Enabled && conn != nil {
		tasks = append(tasks, task{"control service", func(ctx context.Context) error {
			return control.Serve(ctx, conn, sw, recorder, log.Named("control"))
		}})
	}

	log.Info("started micboard")

	errChan := make(chan error, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for _, t := range tasks {
		t := t
		go func() {
			defer wg.Done()
			err := t.run(ctx)
			if err != nil {
				errChan <- fmt.Errorf("%s: %w", t.name, err)
			}
		}()
	}

	err = <-errChan
	stop()
	wg.Wait()

	switch {
	case errors.Is(err, context.Canceled):
		log.Info("shutting down")
		return nil
	case err != nil:
		return err
	}

	return nil
}

func loadConfig(path string, log *zap.SugaredLogger) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	cfg, found, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	if found == "" {
		log.Debug("no config file found, using defaults")
	} else {
		log.Debugw("loaded config", "path", found)
	}
	return cfg, nil
}

// openStore returns the configured backend and, for backends that write
// lazily, a task that flushes it periodically.
func openStore(cfg *config.Config, log *zap.SugaredLogger) (micboard.Store, func(context.Context) error, error) {
	if cfg.Store.Backend == "memory" {
		log.Warn("using in-memory store, device priorities will not survive a restart")
		return memory.NewStore(), nil, nil
	}

	path, err := cfg.StorePath()
	if err != nil {
		return nil, nil, err
	}
	log.Infow("opening store", "backend", cfg.Store.Backend, "path", path)

	switch cfg.Store.Backend {
	case "json":
		store, err := jsonstore.NewStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.SaveLooper, nil
	default:
		store, err := sqlite.NewStore(path, log)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

func newNotifier(cfg *config.Config, conn *dbus.Conn, log *zap.SugaredLogger) micboard.Notifier {
	switch cfg.Notify.Backend {
	case "none":
		return notify.NewLogNotifier(zap.NewNop().Sugar())
	case "dbus":
		if conn != nil {
			return notify.NewDBusNotifier(conn, cfg.Notify.Sound)
		}
	}
	return notify.NewLogNotifier(log.Named("notification"))
}

func systemdNotifyLoop(ctx context.Context) error {
	// tell systemd that we're ready
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		return fmt.Errorf("notify systemd: %w", err)
	}
	if !supported {
		return nil
	}

	_, _ = daemon.SdNotify(false, "STATUS=Keeping your favourite microphone in charge 🎙️")

	// notify watchdog
	t, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("check watchdog: %w", err)
	}
	// if watchdog is not enabled, we don't need to notify it
	if t == 0 {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-time.After(t / 2):
			_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			if err != nil {
				return fmt.Errorf("notify watchdog: %w", err)
			}
		}
	}
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	loggerConfig := zap.NewDevelopmentConfig()

	loggerConfig.OutputPaths = []string{"stdout"}
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		loggerConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		loggerConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger.Sugar(), nil
}
