package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"readbot/internal/bot"
	"readbot/internal/config"
	"readbot/internal/storage"
	"readbot/internal/transport/telegram"
	logx "readbot/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	// Config reloads only re-apply the logging section; schedule and
	// transport settings need a restart.
	mgr.SetOnReload(func(c *config.Config) {
		logSvc.Apply(logx.Config{
			Level:   c.Logging.Level,
			Console: c.Logging.Console,
			File: logx.FileConfig{
				Enabled: c.Logging.File.Enabled,
				Path:    c.Logging.File.Path,
			},
		})
	})

	busy, err := config.ParseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Path:              cfg.Storage.Path,
		BusyTimeout:       busy,
		DefaultBallotTime: cfg.Challenge.BallotTimeOrDefault(),
		DefaultTimezone:   cfg.Challenge.TimezoneOrDefault(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	defer store.Close()

	pollTimeout, err := config.ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    pollTimeout,
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}

	app, err := bot.New(*cfg, store, adapter, log.With(logx.String("comp", "bot")))
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	// Best-effort; no-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	app.Stop(stopCtx)
	return nil
}
