package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/fieldtrack/fieldtrack/agent/internal/agent"
	"github.com/fieldtrack/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/fieldtrack/agent/internal/logsink"
)

var version = "dev"

func main() {
	var f flags
	app := newApp(&f)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := f.loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fieldtrack-agent:", err)
		os.Exit(1)
	}

	level := new(slog.LevelVar)
	lvl, _ := logsink.ParseLevel(cfg.Log.Level) // validated by config
	level.Set(lvl)
	logger, closer, err := logsink.New(logsink.Options{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Tag:    "fieldtrack-agent",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fieldtrack-agent:", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	code := run(cfg, &f, level, logger)
	closer.Close()
	os.Exit(code)
}

func run(cfg *config.Config, f *flags, level *slog.LevelVar, logger *slog.Logger) int {
	log := logsink.For(logger, "main")
	log.Info("fieldtrack-agent starting",
		"version", version,
		"config", f.configPath,
		"client", cfg.ClientName,
		"upload_interval", cfg.Shipper.Interval,
		"replay_interval", cfg.Sweeper.Interval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := agent.EnsureIdentity(ctx, cfg, logger); err != nil {
		return 1
	}

	a, err := agent.New(cfg, logger)
	if err != nil {
		logsink.Critical(log, "failed to build pipeline", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logsink.Exception(log, "failed to close pipeline", "err", err)
		}
	}()

	// Hot reload covers the log level only; everything else needs a restart.
	// Reloads go through the same flag overrides as startup, so a flag the
	// user passed keeps winning over the file.
	if f.configPath != "" {
		go func() {
			err := config.Watch(ctx, log, f.configPath, cfg, func(c config.Change) {
				if c.Has("log") {
					if lvl, err := logsink.ParseLevel(c.Config.Log.Level); err == nil && lvl != level.Level() {
						level.Set(lvl)
						log.Info("log level changed", "level", logsink.LevelName(lvl))
					}
				}
				if rest := slices.DeleteFunc(slices.Clone(c.Sections), func(s string) bool { return s == "log" }); len(rest) > 0 {
					log.Warn("config changes take effect after a restart", "sections", rest)
				}
			}, config.WithLoader(f.loadConfig))
			if err != nil {
				logsink.Exception(log, "config watcher stopped", "err", err)
			}
		}()
	}

	if err := a.Run(ctx); err != nil {
		logsink.Exception(log, "pipeline stopped with error", "err", err)
		return 1
	}
	log.Info("fieldtrack-agent shut down")
	return 0
}
