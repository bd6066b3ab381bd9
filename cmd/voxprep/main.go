// Command voxprep is the terminal client for spoken mock interviews.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxprep/voxprep/internal/app"
	"github.com/voxprep/voxprep/internal/config"
	"github.com/voxprep/voxprep/internal/observe"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voxprep.yaml", "path to the YAML configuration file; empty means environment only")
	selection := flag.String("selection", "general", "interview template or target role")
	notes := flag.String("notes", "", "free-form context handed to the interviewer (experience, focus areas)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	var (
		cfg *config.Config
		err error
	)
	if *configPath == "" {
		cfg, err = config.FromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxprep: config file %q not found — create one or run with -config '' and VOXPREP_* environment variables\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxprep: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voxprep starting",
		"version", version,
		"endpoint", cfg.Server.Endpoint,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry providers ───────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise client", "err", err)
		return 1
	}
	app.NewConsole(application.Engine(), os.Stdout)

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *configPath != "" {
		watcher, werr := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				level.Set(d.NewLogLevel.Slog())
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.AckTimeoutChanged {
				application.Engine().SetAckTimeout(d.NewAckTimeout)
				slog.Info("ack timeout changed", "timeout", d.NewAckTimeout)
			}
			if d.RestartRequired {
				slog.Warn("config change requires a restart to take effect")
			}
		})
		if werr != nil {
			slog.Warn("config watcher unavailable", "err", werr)
		} else {
			defer watcher.Stop()
		}
	}

	printStartupSummary(cfg, *selection)

	// ── Start the interview ───────────────────────────────────────────────────
	if err := application.Engine().StartInterview(*selection, *notes); err != nil {
		slog.Error("failed to start interview", "err", err)
		return 1
	}

	slog.Info("client ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, selection string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         VoxPrep — interview client    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Endpoint", cfg.Server.Endpoint)
	printRow("Candidate", cfg.User.ID)
	printRow("Selection", selection)
	printRow("Ack timeout", cfg.Session.AckTimeout.String())
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 21 {
		value = value[:18] + "…"
	}
	fmt.Printf("║  %-12s : %-21s ║\n", label, value)
}
