package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/jmoiron/questcompanion/internal/app"
	"github.com/jmoiron/questcompanion/internal/companion"
	"github.com/jmoiron/questcompanion/internal/config"
	"github.com/jmoiron/questcompanion/internal/logging"
	"github.com/jmoiron/questcompanion/internal/progress"
	"github.com/jmoiron/questcompanion/internal/settings"
)

// version is set at build time via -ldflags; defaults to dev.
var version = "dev"

func main() {
	var (
		listen       string
		configPath   string
		settingsDir  string
		progressPath string
		poll         time.Duration
		noNotify     bool
		writeConfig  bool
		showVersion  bool
		verbose      int
		quit         bool
	)

	flag.StringVar(&listen, "addr", "", "listen address for the web UI (host:port)")
	flag.StringVar(&configPath, "config", filepath.Join(config.Home(), "config.yaml"), "path to the YAML config file")
	flag.StringVar(&settingsDir, "settings-dir", "", "directory holding user_settings.json")
	flag.StringVar(&progressPath, "progress", "", "progress file to watch; replaces the stored path")
	flag.DurationVar(&poll, "poll", 0, "fallback progress re-read interval")
	flag.BoolVar(&noNotify, "no-notify", false, "disable filesystem change notification; poll only")
	flag.BoolVar(&writeConfig, "write-config", false, "write the effective config to --config and exit")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.CountVarP(&verbose, "verbose", "v", "increase verbosity; repeat for more detail")
	flag.BoolVarP(&quit, "quit", "q", false, "initialize (load catalog, settings and progress), then exit without serving")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: questcompanion [options] [quest-data-dir]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("config", err)
	}
	if listen != "" {
		cfg.Addr = listen
	}
	if settingsDir != "" {
		cfg.SettingsDir = settingsDir
	}
	if poll > 0 {
		cfg.Progress.PollInterval = poll
	}
	if noNotify {
		cfg.Progress.Notify = false
	}
	if flag.NArg() == 1 {
		cfg.DataDir = flag.Arg(0)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "quest_data"
	}
	if err := cfg.Validate(); err != nil {
		fatal("config", err)
	}

	if err := logging.Setup(os.Stderr, cfg.Log.Format, cfg.Log.Level, verbose); err != nil {
		fatal("logging", err)
	}

	if writeConfig {
		if err := config.Save(configPath, cfg); err != nil {
			fatal("writing config", err)
		}
		slog.Info("wrote config", "path", configPath)
		return
	}

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		fatal("resolve data dir", err)
	}
	slog.Debug("starting", "version", version, "data", dataDir, "settings", cfg.SettingsDir, "verbosity", verbose)

	c, err := companion.Open(companion.Options{
		DataDir: dataDir,
		Store:   settings.NewStore(cfg.SettingsDir),
		Watcher: progress.Options{
			PollInterval:  cfg.Progress.PollInterval,
			DisableNotify: !cfg.Progress.Notify,
		},
		DefaultProgressPath: cfg.Progress.DefaultPath,
	})
	if err != nil {
		fatal("init", err)
	}
	defer c.Close()

	if progressPath != "" {
		if got, err := c.SetProgressPath(progressPath); err != nil {
			slog.Error("saving progress path", "error", err)
		} else if got == "" {
			slog.Warn("progress file rejected", "path", progressPath, "status", c.Status().Message)
		}
	}

	a, err := app.New(c, version, verbose)
	if err != nil {
		fatal("init", err)
	}
	defer a.Close()

	view := c.View()
	slog.Info("catalog summary", "groups", len(view.Groups), "quests", view.Total, "completed", view.Completed)
	if quit {
		slog.Info("initialized successfully; quitting (--quit)", "progress", c.ActivePath())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("listening", "url", "http://"+cfg.Addr, "version", version)
	if err := serve(ctx, cfg.Addr, a.Router(), a.Close); err != nil {
		slog.Error("server", "error", err)
	}
}

func fatal(what string, err error) {
	slog.Error(what, "error", err)
	os.Exit(1)
}

// serve runs an http server on addr until ctx is cancelled. onShutdown
// must end long-lived responses such as event streams.
func serve(ctx context.Context, addr string, h http.Handler, onShutdown func()) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	srv.RegisterOnShutdown(onShutdown)
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
