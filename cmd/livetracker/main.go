package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/letulabs/livetracker/browser"
	"github.com/letulabs/livetracker/config"
	"github.com/letulabs/livetracker/extractor"
	"github.com/letulabs/livetracker/server"
	"github.com/letulabs/livetracker/sheets"
	"github.com/letulabs/livetracker/tracker"
)

func main() {
	defaultCfg := config.DefaultConfig()
	addrDefault := defaultCfg.ListenAddr
	if value, ok := config.EnvString("TRACKER_ADDR"); ok {
		addrDefault = value
	}
	dashboardDefault := defaultCfg.DashboardBaseURL
	if value, ok := config.EnvString("TRACKER_DASHBOARD_URL"); ok {
		dashboardDefault = value
	}
	sessionsDefault := defaultCfg.MaxSessions
	if value, ok, err := config.EnvInt("TRACKER_MAX_SESSIONS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid TRACKER_MAX_SESSIONS: %v\n", err)
		os.Exit(1)
	} else if ok {
		sessionsDefault = value
	}
	credentialsDefault := defaultCfg.CredentialsFile
	if value, ok := config.EnvString("TRACKER_CREDENTIALS_FILE"); ok {
		credentialsDefault = value
	}
	tokenDefault := defaultCfg.TokenFile
	if value, ok := config.EnvString("TRACKER_TOKEN_FILE"); ok {
		tokenDefault = value
	}

	addr := flag.String("addr", addrDefault, "HTTP listen address")
	dashboardURL := flag.String("dashboard-url", dashboardDefault, "Dashboard base URL")
	intervalSec := flag.Int("interval", int(defaultCfg.ScrapeInterval.Seconds()), "Seconds between sync cycles")
	cooldownSec := flag.Int("cooldown", int(defaultCfg.ErrorCooldown.Seconds()), "Seconds to wait after a failed cycle")
	settleSec := flag.Int("settle", int(defaultCfg.SettleDelay.Seconds()), "Seconds to let the page settle after navigation")
	browserTimeoutSec := flag.Int("browser-timeout", int(defaultCfg.BrowserTimeout.Seconds()), "Per-operation browser timeout (seconds)")
	maxSessions := flag.Int("max-sessions", sessionsDefault, "Maximum concurrently tracked sessions")
	credentialsFile := flag.String("credentials", credentialsDefault, "Google OAuth client secret file")
	tokenFile := flag.String("token", tokenDefault, "Google OAuth token cache file")
	origins := flag.String("origins", strings.Join(defaultCfg.AllowedOrigins, ","), "Comma-separated allowed CORS origins")
	headed := flag.Bool("headed", false, "Run the browser with a visible window")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.ListenAddr = *addr
	cfg.DashboardBaseURL = *dashboardURL
	cfg.ScrapeInterval = time.Duration(*intervalSec) * time.Second
	cfg.ErrorCooldown = time.Duration(*cooldownSec) * time.Second
	cfg.SettleDelay = time.Duration(*settleSec) * time.Second
	cfg.BrowserTimeout = time.Duration(*browserTimeoutSec) * time.Second
	cfg.MaxSessions = *maxSessions
	cfg.CredentialsFile = *credentialsFile
	cfg.TokenFile = *tokenFile
	cfg.AllowedOrigins = splitOrigins(*origins)
	cfg.Headless = !*headed
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := tracker.NewMetrics()
	ctrl, err := tracker.New(tracker.Options{
		Interval:          cfg.ScrapeInterval,
		ErrorCooldown:     cfg.ErrorCooldown,
		MaxSessions:       cfg.MaxSessions,
		SnapshotCacheSize: cfg.SnapshotCacheSize,
		NewSession:        newSessionFactory(cfg),
		NewPreview:        newPreviewFactory(cfg),
		Metrics:           metrics,
	})
	if err != nil {
		slog.Error("initialising controller", slog.Any("error", err))
		os.Exit(1)
	}

	srv := server.New(ctrl, metrics.Registry, cfg.AllowedOrigins)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("dashboard", cfg.DashboardBaseURL),
			slog.Duration("interval", cfg.ScrapeInterval),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping sessions")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.Any("error", err))
	}

	ctrl.StopAll()
	slog.Info("shutdown complete")
}

// newSessionFactory builds the per-session resources. The spreadsheet
// client is constructed first so a configuration error never leaves an
// orphaned browser process behind.
func newSessionFactory(cfg *config.Config) tracker.SessionFactory {
	return func(sessionID, sheetURL string) (tracker.Extractor, tracker.Syncer, io.Closer, error) {
		svc, err := sheets.NewService(context.Background(), cfg.CredentialsFile, cfg.TokenFile)
		if err != nil {
			return nil, nil, nil, err
		}
		syncer, err := sheets.NewSyncer(svc, sheetURL)
		if err != nil {
			return nil, nil, nil, err
		}

		page, err := browser.NewChromePage(browser.Options{
			Headless:  cfg.Headless,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.BrowserTimeout,
		})
		if err != nil {
			return nil, nil, nil, err
		}

		ext := extractor.New(page, cfg.TargetURL(sessionID), cfg.SettleDelay)
		return ext, syncer, page, nil
	}
}

func newPreviewFactory(cfg *config.Config) tracker.PreviewFactory {
	return func(sessionID string) (tracker.Extractor, io.Closer, error) {
		page, err := browser.NewChromePage(browser.Options{
			Headless:  cfg.Headless,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.BrowserTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		ext := extractor.New(page, cfg.TargetURL(sessionID), cfg.SettleDelay)
		return ext, page, nil
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
