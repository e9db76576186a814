package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/use-agent/wimp/config"
	"github.com/use-agent/wimp/engine"
	"github.com/use-agent/wimp/models"
	"github.com/use-agent/wimp/pipeline"
	"github.com/use-agent/wimp/scraper"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one query and returns the exit code. Everything it opens is
// released by its own defers before main calls os.Exit.
func run(args []string) int {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fail(models.NewScrapeError(models.ErrCodeInvalidConfig, "failed to load configuration", err))
	}

	// ── 2. Flags override env ───────────────────────────────────────
	fs := pflag.NewFlagSet("wimp", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: wimp [flags] flight=<designator> | aircraft=<registration>")
		fs.PrintDefaults()
	}
	siteFile := fs.String("site", "", "YAML site profile overriding base URL, paths and selectors")
	fs.StringVarP(&cfg.Scraper.Engine, "engine", "e", cfg.Scraper.Engine, "extraction engine: rod or http")
	fs.DurationVar(&cfg.Scraper.AbsenceProbe, "absence-probe", cfg.Scraper.AbsenceProbe, "how long to look for the no-data marker")
	fs.DurationVar(&cfg.Scraper.PresenceWait, "presence-wait", cfg.Scraper.PresenceWait, "how long to wait for the first data row")
	fs.DurationVar(&cfg.Scraper.NavigationTimeout, "nav-timeout", cfg.Scraper.NavigationTimeout, "navigation and page load budget")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.BoolVar(&cfg.Browser.Stealth, "stealth", cfg.Browser.Stealth, "inject the stealth script before navigation")
	fs.Lookup("stealth").NoOptDefVal = "true"

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return fail(models.NewScrapeError(models.ErrCodeInvalidInput, "invalid flags", err))
	}
	if *siteFile != "" {
		if err := cfg.LoadSiteFile(*siteFile); err != nil {
			return fail(models.NewScrapeError(models.ErrCodeInvalidConfig, "failed to load site profile", err))
		}
	}
	if err := cfg.Validate(); err != nil {
		return fail(models.NewScrapeError(models.ErrCodeInvalidConfig, err.Error(), nil))
	}

	// ── 3. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)

	if fs.NArg() != 1 {
		fs.Usage()
		return fail(models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("expected exactly one key=value argument, got %d", fs.NArg()),
			nil,
		))
	}

	// ── 4. Cancellation on SIGINT/SIGTERM ───────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 5. Run the pipeline ─────────────────────────────────────────
	p := pipeline.New(cfg.Site, newOpener(cfg))
	result, err := p.Run(ctx, fs.Arg(0))
	if err != nil {
		slog.Error("extraction failed", "code", models.CodeOf(err), "error", err)
		return fail(err)
	}

	// ── 6. Emit ─────────────────────────────────────────────────────
	if err := pipeline.WriteResult(os.Stdout, result); err != nil {
		slog.Error("failed to write result", "error", err)
		return 1
	}
	return 0
}

// newOpener selects the engine named in the config. The browser is only
// launched when the pipeline asks for it.
func newOpener(cfg *config.Config) engine.Opener {
	return func(ctx context.Context) (engine.Engine, error) {
		if cfg.Scraper.Engine == "http" {
			return engine.NewHTTPEngine(cfg.Scraper.NavigationTimeout, cfg.Browser.Proxy), nil
		}
		session, err := scraper.NewSession(ctx, cfg.Browser, cfg.Scraper)
		if err != nil {
			return nil, err
		}
		return engine.NewRodEngine(session, cfg.Browser.Stealth), nil
	}
}

// fail writes the error payload to stderr and returns the matching exit code.
func fail(err error) int {
	_ = pipeline.WriteError(os.Stderr, err)
	return pipeline.ExitCode(err)
}

// initLogger configures slog based on the LogConfig. Logs go to stderr;
// stdout is reserved for the result.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler).With("run", uuid.NewString()))
}
