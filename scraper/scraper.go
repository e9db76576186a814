package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/wimp/config"
	"github.com/use-agent/wimp/models"
)

// Session is one isolated rendering session: a dedicated browser process
// with a single tab. It serves exactly one Extract call per process and
// must be closed on every exit path.
type Session struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	scraperCfg config.ScraperConfig

	closeOnce sync.Once
	closeErr  error
}

// NewSession launches a headless browser and opens the session's only page.
// Launch and connect are retried with exponential backoff; a failure after
// the last attempt is reported as ErrCodeBrowserCrash, and a run canceled
// while starting as ErrCodeCanceled.
func NewSession(ctx context.Context, browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) (*Session, error) {
	var (
		l       *launcher.Launcher
		browser *rod.Browser
	)

	attempt := func() error {
		l = newLauncher(ctx, browserCfg)
		controlURL, err := l.Launch()
		if err != nil {
			// Cleanup would block on a browser that never started.
			l.Kill()
			return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
		}
		slog.Debug("browser launched", "controlURL", controlURL)

		browser = rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			l.Kill()
			l.Cleanup()
			return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
		}
		return nil
	}

	retries := browserCfg.LaunchRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	start := time.Now()
	err := backoff.RetryNotify(attempt, b, func(err error, next time.Duration) {
		slog.Warn("browser start failed, retrying", "error", err, "backoff", next)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.NewScrapeError(models.ErrCodeCanceled, "run canceled while starting browser", err)
		}
		return nil, err
	}
	slog.Debug("browser connected", "elapsed", time.Since(start).Round(time.Millisecond))

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		l.Cleanup()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	// Stealth only applies to navigations that happen after injection.
	if browserCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	return &Session{
		launcher:   l,
		browser:    browser,
		page:       page,
		scraperCfg: scraperCfg,
	}, nil
}

func newLauncher(ctx context.Context, cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("no-first-run"))
	if cfg.NoSandbox {
		l.Set(flags.Flag("disable-setuid-sandbox"))
	}
	return l
}

// Close closes the page, shuts the browser down and removes the launcher's
// user-data dir. Only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				slog.Debug("page close failed", "error", err)
			}
		}
		if s.closeErr = s.browser.Close(); s.closeErr != nil {
			s.launcher.Kill()
		}
		s.launcher.Cleanup()
		slog.Debug("rendering session released")
	})
	return s.closeErr
}
