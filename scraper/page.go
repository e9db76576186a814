package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/wimp/cleaner"
	"github.com/use-agent/wimp/models"
	"github.com/ysmood/gson"
)

// Extract runs the presence-detection flow against target.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Hijack mount     – block images/fonts/media and trackers (before navigation!)
//  2. Extra headers    – Accept-Language + Referer
//  3. Navigate + load  – bounded by NavigationTimeout
//  4. Absence probe    – short AbsenceProbe; found means "no data"
//  5. Presence wait    – longer PresenceWait; timeout means ErrCodeSelectorTimeout
//  6. Extract          – innerText of every match, in document order
//
// The absence probe is not a parallel race: it only asks whether the marker
// is already in the DOM once the load event fired, so valid identifiers pay
// AbsenceProbe and not PresenceWait for the check.
func (s *Session) Extract(ctx context.Context, target *models.Target) (models.Result, error) {
	cfg := s.scraperCfg

	// ── 1. Mount hijack router ────────────────────────────────────────
	router := setupHijack(s.page, cfg.BlockedResourceTypes, cfg.BlockTrackers)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := s.page.Context(ctx)

	// ── 2. Extra headers ──────────────────────────────────────────────
	headers := map[string]string{"Accept-Language": "en-US,en;q=0.9"}
	if u, err := url.Parse(target.URL); err == nil {
		headers["Referer"] = u.Scheme + "://" + u.Host + "/"
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(p)

	// ── 3. Navigate and wait for the load event ───────────────────────
	start := time.Now()
	nav := p.Timeout(cfg.NavigationTimeout)
	if err := nav.Navigate(target.URL); err != nil {
		nav.CancelTimeout()
		return nil, categorizeError(ctx, err, models.ErrCodeNavigation, "navigation to target URL failed")
	}
	if err := nav.WaitLoad(); err != nil {
		nav.CancelTimeout()
		return nil, categorizeError(ctx, err, models.ErrCodeNavigation, "target page did not finish loading")
	}
	nav.CancelTimeout()
	slog.Debug("page loaded", "url", target.URL, "elapsed", time.Since(start).Round(time.Millisecond))

	// ── 4. Absence probe ──────────────────────────────────────────────
	probe := p.Timeout(cfg.AbsenceProbe)
	_, err := probe.Element(target.NoDataSelector)
	probe.CancelTimeout()
	if err == nil {
		slog.Info("no-data marker found", "url", target.URL)
		return models.Empty(), nil
	}
	if !isWaitTimeout(ctx, err) {
		return nil, categorizeError(ctx, err, models.ErrCodeExtraction, "absence probe failed")
	}

	// ── 5. Presence wait ──────────────────────────────────────────────
	wait := p.Timeout(cfg.PresenceWait)
	_, err = wait.Element(target.RowSelector)
	wait.CancelTimeout()
	if err != nil {
		if isWaitTimeout(ctx, err) {
			return nil, models.NewScrapeError(
				models.ErrCodeSelectorTimeout,
				fmt.Sprintf("neither data rows nor no-data marker appeared within %s", cfg.AbsenceProbe+cfg.PresenceWait),
				err,
			)
		}
		return nil, categorizeError(ctx, err, models.ErrCodeExtraction, "presence wait failed")
	}

	// ── 6. Extract rows ───────────────────────────────────────────────
	ext := p.Timeout(cfg.ExtractTimeout)
	defer ext.CancelTimeout()

	rows, err := extractRows(ext, target.RowSelector)
	if err != nil {
		return nil, categorizeError(ctx, err, models.ErrCodeExtraction, "failed to read matched cells")
	}
	slog.Info("rows extracted",
		"url", target.URL,
		"rows", len(rows),
		"text", humanize.Bytes(uint64(textSize(rows))),
	)
	return rows, nil
}

func textSize(rows models.Result) int {
	n := 0
	for _, r := range rows {
		for _, l := range r {
			n += len(l)
		}
	}
	return n
}

// extractRows reads the visible text of every element matching selector.
// Elements come back in document order; no sorting is applied.
func extractRows(p *rod.Page, selector string) (models.Result, error) {
	els, err := p.Elements(selector)
	if err != nil {
		return nil, err
	}

	rows := make(models.Result, 0, len(els))
	for i, el := range els {
		text, err := el.Text()
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		rows = append(rows, cleaner.SplitLines(text))
	}
	return rows, nil
}

// isWaitTimeout reports whether err is the wait's own deadline rather than
// cancellation of the whole run.
func isWaitTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScrapeErrors so main can map
// them to exit codes. fallback is used for anything that is not a
// cancellation of the whole run.
func categorizeError(ctx context.Context, err error, fallback, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	if ctx.Err() != nil {
		return models.NewScrapeError(models.ErrCodeCanceled, "run canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(fallback, msg+": timed out", err)
	}
	return models.NewScrapeError(fallback, msg, err)
}
