// Package pipeline ties query parsing, target resolution and one engine
// run together, and owns the output format of a run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/wimp/cleaner"
	"github.com/use-agent/wimp/config"
	"github.com/use-agent/wimp/engine"
	"github.com/use-agent/wimp/models"
)

// Pipeline runs one query against the tracking site.
type Pipeline struct {
	site config.SiteConfig
	open engine.Opener
}

// New creates a Pipeline. open is only called for valid queries.
func New(site config.SiteConfig, open engine.Opener) *Pipeline {
	return &Pipeline{site: site, open: open}
}

// Resolve builds the target page for q from the site profile. Selectors are
// compiled here so a broken profile fails before anything is launched.
func (p *Pipeline) Resolve(q models.Query) (*models.Target, error) {
	profile, ok := p.site.Kinds[string(q.Kind)]
	if !ok || profile.Path == "" {
		return nil, models.NewScrapeError(
			models.ErrCodeUnrecognizedKind,
			fmt.Sprintf("no site profile for query kind %q", q.Kind),
			nil,
		)
	}
	if _, err := cleaner.CompileSelector(profile.RowSelector); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "row selector for "+string(q.Kind), err)
	}
	if _, err := cleaner.CompileSelector(p.site.NoDataSelector); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "no-data selector", err)
	}

	base, err := url.Parse(p.site.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "invalid base URL "+p.site.BaseURL, err)
	}

	return &models.Target{
		URL: strings.TrimRight(p.site.BaseURL, "/") + "/" +
			strings.Trim(profile.Path, "/") + "/" +
			url.PathEscape(strings.ToLower(q.Identifier)),
		RowSelector:    profile.RowSelector,
		NoDataSelector: p.site.NoDataSelector,
	}, nil
}

// Run parses arg, resolves its target and extracts rows with a freshly
// opened engine. The engine is closed before Run returns on every path,
// including the no-data and error paths.
func (p *Pipeline) Run(ctx context.Context, arg string) (models.Result, error) {
	q, err := models.ParseQuery(arg)
	if err != nil {
		return nil, err
	}
	target, err := p.Resolve(q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	eng, err := p.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			slog.Warn("engine close failed", "engine", eng.Name(), "error", cerr)
		}
	}()

	slog.Info("extracting", "engine", eng.Name(), "query", q.String(), "url", target.URL)

	result, err := eng.Extract(ctx, target)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = models.Empty()
	}

	slog.Info("extraction finished",
		"rows", len(result),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// WriteResult encodes result as one JSON array followed by a newline and
// writes it with a single Write call. A nil result is written as [].
func WriteResult(w io.Writer, result models.Result) error {
	if result == nil {
		result = models.Empty()
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("pipeline: encode result: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// WriteError writes the error payload for err. It never writes a result.
func WriteError(w io.Writer, err error) error {
	data, mErr := json.Marshal(models.ErrorResponse{Error: models.DetailOf(err)})
	if mErr != nil {
		return fmt.Errorf("pipeline: encode error: %w", mErr)
	}
	_, wErr := w.Write(append(data, '\n'))
	return wErr
}

// ExitCode maps an error from Run to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch models.CodeOf(err) {
	case models.ErrCodeInvalidInput, models.ErrCodeUnrecognizedKind, models.ErrCodeInvalidConfig:
		return 2
	case models.ErrCodeNavigation:
		return 3
	case models.ErrCodeSelectorTimeout:
		return 4
	case models.ErrCodeCanceled:
		return 130
	default:
		return 1
	}
}
