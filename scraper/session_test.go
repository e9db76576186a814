package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/wimp/config"
	"github.com/use-agent/wimp/models"
)

const (
	rowSelector    = `[class^="ListItem__TimeAndDelay"]`
	noDataSelector = `[class^="NoDataMessage"]`
)

var pages = map[string]string{
	"/no-data": `<html><body>
		<div class="NoDataMessage__Box-x1">No data available for this flight.</div>
	</body></html>`,

	// Rows arrive after the load event, like a client-rendered history table.
	"/late-rows": `<html><body><main id="list"></main><script>
		setTimeout(function () {
			document.getElementById("list").innerHTML =
				'<div class="ListItem__TimeAndDelay-a">Landed<br>BGY<br>19:42</div>' +
				'<div class="ListItem__TimeAndDelay-a">Departed<br>BGY<br>20:10</div>' +
				'<div class="ListItem__TimeAndDelay-a">Estimated<br>KTW<br>22:05</div>';
		}, 300);
	</script></body></html>`,

	"/neither": `<html><body><div class="SomethingNew">BGY 19:42</div></body></html>`,

	"/double-break": `<html><body>
		<div class="ListItem__TimeAndDelay-a">KTW<br>Scheduled<br><br>19:42</div>
	</body></html>`,
}

func testScraperConfig() config.ScraperConfig {
	return config.ScraperConfig{
		Engine:               "rod",
		NavigationTimeout:    10 * time.Second,
		AbsenceProbe:         250 * time.Millisecond,
		PresenceWait:         1500 * time.Millisecond,
		ExtractTimeout:       5 * time.Second,
		BlockedResourceTypes: []string{"Image", "Font", "Media"},
	}
}

// newTestSession starts a real headless browser, skipping the test when none
// is installed.
func newTestSession(t *testing.T, cfg config.ScraperConfig) *Session {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chromium binary found")
	}

	s, err := NewSession(context.Background(), config.BrowserConfig{
		Headless:   true,
		NoSandbox:  true,
		BrowserBin: bin,
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pageTarget(srv *httptest.Server, path string) *models.Target {
	return &models.Target{
		URL:            srv.URL + path,
		RowSelector:    rowSelector,
		NoDataSelector: noDataSelector,
	}
}

func TestNewSession_CanceledWhileStarting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := NewSession(ctx, config.BrowserConfig{
		Headless:   true,
		NoSandbox:  true,
		BrowserBin: "/nonexistent/chrome",
	}, testScraperConfig())

	require.Error(t, err)
	assert.Nil(t, s)
	assert.Equal(t, models.ErrCodeCanceled, models.CodeOf(err))
}

func TestNewSession_MissingBinary(t *testing.T) {
	s, err := NewSession(context.Background(), config.BrowserConfig{
		Headless:   true,
		NoSandbox:  true,
		BrowserBin: "/nonexistent/chrome",
	}, testScraperConfig())

	require.Error(t, err)
	assert.Nil(t, s)
	assert.Equal(t, models.ErrCodeBrowserCrash, models.CodeOf(err))
}

func TestSessionExtract_NoData(t *testing.T) {
	srv := newPageServer(t)
	s := newTestSession(t, testScraperConfig())

	rows, err := s.Extract(context.Background(), pageTarget(srv, "/no-data"))
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "second close is a no-op")
}

func TestSessionExtract_LateRows(t *testing.T) {
	srv := newPageServer(t)
	s := newTestSession(t, testScraperConfig())

	rows, err := s.Extract(context.Background(), pageTarget(srv, "/late-rows"))
	require.NoError(t, err)

	assert.Equal(t, models.Result{
		{"Landed", "BGY", "19:42"},
		{"Departed", "BGY", "20:10"},
		{"Estimated", "KTW", "22:05"},
	}, rows)
}

func TestSessionExtract_NeitherMarker(t *testing.T) {
	srv := newPageServer(t)
	cfg := testScraperConfig()
	s := newTestSession(t, cfg)

	start := time.Now()
	_, err := s.Extract(context.Background(), pageTarget(srv, "/neither"))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeSelectorTimeout, models.CodeOf(err))
	assert.GreaterOrEqual(t, elapsed, cfg.PresenceWait)
	assert.Less(t, elapsed, cfg.NavigationTimeout+cfg.AbsenceProbe+cfg.PresenceWait)
}

func TestSessionExtract_BlankLinesKeepPosition(t *testing.T) {
	srv := newPageServer(t)
	s := newTestSession(t, testScraperConfig())

	rows, err := s.Extract(context.Background(), pageTarget(srv, "/double-break"))
	require.NoError(t, err)
	assert.Equal(t, models.Result{{"KTW", "Scheduled", "", "19:42"}}, rows)
}

func TestSessionExtract_CanceledRun(t *testing.T) {
	srv := newPageServer(t)
	s := newTestSession(t, testScraperConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Extract(ctx, pageTarget(srv, "/late-rows"))
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeCanceled, models.CodeOf(err))
}
