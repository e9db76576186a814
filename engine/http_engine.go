package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/wimp/cleaner"
	"github.com/use-agent/wimp/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// defaultMaxBody caps the page size read from the upstream site.
const defaultMaxBody = 10 << 20

// HTTPEngine fetches the target page without a browser and decides data
// presence on the server-rendered markup. It is the fastest option and
// needs no Chromium, but only sees what the server renders.
type HTTPEngine struct {
	client  *http.Client
	timeout time.Duration
	maxBody int64
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
// timeout bounds each Extract call; proxy, if set, must be an http(s) URL.
func NewHTTPEngine(timeout time.Duration, proxy string) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &HTTPEngine{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		timeout: timeout,
		maxBody: defaultMaxBody,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Extract(ctx context.Context, target *models.Target) (models.Result, error) {
	rowSel, err := cleaner.CompileSelector(target.RowSelector)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "row selector", err)
	}
	noDataSel, err := cleaner.CompileSelector(target.NoDataSelector)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "no-data selector", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	body, err := e.fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "failed to parse page HTML", err)
	}

	rows, found := cleaner.RowsFromDocument(doc, rowSel, noDataSel)
	if !found {
		// A static document will not render anything later.
		return nil, models.NewScrapeError(
			models.ErrCodeSelectorTimeout,
			"neither data rows nor no-data marker present in page",
			nil,
		)
	}
	return rows, nil
}

func (e *HTTPEngine) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "failed to build request", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		code := models.ErrCodeNavigation
		if errors.Is(err, context.Canceled) {
			code = models.ErrCodeCanceled
		}
		return nil, models.NewScrapeError(code, "request to target URL failed", err)
	}
	defer resp.Body.Close()

	// One byte past the cap tells a full page from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody+1))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "failed to read response body", err)
	}

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 400 || !isHTMLContentType(ct) {
		return nil, models.NewScrapeError(
			models.ErrCodeNavigation,
			fmt.Sprintf("non-html or error status %d (content-type: %s)", resp.StatusCode, ct),
			nil,
		)
	}
	if int64(len(body)) > e.maxBody {
		return nil, models.NewScrapeError(
			models.ErrCodeExtraction,
			fmt.Sprintf("page exceeds %s limit", humanize.IBytes(uint64(e.maxBody))),
			nil,
		)
	}

	slog.Debug("page fetched",
		"engine", e.Name(),
		"url", target,
		"status", resp.StatusCode,
		"size", humanize.Bytes(uint64(len(body))),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return body, nil
}

func (e *HTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
