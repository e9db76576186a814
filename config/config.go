package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Browser BrowserConfig
	Scraper ScraperConfig
	Site    SiteConfig
	Log     LogConfig
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox. Containers rarely provide the
	// setuid sandbox, so this defaults to on.
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy routes browser and HTTP engine traffic.
	Proxy string

	// Stealth injects the stealth script before navigation.
	Stealth bool // default: false

	// LaunchRetries is how many times a failed launch/connect is retried.
	LaunchRetries int // default: 2
}

// ScraperConfig controls navigation and presence detection.
//
// AbsenceProbe is deliberately much shorter than PresenceWait: the upstream
// page renders its "no data" marker together with the initial document,
// while data cells arrive later from client-side rendering. The probe
// therefore asks "is the marker already there", not "wait for it".
type ScraperConfig struct {
	// Engine is "rod" (headless Chromium) or "http" (static fetch).
	Engine string // default: "rod"

	// NavigationTimeout bounds navigation plus the load event.
	NavigationTimeout time.Duration // default: 30s

	// AbsenceProbe is the budget for finding the no-data marker.
	AbsenceProbe time.Duration // default: 50ms

	// PresenceWait is the budget for the first data cell to appear.
	PresenceWait time.Duration // default: 1s

	// ExtractTimeout bounds reading the text of all matched cells.
	ExtractTimeout time.Duration // default: 10s

	// BlockedResourceTypes lists resource types to block in the browser.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockTrackers blocks requests to known analytics/ad hosts.
	BlockTrackers bool // default: true
}

// SiteConfig describes the upstream tracking site's page layout.
type SiteConfig struct {
	BaseURL        string                 `yaml:"base_url"`
	NoDataSelector string                 `yaml:"no_data_selector"`
	Kinds          map[string]KindProfile `yaml:"kinds"`
}

// KindProfile is the path segment and row selector for one query kind.
type KindProfile struct {
	Path        string `yaml:"path"`
	RowSelector string `yaml:"row_selector"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

const (
	DefaultBaseURL        = "https://www.flightradar24.com/data/"
	DefaultRowSelector    = `[class^="ListItem__TimeAndDelay"]`
	DefaultNoDataSelector = `[class^="NoDataMessage"]`
)

// DefaultSite returns the built-in layout of the tracking site. Both kinds
// share one row selector because flight and aircraft pages use the same
// history table.
func DefaultSite() SiteConfig {
	return SiteConfig{
		BaseURL:        DefaultBaseURL,
		NoDataSelector: DefaultNoDataSelector,
		Kinds: map[string]KindProfile{
			"flight":   {Path: "flights", RowSelector: DefaultRowSelector},
			"aircraft": {Path: "aircraft", RowSelector: DefaultRowSelector},
		},
	}
}

// Load reads configuration from a .env file (if present), environment
// variables and an optional YAML site profile named by WIMP_SITE_FILE.
func Load() (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	cfg := &Config{
		Browser: BrowserConfig{
			Headless:      envBoolOr("WIMP_HEADLESS", true),
			NoSandbox:     envBoolOr("WIMP_NO_SANDBOX", true),
			BrowserBin:    os.Getenv("WIMP_BROWSER_BIN"),
			Proxy:         os.Getenv("WIMP_PROXY"),
			Stealth:       envBoolOr("WIMP_STEALTH", false),
			LaunchRetries: envIntOr("WIMP_LAUNCH_RETRIES", 2),
		},
		Scraper: ScraperConfig{
			Engine:            envOr("WIMP_ENGINE", "rod"),
			NavigationTimeout: envDurationOr("WIMP_NAV_TIMEOUT", 30*time.Second),
			AbsenceProbe:      envDurationOr("WIMP_ABSENCE_PROBE", 50*time.Millisecond),
			PresenceWait:      envDurationOr("WIMP_PRESENCE_WAIT", time.Second),
			ExtractTimeout:    envDurationOr("WIMP_EXTRACT_TIMEOUT", 10*time.Second),
			BlockedResourceTypes: envSliceOr("WIMP_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockTrackers: envBoolOr("WIMP_BLOCK_TRACKERS", true),
		},
		Site: DefaultSite(),
		Log: LogConfig{
			Level:  envOr("WIMP_LOG_LEVEL", "info"),
			Format: envOr("WIMP_LOG_FORMAT", "text"),
		},
	}

	if path := os.Getenv("WIMP_SITE_FILE"); path != "" {
		if err := cfg.LoadSiteFile(path); err != nil {
			return nil, err
		}
	}
	if base := os.Getenv("WIMP_BASE_URL"); base != "" {
		cfg.Site.BaseURL = base
	}

	return cfg, nil
}

// LoadSiteFile overlays a YAML site profile onto the current site config.
// Kinds present in the file replace the matching built-in profile; fields
// left empty keep their current value.
func (c *Config) LoadSiteFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read site file: %w", err)
	}

	var file SiteConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("config: parse site file %s: %w", path, err)
	}

	if file.BaseURL != "" {
		c.Site.BaseURL = file.BaseURL
	}
	if file.NoDataSelector != "" {
		c.Site.NoDataSelector = file.NoDataSelector
	}
	if c.Site.Kinds == nil {
		c.Site.Kinds = make(map[string]KindProfile, len(file.Kinds))
	}
	for name, p := range file.Kinds {
		cur := c.Site.Kinds[name]
		if p.Path != "" {
			cur.Path = p.Path
		}
		if p.RowSelector != "" {
			cur.RowSelector = p.RowSelector
		}
		c.Site.Kinds[name] = cur
	}
	return nil
}

// Validate checks value ranges that would otherwise surface as confusing
// runtime failures. Selector syntax is checked by the pipeline.
func (c *Config) Validate() error {
	switch c.Scraper.Engine {
	case "rod", "http":
	default:
		return fmt.Errorf("engine must be 'rod' or 'http', got %q", c.Scraper.Engine)
	}
	if c.Scraper.AbsenceProbe <= 0 {
		return fmt.Errorf("absence probe must be positive")
	}
	if c.Scraper.PresenceWait <= 0 {
		return fmt.Errorf("presence wait must be positive")
	}
	if c.Scraper.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site base URL cannot be empty")
	}
	if c.Site.NoDataSelector == "" {
		return fmt.Errorf("site no-data selector cannot be empty")
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
