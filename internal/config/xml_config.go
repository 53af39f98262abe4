package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// FileName is the config file created next to the binary on first run.
const FileName = "TimelineServer.config"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TIMELINE_"

// AppConfig is the root configuration structure.
type AppConfig struct {
	XMLName    xml.Name         `xml:"TimelineServer"`
	Server     ServerConfig     `xml:"Server" envPrefix:"SERVER_"`
	Source     SourceConfig     `xml:"Source" envPrefix:"SOURCE_"`
	Timeline   TimelineConfig   `xml:"Timeline" envPrefix:"TIMELINE_"`
	Processing ProcessingConfig `xml:"Processing" envPrefix:"PROCESSING_"`
	Security   SecurityConfig   `xml:"Security" envPrefix:"SECURITY_"`
	Advanced   AdvancedConfig   `xml:"Advanced" envPrefix:"ADVANCED_"`

	// path the config was loaded from, used to resolve relative paths
	baseDir string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int      `xml:"Port" env:"PORT"`
	BindAddress  string   `xml:"BindAddress" env:"BIND_ADDRESS"`
	EnableCORS   bool     `xml:"EnableCORS" env:"ENABLE_CORS"`
	AllowOrigins []string `xml:"AllowOrigins>Origin" env:"ALLOW_ORIGINS" envSeparator:","`
	ReadTimeout  int      `xml:"ReadTimeoutSeconds" env:"READ_TIMEOUT"`
	WriteTimeout int      `xml:"WriteTimeoutSeconds" env:"WRITE_TIMEOUT"`
	IdleTimeout  int      `xml:"IdleTimeoutSeconds" env:"IDLE_TIMEOUT"`
	// RequestTimeout bounds non-websocket handlers.
	RequestTimeout int    `xml:"RequestTimeoutSeconds" env:"REQUEST_TIMEOUT"`
	BodyLimit      string `xml:"BodyLimit" env:"BODY_LIMIT"`
	// StaticDir holds a built frontend served for non-API paths. Empty disables it.
	StaticDir string `xml:"StaticDir" env:"STATIC_DIR"`
}

// SourceConfig selects where logs and drilldown options come from.
type SourceConfig struct {
	// Driver is duckdb, sqlite, postgres or clickhouse. Ignored when UpstreamURL is set.
	Driver string `xml:"Driver" env:"DRIVER"`
	DSN    string `xml:"DSN" env:"DSN"`
	// UpstreamURL switches the source to an HTTP log service.
	UpstreamURL    string `xml:"UpstreamURL" env:"UPSTREAM_URL"`
	UpstreamToken  string `xml:"UpstreamToken" env:"UPSTREAM_TOKEN"`
	TimeoutSeconds int    `xml:"TimeoutSeconds" env:"TIMEOUT"`
	Attempts       int    `xml:"Attempts" env:"ATTEMPTS"`
	BackoffMillis  int    `xml:"BackoffMillis" env:"BACKOFF_MS"`
}

// TimelineConfig contains time axis and rendering defaults.
type TimelineConfig struct {
	// Timezone is an IANA name or Local.
	Timezone       string  `xml:"Timezone" env:"TIMEZONE"`
	BufferRatio    float64 `xml:"BufferRatio" env:"BUFFER_RATIO"`
	MinBufferHours int     `xml:"MinBufferHours" env:"MIN_BUFFER_HOURS"`
	Continuous     bool    `xml:"Continuous" env:"CONTINUOUS"`
	ShowLegend     bool    `xml:"ShowLegend" env:"SHOW_LEGEND"`
	LegendFile     string  `xml:"LegendFile" env:"LEGEND_FILE"`
}

// ProcessingConfig contains view lifecycle settings.
type ProcessingConfig struct {
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes" env:"SESSION_TIMEOUT"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes" env:"CLEANUP_INTERVAL"`
	MaxViews               int `xml:"MaxViews" env:"MAX_VIEWS"`
	FetchConcurrency       int `xml:"FetchConcurrency" env:"FETCH_CONCURRENCY"`
}

// SecurityConfig contains redirect targets for auth and invalid contexts.
type SecurityConfig struct {
	LoginURL        string `xml:"LoginURL" env:"LOGIN_URL"`
	InvalidRedirect string `xml:"InvalidRedirect" env:"INVALID_REDIRECT"`
	RedirectDelayMs int    `xml:"RedirectDelayMs" env:"REDIRECT_DELAY_MS"`
}

// AdvancedConfig contains advanced settings.
type AdvancedConfig struct {
	LogLevel                  string `xml:"LogLevel" env:"LOG_LEVEL"`
	LogFormat                 string `xml:"LogFormat" env:"LOG_FORMAT"`
	EnableRequestLogging      bool   `xml:"EnableRequestLogging" env:"REQUEST_LOGGING"`
	WebSocketMaxMessageSizeKB int    `xml:"WebSocketMaxMessageSizeKB" env:"WS_MAX_MESSAGE_KB"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:           8089,
			BindAddress:    "0.0.0.0",
			EnableCORS:     true,
			AllowOrigins:   []string{"*"},
			ReadTimeout:    30,
			WriteTimeout:   60,
			IdleTimeout:    120,
			RequestTimeout: 30,
			BodyLimit:      "10M",
		},
		Source: SourceConfig{
			Driver:         "duckdb",
			DSN:            "./data/timeline.duckdb",
			TimeoutSeconds: 10,
			Attempts:       3,
			BackoffMillis:  2000,
		},
		Timeline: TimelineConfig{
			Timezone:       "Local",
			BufferRatio:    0.05,
			MinBufferHours: 24,
			Continuous:     true,
			ShowLegend:     false,
		},
		Processing: ProcessingConfig{
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			MaxViews:               50,
			FetchConcurrency:       0,
		},
		Security: SecurityConfig{
			LoginURL:        "/sso",
			InvalidRedirect: "/timeline",
			RedirectDelayMs: 1500,
		},
		Advanced: AdvancedConfig{
			LogLevel:                  "info",
			LogFormat:                 "console",
			EnableRequestLogging:      true,
			WebSocketMaxMessageSizeKB: 512,
		},
	}
}

// LoadConfig loads configuration from path, writing a default file first if
// none exists. Environment variables override file values.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultConfig()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolve config path")
	}
	cfg.baseDir = filepath.Dir(absPath)

	data, err := os.ReadFile(absPath)
	switch {
	case os.IsNotExist(err):
		if err := cfg.Save(absPath); err != nil {
			return nil, errors.Wrap(err, "create default config")
		}
	case err != nil:
		return nil, errors.Wrap(err, "read config file")
	default:
		// xml appends to slices, so defaults only apply when the file has none
		origins := cfg.Server.AllowOrigins
		cfg.Server.AllowOrigins = nil
		if err := xml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", filepath.Base(absPath))
		}
		if len(cfg.Server.AllowOrigins) == 0 {
			cfg.Server.AllowOrigins = origins
		}
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies TIMELINE_* variables on top of the file.
func (c *AppConfig) applyEnvironmentOverrides() error {
	return errors.Wrap(env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}), "parse environment overrides")
}

// resolvePaths makes file paths relative to the config directory.
func (c *AppConfig) resolvePaths() {
	if c.baseDir == "" {
		return
	}
	if c.Source.UpstreamURL == "" && isFileDSN(c.Source.Driver, c.Source.DSN) && !filepath.IsAbs(c.Source.DSN) {
		c.Source.DSN = filepath.Join(c.baseDir, c.Source.DSN)
	}
	if c.Server.StaticDir != "" && !filepath.IsAbs(c.Server.StaticDir) {
		c.Server.StaticDir = filepath.Join(c.baseDir, c.Server.StaticDir)
	}
	if c.Timeline.LegendFile != "" && !filepath.IsAbs(c.Timeline.LegendFile) {
		c.Timeline.LegendFile = filepath.Join(c.baseDir, c.Timeline.LegendFile)
	}
}

func isFileDSN(driver, dsn string) bool {
	switch driver {
	case "duckdb", "sqlite", "sqlite3":
		return dsn != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
	}
	return false
}

// Validate rejects settings the server cannot start with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Source.UpstreamURL == "" {
		switch c.Source.Driver {
		case "duckdb", "sqlite", "sqlite3", "pgx", "postgres", "postgresql", "clickhouse":
		default:
			return errors.Errorf("unsupported source driver %q", c.Source.Driver)
		}
	}
	if c.Timeline.BufferRatio < 0 {
		return errors.Errorf("buffer ratio must not be negative, got %v", c.Timeline.BufferRatio)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Save writes the configuration to path.
func (c *AppConfig) Save(path string) error {
	data, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	header := []byte(xml.Header + "<!-- Timeline Server Configuration -->\n" +
		"<!-- Environment variables prefixed with " + EnvPrefix + " override these values -->\n")
	data = append(header, data...)
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "create config directory")
		}
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "write config file")
}

// GetServerAddr returns the full server address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// Location returns the configured display timezone.
func (c *AppConfig) Location() (*time.Location, error) {
	switch c.Timeline.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timeline.Timezone)
	return loc, errors.Wrapf(err, "load timezone %q", c.Timeline.Timezone)
}

// SessionTimeout returns the idle age after which views are closed.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle views are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates the directories file-backed settings point into.
func (c *AppConfig) EnsureDirectories() error {
	if c.Source.UpstreamURL != "" || !isFileDSN(c.Source.Driver, c.Source.DSN) {
		return nil
	}
	dir := filepath.Dir(c.Source.DSN)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create data directory %s", dir)
	}
	return nil
}
