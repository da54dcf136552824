package settings

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sabio/csv-analyst-web/pkg/upload"
)

// Default values used when neither the settings file nor the environment
// provide one.
const (
	DefaultListenAddr     = "0.0.0.0:8080"
	DefaultAPIURL         = "https://langchainp5-ai-data-analyst.onrender.com"
	DefaultUploadTimeout  = 30 * time.Second
	DefaultRequestTimeout = 60 * time.Second
	DefaultRateLimitRPS   = 2.0
	DefaultRateLimitBurst = 5
	DefaultMaxViews       = 1024
	DefaultMaxHeldMB      = 64
	DefaultChartWidth     = 800
	DefaultChartHeight    = 400
)

// Settings holds the web front end configuration. MaxHeldMB caps the
// memory taken by selected files awaiting upload.
type Settings struct {
	ListenAddr     string   `json:"listen_addr"`
	APIURL         string   `json:"api_url"`
	UploadTimeout  Duration `json:"upload_timeout"`
	RequestTimeout Duration `json:"request_timeout"`
	RateLimitRPS   float64  `json:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst"`
	MaxViews       int      `json:"max_views"`
	MaxHeldMB      int      `json:"max_held_mb"`
	ChartWidth     int      `json:"chart_width"`
	ChartHeight    int      `json:"chart_height"`
}

// Duration is a time.Duration that unmarshals from "30s"-style strings or
// from a number of seconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}

	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Default returns settings populated with the package defaults
func Default() *Settings {
	return &Settings{
		ListenAddr:     DefaultListenAddr,
		APIURL:         DefaultAPIURL,
		UploadTimeout:  Duration(DefaultUploadTimeout),
		RequestTimeout: Duration(DefaultRequestTimeout),
		RateLimitRPS:   DefaultRateLimitRPS,
		RateLimitBurst: DefaultRateLimitBurst,
		MaxViews:       DefaultMaxViews,
		MaxHeldMB:      DefaultMaxHeldMB,
		ChartWidth:     DefaultChartWidth,
		ChartHeight:    DefaultChartHeight,
	}
}

// LoadSettings loads settings from JSON on top of the defaults
func LoadSettings(jsonData []byte) (*Settings, error) {
	settings := Default()

	if len(jsonData) == 0 {
		return settings, nil
	}

	if err := json.Unmarshal(jsonData, settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return settings, nil
}

// LoadFile reads a settings file. An empty path yields the defaults.
func LoadFile(path string) (*Settings, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	return LoadSettings(data)
}

// ApplyEnv overrides settings from ANALYST_* environment variables
func (s *Settings) ApplyEnv() {
	s.ListenAddr = getEnv("ANALYST_LISTEN_ADDR", s.ListenAddr)
	s.APIURL = getEnv("ANALYST_API_URL", s.APIURL)
	s.UploadTimeout = Duration(getEnvDuration("ANALYST_UPLOAD_TIMEOUT", time.Duration(s.UploadTimeout)))
	s.RequestTimeout = Duration(getEnvDuration("ANALYST_REQUEST_TIMEOUT", time.Duration(s.RequestTimeout)))
	s.RateLimitRPS = getEnvFloat("ANALYST_RATE_LIMIT_RPS", s.RateLimitRPS)
	s.RateLimitBurst = getEnvInt("ANALYST_RATE_LIMIT_BURST", s.RateLimitBurst)
	s.MaxViews = getEnvInt("ANALYST_MAX_VIEWS", s.MaxViews)
	s.MaxHeldMB = getEnvInt("ANALYST_MAX_HELD_MB", s.MaxHeldMB)
}

// Validate checks if required settings are present
func (s *Settings) Validate() error {
	if s.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}

	if s.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}

	u, err := url.Parse(s.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API URL must be absolute: %q", s.APIURL)
	}

	if s.UploadTimeout <= 0 || s.RequestTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if s.ChartWidth <= 0 || s.ChartHeight <= 0 {
		return fmt.Errorf("chart dimensions must be positive")
	}

	if s.MaxViews <= 0 {
		return fmt.Errorf("max_views must be positive")
	}

	if s.MaxHeldBytes() < upload.MaxFileSize {
		return fmt.Errorf("max_held_mb must hold at least one file of %s", upload.FormatSize(upload.MaxFileSize))
	}

	return nil
}

// BaseURL returns the API URL without a trailing slash
func (s *Settings) BaseURL() string {
	return strings.TrimSuffix(s.APIURL, "/")
}

// MaxHeldBytes is MaxHeldMB in bytes
func (s *Settings) MaxHeldBytes() int64 {
	return int64(s.MaxHeldMB) << 20
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
