package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	tariff "tariffwatch/internal/tariff/domain"
)

// Current-interval fallback policies.
const (
	FallbackNone     = "none"
	FallbackEarliest = "earliest"
)

const (
	defaultAPIBaseURL  = "https://api.edfgb-kraken.energy"
	defaultProductCode = "EDF_FREEPHASE_DYNAMIC_12M_HH"
)

// WindowConfig is one clock window in the YAML file.
type WindowConfig struct {
	Phase string `yaml:"phase"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Config defines the refresh pipeline configuration.
type Config struct {
	TariffCode       string         `yaml:"tariff_code"`
	ProductCode      string         `yaml:"product_code"`
	APIBaseURL       string         `yaml:"api_base_url"`
	RegionLabel      string         `yaml:"region_label"`
	MeterID          string         `yaml:"meter_id"`
	ScanInterval     time.Duration  `yaml:"scan_interval"`
	ForecastWindow   int            `yaml:"forecast_window"`
	APITimeout       time.Duration  `yaml:"api_timeout"`
	RetryAttempts    int            `yaml:"retry_attempts"`
	RetryDelay       time.Duration  `yaml:"retry_delay"`
	MaxPages         int            `yaml:"max_pages"`
	Timezone         string         `yaml:"timezone"`
	CurrentFallback  string         `yaml:"current_fallback"`
	Windows          []WindowConfig `yaml:"classification_windows"`
	WebhookURL       string         `yaml:"webhook_url"`
	EndingSoonWindow time.Duration  `yaml:"ending_soon_window"`
	DiagnosticsSize  int            `yaml:"diagnostics_size"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ProductCode:      defaultProductCode,
		APIBaseURL:       defaultAPIBaseURL,
		ScanInterval:     5 * time.Minute,
		ForecastWindow:   tariff.DefaultForecastWindow,
		APITimeout:       10 * time.Second,
		RetryAttempts:    3,
		RetryDelay:       2 * time.Second,
		MaxPages:         3,
		Timezone:         "Europe/London",
		CurrentFallback:  FallbackNone,
		EndingSoonWindow: 30 * time.Minute,
		DiagnosticsSize:  defaultDiagnosticsSize,
	}
}

// LoadConfig loads config from the TARIFF_CONFIG yaml file, then fills
// gaps from env.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	cfg.TariffCode = os.Getenv("TARIFF_CODE")
	cfg.MeterID = os.Getenv("TARIFF_METER_ID")

	if path := os.Getenv("TARIFF_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.TariffCode == "" {
		cfg.TariffCode = os.Getenv("TARIFF_CODE")
	}
	if cfg.MeterID == "" {
		cfg.MeterID = os.Getenv("TARIFF_METER_ID")
	}
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = os.Getenv("TARIFF_WEBHOOK_URL")
	}
	if value := os.Getenv("TARIFF_API_BASE_URL"); value != "" {
		cfg.APIBaseURL = value
	}
	if value := os.Getenv("TARIFF_SCAN_INTERVAL"); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			cfg.ScanInterval = parsed
		}
	}
	if value := os.Getenv("TARIFF_FORECAST_WINDOW"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.ForecastWindow = parsed
		}
	}
	if value := os.Getenv("TARIFF_CURRENT_FALLBACK"); value != "" {
		cfg.CurrentFallback = value
	}
	return cfg, cfg.Validate()
}

// Validate checks the config for values the pipeline cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TariffCode) == "" {
		return errors.New("refresh: tariff code required")
	}
	if c.ScanInterval <= 0 {
		return errors.New("refresh: scan interval must be positive")
	}
	if c.ForecastWindow <= 0 {
		return errors.New("refresh: forecast window must be positive")
	}
	switch strings.ToLower(c.CurrentFallback) {
	case "", FallbackNone, FallbackEarliest:
	default:
		return fmt.Errorf("refresh: unknown current fallback %q", c.CurrentFallback)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Classifier(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("refresh: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Classifier builds the phase classifier from the configured windows.
func (c Config) Classifier() (*tariff.Classifier, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	if len(c.Windows) == 0 {
		return tariff.NewClassifier(tariff.DefaultWindows(), loc)
	}
	windows := make([]tariff.ClockWindow, 0, len(c.Windows))
	for _, w := range c.Windows {
		parsed, err := tariff.ParseClockWindow(w.Phase, w.Start, w.End)
		if err != nil {
			return nil, err
		}
		windows = append(windows, parsed)
	}
	return tariff.NewClassifier(windows, loc)
}

// FallbackEarliestEnabled reports whether a missing current interval is
// synthesized from the first interval.
func (c Config) FallbackEarliestEnabled() bool {
	return strings.EqualFold(c.CurrentFallback, FallbackEarliest)
}
