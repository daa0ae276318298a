// Package config loads the report tools' settings from YAML and the
// environment.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"home_energy/internal/ingest"
)

// Output formats understood by the report sinks.
const (
	FormatCSV      = "csv"
	FormatXLSX     = "xlsx"
	FormatPDF      = "pdf"
	FormatPostgres = "postgres"
)

// Config holds everything the report, fetch and server commands need.
type Config struct {
	Timezone string        `yaml:"timezone"`
	Sources  []ingest.Spec `yaml:"sources"`
	Output   Output        `yaml:"output"`
	Postgres Postgres      `yaml:"postgres"`
	Enphase  Enphase       `yaml:"enphase"`
	Server   Server        `yaml:"server"`
}

type Output struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Enphase holds Enlighten API credentials and fetch settings.
type Enphase struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	UserID       string        `yaml:"user_id"`
	StartDate    string        `yaml:"start_date"`
	RequestDelay time.Duration `yaml:"request_delay"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in settings, with environment variables applied.
func Default() Config {
	return Config{
		Timezone: os.Getenv("HOME_ENERGY_TZ"),
		Sources: []ingest.Spec{
			{Kind: ingest.KindProduction, Glob: "local-data/production/*.csv"},
			{Kind: ingest.KindPGE, Glob: "local-data/pge/pge_electric_interval_data_*.csv"},
		},
		Output: Output{
			Dir:     getenvDefault("HOME_ENERGY_OUTPUT_DIR", "generated-reports"),
			Formats: splitCSV(getenvDefault("HOME_ENERGY_FORMATS", FormatCSV)),
		},
		Postgres: Postgres{
			DSN: os.Getenv("DATABASE_URL"),
		},
		Enphase: Enphase{
			BaseURL:      getenvDefault("ENLIGHTEN_BASE_URL", "https://api.enphaseenergy.com/api/v2"),
			APIKey:       os.Getenv("ENLIGHTEN_API_KEY"),
			UserID:       os.Getenv("ENLIGHTEN_USER_ID"),
			StartDate:    getenvDefault("ENLIGHTEN_START_DATE", "2021-11-06"),
			RequestDelay: getenvDuration("ENLIGHTEN_REQUEST_DELAY", 7*time.Second),
		},
		Server: Server{
			Addr: getenvDefault("HOME_ENERGY_ADDR", ":8080"),
		},
	}
}

// Load reads path on top of Default. An empty path falls back to
// $HOME_ENERGY_CONFIG, and if that is unset only defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("HOME_ENERGY_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if cfg.Postgres.DSN == "" {
		cfg.Postgres.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.Enphase.APIKey == "" {
		cfg.Enphase.APIKey = os.Getenv("ENLIGHTEN_API_KEY")
	}
	if cfg.Enphase.UserID == "" {
		cfg.Enphase.UserID = os.Getenv("ENLIGHTEN_USER_ID")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late in a run.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	for i, s := range c.Sources {
		switch s.Kind {
		case ingest.KindProduction, ingest.KindPGE, ingest.KindNetUsage:
		case ingest.KindHAStats:
			if s.Entity == "" {
				errs = append(errs, fmt.Errorf("sources[%d]: %s source needs an entity", i, s.Kind))
			}
		default:
			errs = append(errs, fmt.Errorf("sources[%d]: unknown kind %q", i, s.Kind))
		}
		if s.Glob == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: glob is required", i))
		}
	}
	for _, f := range c.Output.Formats {
		switch f {
		case FormatCSV, FormatXLSX, FormatPDF:
		case FormatPostgres:
			if c.Postgres.DSN == "" {
				errs = append(errs, errors.New("output format postgres needs postgres.dsn or DATABASE_URL"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown output format %q", f))
		}
	}
	if c.Enphase.RequestDelay < 0 {
		errs = append(errs, errors.New("enphase.request_delay must not be negative"))
	}
	return errors.Join(errs...)
}

// Location returns the zone for calendar reports and PG&E wall-clock times.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// HasFormat reports whether f is one of the configured output formats.
func (c Config) HasFormat(f string) bool {
	for _, have := range c.Output.Formats {
		if have == f {
			return true
		}
	}
	return false
}

// LoadDotEnv reads a .env file and sets variables not already in the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, val)
		}
	}
	return scanner.Err()
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
