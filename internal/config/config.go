// Package config loads service configuration from defaults, a .env file, an
// optional YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/stationboard/stationboard/pkg/geo"
)

// EnvConfigFile names the YAML file to load when Load is given no path.
const EnvConfigFile = "CONFIG_FILE"

// Config is the full service configuration.
type Config struct {
	Env      string `yaml:"env" validate:"oneof=development staging production test"`
	LogLevel string `yaml:"log_level" validate:"oneof=trace debug info warn error"`

	Server    ServerConfig    `yaml:"server"`
	MBTA      MBTAConfig      `yaml:"mbta"`
	Board     BoardConfig     `yaml:"board"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" validate:"min=1,max=65535"`
	CORSOrigins []string `yaml:"cors_origins" validate:"dive,required"`

	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int `yaml:"rate_limit" validate:"min=0"`

	// RequireTLS rejects requests a load balancer forwarded over plain HTTP.
	RequireTLS bool `yaml:"require_tls"`
}

// MBTAConfig configures the transit data gateway.
type MBTAConfig struct {
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url" validate:"required,url"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
	RadiusKm float64       `yaml:"radius_km" validate:"gt=0,lte=50"`
}

// BoardConfig configures aggregation and presentation.
type BoardConfig struct {
	BranchIndicator  string `yaml:"branch_indicator" validate:"required"`
	BranchFamily     string `yaml:"branch_family" validate:"required"`
	ScheduleFallback bool   `yaml:"schedule_fallback"`
	Limit            int    `yaml:"limit" validate:"min=1,max=10"`
	MinSeverity      int    `yaml:"min_severity" validate:"min=0,max=10"`
}

// RefreshConfig configures the refresh scheduler.
type RefreshConfig struct {
	PredictionInterval time.Duration `yaml:"prediction_interval" validate:"gt=0"`
	AlertInterval      time.Duration `yaml:"alert_interval" validate:"gt=0"`
	Timeout            time.Duration `yaml:"timeout" validate:"gt=0"`
}

// SessionsConfig configures widget sessions held by the API.
type SessionsConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	Max         int           `yaml:"max" validate:"min=1"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// WorkerConfig configures the headless worker.
type WorkerConfig struct {
	Lat                float64 `yaml:"lat" validate:"min=-90,max=90"`
	Lon                float64 `yaml:"lon" validate:"min=-180,max=180"`
	PubSubProject      string  `yaml:"pubsub_project"`
	PubSubSubscription string  `yaml:"pubsub_subscription" validate:"required_with=PubSubProject"`
	HealthPort         int     `yaml:"health_port" validate:"min=1,max=65535"`
}

// Coordinate returns the worker's configured position.
func (w WorkerConfig) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: w.Lat, Lon: w.Lon}
}

// PubSubEnabled reports whether remote commands are configured.
func (w WorkerConfig) PubSubEnabled() bool {
	return w.PubSubProject != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:      "development",
		LogLevel: "info",
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
			RateLimit:   120,
		},
		MBTA: MBTAConfig{
			BaseURL:  "https://api-v3.mbta.com",
			Timeout:  10 * time.Second,
			RadiusKm: 2.2264,
		},
		Board: BoardConfig{
			BranchIndicator:  "Green Line",
			BranchFamily:     "Green",
			ScheduleFallback: true,
			Limit:            3,
			MinSeverity:      3,
		},
		Refresh: RefreshConfig{
			PredictionInterval: 30 * time.Second,
			AlertInterval:      60 * time.Second,
			Timeout:            20 * time.Second,
		},
		Sessions: SessionsConfig{
			IdleTimeout: 15 * time.Minute,
			Max:         500,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
		},
		Worker: WorkerConfig{
			Lat:        42.35639,
			Lon:        -71.0624,
			HealthPort: 8081,
		},
	}
}

// Load builds the configuration. path names an optional YAML file; when
// empty, the CONFIG_FILE environment variable is consulted. A missing .env
// file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Level returns the zerolog level for LogLevel.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) applyEnv() error {
	setString("APP_ENV", &c.Env)
	setString("LOG_LEVEL", &c.LogLevel)

	setList("CORS_ALLOWED_ORIGINS", &c.Server.CORSOrigins)
	setString("MBTA_API_KEY", &c.MBTA.APIKey)
	setString("MBTA_BASE_URL", &c.MBTA.BaseURL)
	setString("BRANCH_INDICATOR", &c.Board.BranchIndicator)
	setString("BRANCH_FAMILY", &c.Board.BranchFamily)
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	setString("PUBSUB_PROJECT_ID", &c.Worker.PubSubProject)
	setString("PUBSUB_SUBSCRIPTION", &c.Worker.PubSubSubscription)

	return errors.Join(
		setInt("APP_PORT", &c.Server.Port),
		setInt("RATE_LIMIT_PER_MINUTE", &c.Server.RateLimit),
		setBool("REQUIRE_TLS", &c.Server.RequireTLS),
		setDuration("MBTA_TIMEOUT", &c.MBTA.Timeout),
		setFloat("SEARCH_RADIUS_KM", &c.MBTA.RadiusKm),
		setBool("SCHEDULE_FALLBACK", &c.Board.ScheduleFallback),
		setInt("BOARD_LIMIT", &c.Board.Limit),
		setInt("MIN_ALERT_SEVERITY", &c.Board.MinSeverity),
		setDuration("PREDICTION_INTERVAL", &c.Refresh.PredictionInterval),
		setDuration("ALERT_INTERVAL", &c.Refresh.AlertInterval),
		setDuration("REFRESH_TIMEOUT", &c.Refresh.Timeout),
		setDuration("SESSION_IDLE_TIMEOUT", &c.Sessions.IdleTimeout),
		setInt("SESSION_MAX", &c.Sessions.Max),
		setBool("OTEL_ENABLED", &c.Telemetry.Enabled),
		setFloat("OTEL_SAMPLE_RATIO", &c.Telemetry.SampleRatio),
		setFloat("WORKER_LAT", &c.Worker.Lat),
		setFloat("WORKER_LON", &c.Worker.Lon),
		setInt("WORKER_HEALTH_PORT", &c.Worker.HealthPort),
	)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func setInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = d
	return nil
}
