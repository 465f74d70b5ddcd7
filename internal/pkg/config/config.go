package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Sink names accepted in SINKS.
const (
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
	SinkSnapshot = "snapshot"
	SinkCSV      = "csv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	InputPath       string `env:"INPUT_PATH" envDefault:"access.log"`
	ReadWindowBytes int64  `env:"READ_WINDOW_BYTES" envDefault:"8500000"`
	ReadAll         bool   `env:"READ_ALL" envDefault:"false"`
	TimestampPolicy string `env:"TIMESTAMP_POLICY" envDefault:"skip"`

	GeoEndpoint      string        `env:"GEO_ENDPOINT" envDefault:"http://ip-api.com/json/"`
	GeoTimeout       time.Duration `env:"GEO_TIMEOUT" envDefault:"15s"`
	GeoWorkers       int           `env:"GEO_WORKERS" envDefault:"4"`
	GeoRatePerMinute int           `env:"GEO_RATE_PER_MINUTE" envDefault:"45"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	GeoCacheTTL      time.Duration `env:"GEO_CACHE_TTL" envDefault:"24h"`

	Sinks                []string `env:"SINKS" envDefault:"sqlite,csv" envSeparator:","`
	SQLitePath           string   `env:"SQLITE_PATH" envDefault:"logServidores_web.db"`
	PostgresURL          string   `env:"POSTGRES_URL"`
	TableName            string   `env:"TABLE_NAME" envDefault:"log"`
	CSVPath              string   `env:"CSV_PATH" envDefault:"accessLog_Limpo.csv"`
	GeoCSVPath           string   `env:"GEO_CSV_PATH" envDefault:"Ips.csv"`
	SnapshotDir          string   `env:"SNAPSHOT_DIR" envDefault:"snapshot"`
	SnapshotSegmentBytes int64    `env:"SNAPSHOT_SEGMENT_BYTES" envDefault:"67108864"` // 64MB

	ColumnLocale    string `env:"COLUMN_LOCALE" envDefault:"pt-BR"`
	ColumnNamesFile string `env:"COLUMN_NAMES_FILE"`

	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate normalizes the sink list and checks cross-field requirements.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	var sinks []string
	for _, s := range c.Sinks {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		switch s {
		case SinkSQLite, SinkPostgres, SinkSnapshot, SinkCSV:
		default:
			return fmt.Errorf("unknown sink %q", s)
		}
		seen[s] = true
		sinks = append(sinks, s)
	}
	c.Sinks = sinks

	if seen[SinkPostgres] && c.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required when the postgres sink is enabled")
	}
	if c.ReadWindowBytes <= 0 {
		return fmt.Errorf("READ_WINDOW_BYTES must be positive, got %d", c.ReadWindowBytes)
	}
	if c.SnapshotSegmentBytes <= 0 {
		return fmt.Errorf("SNAPSHOT_SEGMENT_BYTES must be positive, got %d", c.SnapshotSegmentBytes)
	}
	return nil
}

// HasSink reports whether name is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}
