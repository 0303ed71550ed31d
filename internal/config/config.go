// Package config loads the sync daemon's static configuration from a
// JSON file: relational source coordinates, search backend coordinates,
// backoff parameters, and the state file path.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DSN holds relational-source connection coordinates.
type DSN struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DBName   string `mapstructure:"dbname"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// BackoffParams configures one component's retry schedule, in seconds
// as read from JSON.
type BackoffParams struct {
	MinBackoffDelay  float64 `mapstructure:"min_backoff_delay"`
	MaxBackoffDelay  float64 `mapstructure:"max_backoff_delay"`
	TotalBackoffTime float64 `mapstructure:"total_backoff_time"`
}

// seconds converts a value expressed in config-file seconds into a
// time.Duration.
func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// MinDelay, MaxDelay, and Budget expose BackoffParams as Durations.
func (b BackoffParams) MinDelay() time.Duration { return seconds(b.MinBackoffDelay) }
func (b BackoffParams) MaxDelay() time.Duration { return seconds(b.MaxBackoffDelay) }
func (b BackoffParams) Budget() time.Duration   { return seconds(b.TotalBackoffTime) }

// PostgresSettings is the `postgres_db` config section.
type PostgresSettings struct {
	DSN           DSN `mapstructure:"dsn"`
	BackoffParams `mapstructure:",squash"`
}

// SearchSettings is the `es_db` config section: coordinates of the
// bulk-load HTTP endpoint and its retry schedule. DSN.DBName doubles as
// the target index name.
type SearchSettings struct {
	DSN           DSN `mapstructure:"dsn"`
	BackoffParams `mapstructure:",squash"`
}

// Config is the full parsed configuration file.
type Config struct {
	PostgresDB    PostgresSettings `mapstructure:"postgres_db"`
	ESDB          SearchSettings   `mapstructure:"es_db"`
	StateFilePath string           `mapstructure:"state_file_path"`
	SyncInterval  float64          `mapstructure:"sync_interval"`
	BatchSize     int              `mapstructure:"batch_size"`
}

// setDefaults mirrors the defaults a local development environment
// expects when a field is left unset.
func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres_db.min_backoff_delay", 0.1)
	v.SetDefault("postgres_db.max_backoff_delay", 5.0)
	v.SetDefault("postgres_db.total_backoff_time", 30.0)
	v.SetDefault("es_db.min_backoff_delay", 0.1)
	v.SetDefault("es_db.max_backoff_delay", 10.0)
	v.SetDefault("es_db.total_backoff_time", 30.0)
	v.SetDefault("state_file_path", "storage.json")
	v.SetDefault("sync_interval", 30.0)
	v.SetDefault("batch_size", 100)
}

// Load reads and validates the JSON configuration file at path. A
// missing or malformed file is a fatal, startup-time error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PostgresDB.DSN.Host == "" {
		return fmt.Errorf("postgres_db.dsn.host is required")
	}
	if c.PostgresDB.DSN.DBName == "" {
		return fmt.Errorf("postgres_db.dsn.dbname is required")
	}
	if c.ESDB.DSN.Host == "" {
		return fmt.Errorf("es_db.dsn.host is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	return nil
}

// PostgresDSN renders the libpq key=value DSN string for pgx.
func (c *Config) PostgresDSN() string {
	d := c.PostgresDB.DSN
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		d.Host, d.Port, d.DBName, d.User, d.Password)
}

// SearchBaseURL renders the http://host:port base URL for the bulk endpoint.
func (c *Config) SearchBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.ESDB.DSN.Host, c.ESDB.DSN.Port)
}

// IndexName is the target search index, stored under es_db.dsn.dbname.
func (c *Config) IndexName() string { return c.ESDB.DSN.DBName }

// SyncIntervalDuration converts SyncInterval (seconds) to a Duration.
func (c *Config) SyncIntervalDuration() time.Duration { return seconds(c.SyncInterval) }
