package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Directory DirectoryConfig `yaml:"directory"`
	Validator ValidatorConfig `yaml:"validator"`
	Storage   StorageConfig   `yaml:"storage"`
	Worker    WorkerConfig    `yaml:"worker"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9340"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// DirectoryConfig holds station directory client configuration.
// Servers are tried in order; a failing server is skipped for the
// remainder of the call.
type DirectoryConfig struct {
	Servers   []string      `yaml:"servers" envconfig:"DIRECTORY_SERVERS" default:"https://de1.api.radio-browser.info,https://nl1.api.radio-browser.info,https://at1.api.radio-browser.info"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"DIRECTORY_TIMEOUT" default:"10s"`
	UserAgent string        `yaml:"user_agent" envconfig:"DIRECTORY_USER_AGENT" default:"tunewave/1.0"`
}

// ValidatorConfig holds stream validation configuration.
// The failure-path cache TTL is fixed at five minutes and deliberately
// not configurable: a station that is merely down should be retried soon.
type ValidatorConfig struct {
	Timeout     time.Duration `yaml:"timeout" envconfig:"VALIDATOR_TIMEOUT" default:"10s"`
	BatchSize   int           `yaml:"batch_size" envconfig:"VALIDATOR_BATCH_SIZE" default:"5"`
	EnableCache bool          `yaml:"enable_cache" envconfig:"VALIDATOR_ENABLE_CACHE" default:"true"`
	CacheTTL    time.Duration `yaml:"cache_ttl" envconfig:"VALIDATOR_CACHE_TTL" default:"24h"`
	ProbeRate   float64       `yaml:"probe_rate" envconfig:"VALIDATOR_PROBE_RATE" default:"20"`
	ProbeBurst  int           `yaml:"probe_burst" envconfig:"VALIDATOR_PROBE_BURST" default:"40"`
	UserAgent   string        `yaml:"user_agent" envconfig:"VALIDATOR_USER_AGENT" default:"tunewave/1.0"`
}

// StorageConfig holds local persistence configuration.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"STORAGE_DATA_DIR" default:"/data/tunewave"`
	RecentsMax int    `yaml:"recents_max" envconfig:"STORAGE_RECENTS_MAX" default:"100"`
}

// WorkerConfig holds background revalidation pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	ScanInterval time.Duration `yaml:"scan_interval" envconfig:"WORKER_SCAN_INTERVAL" default:"15m"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES" default:"3"`
	StaleAfter   time.Duration `yaml:"stale_after" envconfig:"WORKER_STALE_AFTER" default:"24h"`
}

// EventsConfig holds validation event stream configuration.
type EventsConfig struct {
	RingBufferSize int    `yaml:"ring_buffer_size" envconfig:"EVENTS_RING_BUFFER_SIZE" default:"1000"`
	PersistSQLite  bool   `yaml:"persist_sqlite" envconfig:"EVENTS_PERSIST_SQLITE" default:"false"`
	SQLitePath     string `yaml:"sqlite_path" envconfig:"EVENTS_SQLITE_PATH"`
	RetentionDays  int    `yaml:"retention_days" envconfig:"EVENTS_RETENTION_DAYS" default:"30"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if len(c.Directory.Servers) == 0 {
		return fmt.Errorf("at least one directory server is required")
	}
	for _, s := range c.Directory.Servers {
		if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			return fmt.Errorf("directory server %q must be an http(s) URL", s)
		}
	}
	if c.Validator.BatchSize <= 0 {
		return fmt.Errorf("validator batch_size must be positive")
	}
	if c.Validator.Timeout <= 0 {
		return fmt.Errorf("validator timeout must be positive")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("STORAGE_DATA_DIR is required")
	}
	if c.Events.PersistSQLite && c.Events.SQLitePath == "" {
		return fmt.Errorf("EVENTS_SQLITE_PATH is required when sqlite persistence is enabled")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
