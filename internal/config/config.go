// Package config loads the gateway's environment-variable driven settings,
// plus a small YAML file for the item-schema endpoint and proxy template
// (the two settings that don't fit a flat env var cleanly).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized environment option.
type Config struct {
	BotsPerWorker       int           `env:"BOTS_PER_WORKER"`
	WorkerEnabled       bool          `env:"WORKER_ENABLED"`
	MaxQueueSize        int           `env:"MAX_QUEUE_SIZE"`
	QueueTimeout        time.Duration `env:"QUEUE_TIMEOUT"`
	MaxInspectRetries   int           `env:"MAX_INSPECT_RETRIES"`
	MaxRetries          int           `env:"MAX_RETRIES"`
	ProxyURL            string        `env:"PROXY_URL"`
	GCRelayURL          string        `env:"GC_RELAY_URL"`
	AccountsFile        string        `env:"ACCOUNTS_FILE"`
	SessionPath         string        `env:"SESSION_PATH"`
	BlacklistPath       string        `env:"BLACKLIST_PATH"`
	StatsUpdateInterval time.Duration `env:"STATS_UPDATE_INTERVAL"`
	LastIDFile          string        `env:"LAST_ID_FILE"`

	PGDSN     string `env:"PG_DSN"`
	RedisAddr string `env:"REDIS_ADDR"`
	HTTPPort  int    `env:"HTTP_PORT"`

	SchemaFile string `env:"SCHEMA_CONFIG"` // path to the YAML file below
	Schema     SchemaConfig
}

// SchemaConfig is the small YAML-file-backed piece of configuration: the
// item-schema provider's URL and a GC proxy template. ProxyTemplate is
// parsed but not read by the gateway; the GC client's proxy comes from
// Config.ProxyURL (PROXY_URL).
type SchemaConfig struct {
	ItemSchemaURL string        `yaml:"item_schema_url"`
	ProxyTemplate string        `yaml:"proxy_template"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
}

// Default returns the gateway's standard defaults.
func Default() Config {
	return Config{
		BotsPerWorker:       50,
		WorkerEnabled:       false,
		MaxQueueSize:        100,
		QueueTimeout:        5 * time.Second,
		MaxInspectRetries:   3,
		MaxRetries:          3,
		AccountsFile:        "accounts.txt",
		SessionPath:         "sessions",
		BlacklistPath:       "blacklist.txt",
		StatsUpdateInterval: 3 * time.Second,
		HTTPPort:            8080,
		Schema: SchemaConfig{
			FetchTimeout: 10 * time.Second,
		},
	}
}

// Load builds a Config from the default values, overridden by whatever
// environment variables are set, then loads the YAML schema file if
// SCHEMA_CONFIG names one.
func Load() (Config, error) {
	cfg := Default()

	cfg.BotsPerWorker = envInt("BOTS_PER_WORKER", cfg.BotsPerWorker)
	cfg.WorkerEnabled = envBool("WORKER_ENABLED", cfg.WorkerEnabled)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.QueueTimeout = envMillis("QUEUE_TIMEOUT", cfg.QueueTimeout)
	cfg.MaxInspectRetries = envInt("MAX_INSPECT_RETRIES", cfg.MaxInspectRetries)
	cfg.MaxRetries = envInt("MAX_RETRIES", cfg.MaxRetries)
	cfg.ProxyURL = envString("PROXY_URL", cfg.ProxyURL)
	cfg.GCRelayURL = envString("GC_RELAY_URL", cfg.GCRelayURL)
	cfg.AccountsFile = envString("ACCOUNTS_FILE", cfg.AccountsFile)
	cfg.SessionPath = envString("SESSION_PATH", cfg.SessionPath)
	cfg.BlacklistPath = envString("BLACKLIST_PATH", cfg.BlacklistPath)
	cfg.StatsUpdateInterval = envMillis("STATS_UPDATE_INTERVAL", cfg.StatsUpdateInterval)
	cfg.LastIDFile = envString("LAST_ID_FILE", cfg.LastIDFile)
	cfg.PGDSN = envString("PG_DSN", cfg.PGDSN)
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.SchemaFile = envString("SCHEMA_CONFIG", cfg.SchemaFile)

	if cfg.SchemaFile != "" {
		data, err := os.ReadFile(cfg.SchemaFile)
		if err != nil {
			return Config{}, fmt.Errorf("reading schema config %s: %w", cfg.SchemaFile, err)
		}
		if err := yaml.Unmarshal(data, &cfg.Schema); err != nil {
			return Config{}, fmt.Errorf("parsing schema config %s: %w", cfg.SchemaFile, err)
		}
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
