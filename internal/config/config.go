package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "WARDEN_"

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "WARDEN_CONFIG"

const insecureDefaultSecret = "change-me"

// DefaultConfigPaths lists the YAML files searched, in order, when
// WARDEN_CONFIG is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/warden/config.yaml",
}

// Config captures runtime configuration. Values are layered as
// defaults < YAML file < environment.
type Config struct {
	Environment string         `koanf:"environment"`
	Server      ServerConfig   `koanf:"server"`
	Database    DatabaseConfig `koanf:"database"`
	Log         LogConfig      `koanf:"log"`
	Security    SecurityConfig `koanf:"security"`
	Anomaly     AnomalyConfig  `koanf:"anomaly"`
	Geo         GeoConfig      `koanf:"geo"`
	Alerts      AlertConfig    `koanf:"alerts"`
	Sweeper     SweeperConfig  `koanf:"sweeper"`
}

type ServerConfig struct {
	HTTPPort string `koanf:"http_port"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Dir   string `koanf:"dir"`
	Debug bool   `koanf:"debug"`
}

// SecurityConfig holds the secrets and fixed policy knobs of the engine.
type SecurityConfig struct {
	// DefaultSecret keys field encryption when callers pass no explicit key.
	DefaultSecret string        `koanf:"default_secret"`
	JWTSecret     string        `koanf:"jwt_secret"`
	TokenTTL      time.Duration `koanf:"token_ttl"`
	// TimeZone is the IANA zone used for time_restriction rules.
	TimeZone string `koanf:"time_zone"`
	// RuleBlockMinutes is how long a `block` rule action bans an IP.
	RuleBlockMinutes int `koanf:"rule_block_minutes"`
}

// AnomalyConfig holds the anomaly detector thresholds.
type AnomalyConfig struct {
	MultiIPThreshold       int           `koanf:"multi_ip_threshold"`
	MultiIPWindow          time.Duration `koanf:"multi_ip_window"`
	BruteForceThreshold    int           `koanf:"brute_force_threshold"`
	BruteForceWindow       time.Duration `koanf:"brute_force_window"`
	BruteForceBlockMinutes int           `koanf:"brute_force_block_minutes"`
}

type GeoConfig struct {
	// ProviderURL is an ip-api compatible endpoint; empty selects the static locator.
	ProviderURL    string        `koanf:"provider_url"`
	Timeout        time.Duration `koanf:"timeout"`
	DefaultCountry string        `koanf:"default_country"`
}

type AlertConfig struct {
	QueueSize     int     `koanf:"queue_size"`
	Workers       int     `koanf:"workers"`
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

type SweeperConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Environment: "development",
		Server:      ServerConfig{HTTPPort: "8080"},
		Database:    DatabaseConfig{Path: filepath.Join("data", "warden.db")},
		Log:         LogConfig{Dir: filepath.Join("data", "logs")},
		Security: SecurityConfig{
			DefaultSecret:    insecureDefaultSecret,
			JWTSecret:        insecureDefaultSecret,
			TokenTTL:         12 * time.Hour,
			TimeZone:         "Local",
			RuleBlockMinutes: 60,
		},
		Anomaly: DefaultAnomalyConfig(),
		Geo: GeoConfig{
			Timeout:        5 * time.Second,
			DefaultCountry: "US",
		},
		Alerts: AlertConfig{
			QueueSize:     256,
			Workers:       2,
			RatePerSecond: 5,
			Burst:         10,
		},
		Sweeper: SweeperConfig{Enabled: true, Schedule: "@every 10m"},
	}
}

// DefaultAnomalyConfig returns the compatibility thresholds: more than 3
// distinct IPs in 24h, and 5 failures in 15 minutes blocking for an hour.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		MultiIPThreshold:       3,
		MultiIPWindow:          24 * time.Hour,
		BruteForceThreshold:    5,
		BruteForceWindow:       15 * time.Minute,
		BruteForceBlockMinutes: 60,
	}
}

// Load reads defaults, an optional YAML file and WARDEN_* environment
// variables so the server can boot with zero configuration.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Environment == "production" {
		if c.Security.DefaultSecret == insecureDefaultSecret || c.Security.JWTSecret == insecureDefaultSecret {
			return errors.New("security secrets must be set in production")
		}
	}
	if c.Security.RuleBlockMinutes <= 0 {
		return errors.New("security.rule_block_minutes must be positive")
	}
	if c.Anomaly.BruteForceThreshold <= 0 || c.Anomaly.MultiIPThreshold <= 0 {
		return errors.New("anomaly thresholds must be positive")
	}
	if c.Anomaly.BruteForceWindow <= 0 || c.Anomaly.MultiIPWindow <= 0 {
		return errors.New("anomaly windows must be positive")
	}
	if c.Anomaly.BruteForceBlockMinutes <= 0 {
		return errors.New("anomaly.brute_force_block_minutes must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid security.time_zone: %w", err)
	}
	return nil
}

// Location resolves the configured time zone for hour-of-day rules.
func (c Config) Location() (*time.Location, error) {
	if c.Security.TimeZone == "" || strings.EqualFold(c.Security.TimeZone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Security.TimeZone)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKeys maps WARDEN_* variables (prefix stripped, lowercased) to koanf paths.
var envKeys = map[string]string{
	"env":                               "environment",
	"http_port":                         "server.http_port",
	"db_path":                           "database.path",
	"log_dir":                           "log.dir",
	"debug":                             "log.debug",
	"default_secret":                    "security.default_secret",
	"jwt_secret":                        "security.jwt_secret",
	"token_ttl":                         "security.token_ttl",
	"time_zone":                         "security.time_zone",
	"rule_block_minutes":                "security.rule_block_minutes",
	"anomaly_multi_ip_threshold":        "anomaly.multi_ip_threshold",
	"anomaly_multi_ip_window":           "anomaly.multi_ip_window",
	"anomaly_brute_force_threshold":     "anomaly.brute_force_threshold",
	"anomaly_brute_force_window":        "anomaly.brute_force_window",
	"anomaly_brute_force_block_minutes": "anomaly.brute_force_block_minutes",
	"geo_provider_url":                  "geo.provider_url",
	"geo_timeout":                       "geo.timeout",
	"geo_default_country":               "geo.default_country",
	"alerts_queue_size":                 "alerts.queue_size",
	"alerts_workers":                    "alerts.workers",
	"alerts_rate_per_second":            "alerts.rate_per_second",
	"alerts_burst":                      "alerts.burst",
	"sweeper_enabled":                   "sweeper.enabled",
	"sweeper_schedule":                  "sweeper.schedule",
}

// envTransform returns "" for unknown variables, which koanf skips.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	return envKeys[key]
}
