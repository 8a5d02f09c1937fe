// Copyright 2025 Certen Protocol
//
// Configuration Loader
//
// This package loads skipledger's ledger-store backend selection, the
// per-backend settings of §6, and the salt-seed source, from a YAML file
// with environment variable substitution — grounded on
// pkg/config/anchor_config.go's ${VAR_NAME} / ${VAR_NAME:-default}
// substitution and LoadXWithDefaults pattern, trimmed to the settings
// this module actually has.
package skipledgerconfig

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/certen/skipledger/pkg/saltseed"
)

// Config holds the top-level skipledger process configuration.
type Config struct {
	Environment string `yaml:"environment"`

	Ledger   LedgerSettings   `yaml:"ledger"`
	SaltSeed SaltSeedSettings `yaml:"salt_seed"`
	Notary   NotarySettings   `yaml:"notary"`
	Metrics  MetricsSettings  `yaml:"metrics"`
	Logging  LoggingSettings  `yaml:"logging"`
}

// LedgerSettings selects and configures one of the three pluggable
// backends of §6. Backend names match the registry keys each backend
// package registers itself under in its init().
type LedgerSettings struct {
	Backend    string           `yaml:"backend"` // "flatfile" | "relational" | "kvstore"
	FlatFile   FlatFileSettings `yaml:"flatfile"`
	Relational RelationalSettings `yaml:"relational"`
	KVStore    KVStoreSettings  `yaml:"kvstore"`
}

// FlatFileSettings configures the flat-file backend's data directory.
type FlatFileSettings struct {
	DataDir string `yaml:"data_dir"`
}

// RelationalSettings configures the Postgres-backed backend.
type RelationalSettings struct {
	DSN            string   `yaml:"dsn"`
	MaxConnections int      `yaml:"max_connections"`
	MaxIdleTime    Duration `yaml:"max_idle_time"`
	MaxLifetime    Duration `yaml:"max_lifetime"`
	AutoMigrate    bool     `yaml:"auto_migrate"`
}

// KVStoreSettings configures the generic cometbft-db backed KV backend.
type KVStoreSettings struct {
	Driver string `yaml:"driver"` // e.g. "goleveldb", "badgerdb", "memdb"
	DataDir string `yaml:"data_dir"`
	DBName string `yaml:"db_name"`
}

// SaltSeedSettings selects where the process-wide salt seed (§4.3) comes
// from; at most one of EnvVar or FilePath should be set.
type SaltSeedSettings struct {
	EnvVar   string `yaml:"env_var"`
	FilePath string `yaml:"file_path"`
}

// NotarySettings configures the crumtrail witness source polled for
// new trails (§4.8).
type NotarySettings struct {
	Enabled      bool     `yaml:"enabled"`
	URL          string   `yaml:"url"`
	PollInterval Duration `yaml:"poll_interval"`
}

// MetricsSettings configures the optional Prometheus metrics server.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingSettings configures the logging level and output.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// Duration wraps time.Duration for YAML unmarshaling as a duration
// string ("30s", "5m") rather than an integer count of nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads and parses a Config from path, substituting ${VAR} and
// ${VAR:-default} environment variable references before unmarshaling.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("skipledgerconfig: read %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("skipledgerconfig: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads a Config from path and fills in unset fields
// with the defaults set in applyDefaults.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "flatfile"
	}
	if c.Ledger.FlatFile.DataDir == "" {
		c.Ledger.FlatFile.DataDir = "./data/skipledger"
	}
	if c.Ledger.Relational.MaxConnections == 0 {
		c.Ledger.Relational.MaxConnections = 25
	}
	if c.Ledger.Relational.MaxIdleTime == 0 {
		c.Ledger.Relational.MaxIdleTime = Duration(5 * time.Minute)
	}
	if c.Ledger.Relational.MaxLifetime == 0 {
		c.Ledger.Relational.MaxLifetime = Duration(1 * time.Hour)
	}
	if c.Ledger.KVStore.Driver == "" {
		c.Ledger.KVStore.Driver = "goleveldb"
	}
	if c.Ledger.KVStore.DBName == "" {
		c.Ledger.KVStore.DBName = "skipledger"
	}
	if c.Notary.PollInterval == 0 {
		c.Notary.PollInterval = Duration(30 * time.Second)
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
}

// Validate checks that the selected backend carries the settings it
// needs to open, per §6's external-interface contract for each backend.
func (c *Config) Validate() error {
	var errs []string

	switch c.Ledger.Backend {
	case "flatfile":
		if c.Ledger.FlatFile.DataDir == "" {
			errs = append(errs, "ledger.flatfile.data_dir is required when ledger.backend is flatfile")
		}
	case "relational":
		if c.Ledger.Relational.DSN == "" || strings.HasPrefix(c.Ledger.Relational.DSN, "${") {
			errs = append(errs, "ledger.relational.dsn is required when ledger.backend is relational")
		}
	case "kvstore":
		if c.Ledger.KVStore.DataDir == "" {
			errs = append(errs, "ledger.kvstore.data_dir is required when ledger.backend is kvstore")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger.backend %q is not a known backend (flatfile, relational, kvstore)", c.Ledger.Backend))
	}

	if c.SaltSeed.EnvVar != "" && c.SaltSeed.FilePath != "" {
		errs = append(errs, "salt_seed.env_var and salt_seed.file_path are mutually exclusive")
	}
	if c.SaltSeed.EnvVar == "" && c.SaltSeed.FilePath == "" {
		errs = append(errs, "salt_seed.env_var or salt_seed.file_path must be set")
	}

	if c.Notary.Enabled && (c.Notary.URL == "" || strings.HasPrefix(c.Notary.URL, "${")) {
		errs = append(errs, "notary.url is required when notary.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("skipledgerconfig: validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LoadSaltSeed loads the process-wide salt seed from whichever source
// SaltSeedSettings names, per §4.3's rule that S never lives in the YAML
// document itself.
func (c *Config) LoadSaltSeed() (*saltseed.Seed, error) {
	switch {
	case c.SaltSeed.EnvVar != "":
		return saltseed.LoadFromEnv(c.SaltSeed.EnvVar)
	case c.SaltSeed.FilePath != "":
		return saltseed.LoadFromFile(c.SaltSeed.FilePath)
	default:
		return nil, fmt.Errorf("skipledgerconfig: no salt seed source configured")
	}
}
