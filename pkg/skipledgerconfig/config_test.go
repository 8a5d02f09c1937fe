// Copyright 2025 Certen Protocol

package skipledgerconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skipledger.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("SKIPLEDGER_DATA_DIR", "/var/lib/skipledger")
	path := writeTempConfig(t, `
ledger:
  backend: flatfile
  flatfile:
    data_dir: ${SKIPLEDGER_DATA_DIR}
salt_seed:
  env_var: ${SALT_SEED_ENV:-SKIPLEDGER_SALT_SEED}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ledger.FlatFile.DataDir != "/var/lib/skipledger" {
		t.Fatalf("data_dir = %q, want substituted env value", cfg.Ledger.FlatFile.DataDir)
	}
	if cfg.SaltSeed.EnvVar != "SKIPLEDGER_SALT_SEED" {
		t.Fatalf("env_var = %q, want default applied", cfg.SaltSeed.EnvVar)
	}
}

func TestLoadWithDefaultsFillsUnsetFields(t *testing.T) {
	path := writeTempConfig(t, `
salt_seed:
  env_var: SKIPLEDGER_SALT_SEED
`)
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Environment != "development" {
		t.Fatalf("Environment = %q, want development default", cfg.Environment)
	}
	if cfg.Ledger.Backend != "flatfile" {
		t.Fatalf("Ledger.Backend = %q, want flatfile default", cfg.Ledger.Backend)
	}
	if cfg.Ledger.FlatFile.DataDir == "" {
		t.Fatalf("Ledger.FlatFile.DataDir default not applied")
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Fatalf("Metrics.Addr = %q, want :9090 default", cfg.Metrics.Addr)
	}
}

func TestValidateRejectsMissingBackendSettings(t *testing.T) {
	cfg := &Config{
		Ledger: LedgerSettings{Backend: "relational"},
		SaltSeed: SaltSeedSettings{EnvVar: "SKIPLEDGER_SALT_SEED"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("Validate: expected error for missing relational.dsn, got nil")
	}
}

func TestValidateRejectsAmbiguousSaltSeedSource(t *testing.T) {
	cfg := &Config{
		Ledger: LedgerSettings{
			Backend:  "flatfile",
			FlatFile: FlatFileSettings{DataDir: "./data"},
		},
		SaltSeed: SaltSeedSettings{EnvVar: "A", FilePath: "/tmp/seed"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("Validate: expected error for both env_var and file_path set, got nil")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{
		Ledger: LedgerSettings{
			Backend:  "flatfile",
			FlatFile: FlatFileSettings{DataDir: "./data"},
		},
		SaltSeed: SaltSeedSettings{EnvVar: "SKIPLEDGER_SALT_SEED"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
