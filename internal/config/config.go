package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Ledger LedgerConfig
	Run    RunConfig
	API    APIConfig
}

// LedgerConfig selects and locates the dedup ledger and audit log.
type LedgerConfig struct {
	// Backend is "file" or "sqlite".
	Backend        string
	Path           string
	AuditPath      string `mapstructure:"audit_path"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// RunConfig holds per-run preferences remembered between launches.
type RunConfig struct {
	LastFile    string `mapstructure:"last_file"`
	ServiceName string `mapstructure:"service_name"`
	// ServiceMode is "custom" (fixed ServiceName) or "csv" (use the
	// order description column).
	ServiceMode string `mapstructure:"service_mode"`
	PaymentType string `mapstructure:"payment_type"`
}

// APIConfig holds NPD endpoint settings.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

const (
	DefaultServiceName = "Пополнение баланса в сервисе"
	ServiceModeCustom  = "custom"
	ServiceModeCSV     = "csv"
)

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "yookassa-to-npd")
}

// Load reads configuration from file and env. Env var overrides use prefix NPD_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("ledger.backend", "file")
	v.SetDefault("ledger.path", filepath.Join(dataDir(), "processed_ids.txt"))
	v.SetDefault("ledger.audit_path", filepath.Join(dataDir(), "import_log.jsonl"))
	v.SetDefault("ledger.migrations_path", "internal/ledger/migrations")
	v.SetDefault("run.last_file", "")
	v.SetDefault("run.service_name", DefaultServiceName)
	v.SetDefault("run.service_mode", ServiceModeCustom)
	v.SetDefault("run.payment_type", "CASH")
	v.SetDefault("api.base_url", "https://lknpd.nalog.ru/api/v1")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("NPD_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "yookassa-to-npd"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("NPD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if
// needed. Called once before a run starts so the last file path and service
// settings survive restarts. The token never goes here; see the secrets store.
func Save(cfg Config) error {
	path := os.Getenv("NPD_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "yookassa-to-npd", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("ledger.backend", cfg.Ledger.Backend)
	v.Set("ledger.path", cfg.Ledger.Path)
	v.Set("ledger.audit_path", cfg.Ledger.AuditPath)
	v.Set("ledger.migrations_path", cfg.Ledger.MigrationsPath)
	v.Set("run.last_file", cfg.Run.LastFile)
	v.Set("run.service_name", cfg.Run.ServiceName)
	v.Set("run.service_mode", cfg.Run.ServiceMode)
	v.Set("run.payment_type", cfg.Run.PaymentType)
	v.Set("api.base_url", cfg.API.BaseURL)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
