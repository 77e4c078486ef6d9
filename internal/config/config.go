package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tordrt/megamerge/internal/db"
	"github.com/tordrt/megamerge/internal/schema"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "MEGAMERGE_"

// Config represents the application configuration
type Config struct {
	BatchSize               int           `yaml:"batch_size"`
	IdentitySubstrings      []string      `yaml:"identity_substrings"`
	ExcludedTableSubstrings []string      `yaml:"excluded_table_substrings"`
	NormalizeTimeout        time.Duration `yaml:"normalize_timeout"`
	MergeTimeout            time.Duration `yaml:"merge_timeout"`
	DeleteOnAttachFailure   bool          `yaml:"delete_on_attach_failure"`
	LogLevel                string        `yaml:"log_level"`
	LogFormat               string        `yaml:"log_format"`
	ReportFormat            string        `yaml:"report_format"`
	ReportPath              string        `yaml:"report_path"`
	ReportURL               string        `yaml:"report_url"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		BatchSize:               10,
		IdentitySubstrings:      []string{"id", "ID"},
		ExcludedTableSubstrings: []string{"sqlite_"},
		NormalizeTimeout:        10 * time.Second,
		MergeTimeout:            15 * time.Second,
		LogLevel:                "info",
		LogFormat:               "console",
		ReportFormat:            "text",
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. the YAML file at path, or ~/.config/megamerge/config.yaml when path is empty
// 4. built-in defaults
//
// An explicitly named file must exist; the default one is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := loadYAMLConfig(cfg, path); err != nil {
		return nil, err
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultPath returns ~/.config/megamerge/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "megamerge", "config.yaml"), nil
}

func loadYAMLConfig(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := getEnv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sBATCH_SIZE %q: %w", EnvPrefix, v, err)
		}
		cfg.BatchSize = n
	}
	if v := getEnv("IDENTITY_SUBSTRINGS"); v != "" {
		cfg.IdentitySubstrings = splitList(v)
	}
	if v := getEnv("EXCLUDED_TABLES"); v != "" {
		cfg.ExcludedTableSubstrings = splitList(v)
	}
	if v := getEnv("NORMALIZE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sNORMALIZE_TIMEOUT %q: %w", EnvPrefix, v, err)
		}
		cfg.NormalizeTimeout = d
	}
	if v := getEnv("MERGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sMERGE_TIMEOUT %q: %w", EnvPrefix, v, err)
		}
		cfg.MergeTimeout = d
	}
	if v := getEnv("DELETE_ON_ATTACH_FAILURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDELETE_ON_ATTACH_FAILURE %q: %w", EnvPrefix, v, err)
		}
		cfg.DeleteOnAttachFailure = b
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getEnv("REPORT_FORMAT"); v != "" {
		cfg.ReportFormat = v
	}
	if v := getEnv("REPORT_PATH"); v != "" {
		cfg.ReportPath = v
	}
	if v := getEnvOrFile("REPORT_URL"); v != "" {
		cfg.ReportURL = v
	}
	return nil
}

func getEnv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(name string) string {
	if val := getEnv(name); val != "" {
		return val
	}

	if filePath := getEnv(name + "_FILE"); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// splitList splits a comma separated value, dropping empty entries
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Validate rejects settings the merge cannot run with
func (c *Config) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > db.MaxAttached {
		return fmt.Errorf("batch_size must be between 1 and %d, got %d", db.MaxAttached, c.BatchSize)
	}
	if len(c.IdentitySubstrings) == 0 {
		return errors.New("identity_substrings must not be empty")
	}
	for _, s := range c.IdentitySubstrings {
		if s == "" {
			return errors.New("identity_substrings must not contain empty entries")
		}
	}
	if c.NormalizeTimeout <= 0 {
		return fmt.Errorf("normalize_timeout must be positive, got %s", c.NormalizeTimeout)
	}
	if c.MergeTimeout <= 0 {
		return fmt.Errorf("merge_timeout must be positive, got %s", c.MergeTimeout)
	}
	return nil
}

// Filter returns the table and column filter described by the configuration
func (c *Config) Filter() schema.Filter {
	return schema.Filter{
		ExcludedTableSubstrings: append([]string(nil), c.ExcludedTableSubstrings...),
		IdentitySubstrings:      append([]string(nil), c.IdentitySubstrings...),
	}
}
