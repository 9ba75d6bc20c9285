// Package config loads cfgvault settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/illarion/cfgvault/internal/crypto"
)

// Environment variables that override file settings
const (
	EnvConfig       = "CFGVAULT_CONFIG"
	EnvDataDir      = "CFGVAULT_DATA_DIR"
	EnvCipher       = "CFGVAULT_CIPHER"
	EnvIterations   = "CFGVAULT_KDF_ITERATIONS"
	EnvLogLevel     = "CFGVAULT_LOG_LEVEL"
	EnvLogFormat    = "CFGVAULT_LOG_FORMAT"
	DefaultFileName = "cfgvault.yaml"
)

// DefaultSensitivePatterns are matched case-insensitively against key names
var DefaultSensitivePatterns = []string{
	"token", "secret", "password", "passwd", "api_key", "apikey", "credential", "private_key",
}

// Config holds all settings
type Config struct {
	DataDir           string       `yaml:"data_dir"`
	KeyFile           string       `yaml:"key_file"`
	VaultFile         string       `yaml:"vault_file"`
	SafeViewFile      string       `yaml:"safe_view_file"`
	BackupDir         string       `yaml:"backup_dir"`
	SchemaFile        string       `yaml:"schema_file"`
	KDFIterations     int          `yaml:"kdf_iterations"`
	Cipher            string       `yaml:"cipher"`
	SensitivePatterns []string     `yaml:"sensitive_patterns"`
	Backup            BackupConfig `yaml:"backup"`
	Log               LogConfig    `yaml:"log"`
}

// BackupConfig controls automatic backups
type BackupConfig struct {
	Schedule string `yaml:"schedule"`
	Keep     int    `yaml:"keep"`
}

// LogConfig controls slog output
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir:           "DATA_STORAGE",
		KeyFile:           ".secret.key",
		VaultFile:         "config.vault",
		SafeViewFile:      "bot_config.json",
		BackupDir:         "backups",
		KDFIterations:     crypto.DefaultIters,
		Cipher:            crypto.DefaultSuite.String(),
		SensitivePatterns: append([]string(nil), DefaultSensitivePatterns...),
		Backup: BackupConfig{
			Schedule: "@every 24h",
			Keep:     7,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path falls back to $CFGVAULT_CONFIG and
// then to ./cfgvault.yaml; a missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvCipher); v != "" {
		c.Cipher = v
	}
	if v := os.Getenv(EnvIterations); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvIterations, err)
		}
		c.KDFIterations = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	return nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.KeyFile == "" || c.VaultFile == "" {
		errs = append(errs, errors.New("key_file and vault_file must be set"))
	}
	if c.KeyFile == c.VaultFile {
		errs = append(errs, errors.New("key_file and vault_file must differ"))
	}
	if c.KDFIterations < crypto.MinIterations {
		errs = append(errs, fmt.Errorf("kdf_iterations must be at least %d", crypto.MinIterations))
	}
	if _, err := crypto.ParseSuite(c.Cipher); err != nil {
		errs = append(errs, err)
	}
	if c.Backup.Keep < 0 {
		errs = append(errs, errors.New("backup.keep must not be negative"))
	}
	if c.Backup.Schedule != "" {
		if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid backup.schedule: %w", err))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Suite returns the parsed cipher suite
func (c *Config) Suite() crypto.Suite {
	s, err := crypto.ParseSuite(c.Cipher)
	if err != nil {
		return crypto.DefaultSuite
	}
	return s
}

func (c *Config) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// KeyPath returns the key file location
func (c *Config) KeyPath() string { return c.resolve(c.KeyFile) }

// VaultPath returns the vault file location
func (c *Config) VaultPath() string { return c.resolve(c.VaultFile) }

// SafeViewPath returns the safe view location, or "" when disabled
func (c *Config) SafeViewPath() string { return c.resolve(c.SafeViewFile) }

// BackupPath returns the backup directory
func (c *Config) BackupPath() string { return c.resolve(c.BackupDir) }

// SchemaPath returns the custom schema file, or "" for the built-in schema
func (c *Config) SchemaPath() string { return c.resolve(c.SchemaFile) }
