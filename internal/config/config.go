package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bodega-go/internal/backup"

	"github.com/BurntSushi/toml"
)

// Backup defaults. They mirror the settings the inventory application has
// always shipped with: a daily backup keeping the ten newest copies.
const (
	DefaultBackupPrefix          = "bodega_backup"
	DefaultBackupExtension       = "db"
	DefaultIntervalHours         = 24
	DefaultMaxRetained           = 10
	DefaultMinSourceSizeBytes    = 1024
	DefaultCheckIntervalMinutes  = 60
	DefaultModelConfirmThreshold = 5
	DefaultLogLevel              = "info"

	// DatabaseFileName is the inventory file inside the database data_dir.
	DatabaseFileName = "inventory.db"
)

// Config represents the main configuration for bodega.
type Config struct {
	StationID  string           `toml:"station_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"`
	Database   DatabaseConfig   `toml:"database"`
	Backup     BackupConfig     `toml:"backup"`
	Guard      GuardConfig      `toml:"guard"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// DatabaseConfig represents configuration for the inventory database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// Path returns the database file for type=sqlite, or ":memory:".
func (c DatabaseConfig) Path() string {
	if c.Type == "memory" {
		return ":memory:"
	}
	return filepath.Join(c.DataDir, DatabaseFileName)
}

// BackupConfig controls the local backup scheduler.
type BackupConfig struct {
	Enabled              bool   `toml:"enabled"`
	Dir                  string `toml:"dir"`
	Prefix               string `toml:"prefix"`
	Extension            string `toml:"extension"`
	IntervalHours        int    `toml:"interval_hours"`
	MaxRetained          int    `toml:"max_retained"`
	MinSourceSizeBytes   int64  `toml:"min_source_size_bytes"`
	OnStart              bool   `toml:"on_start"`
	OnExit               bool   `toml:"on_exit"`
	CheckIntervalMinutes int    `toml:"check_interval_minutes"`
	// Encrypt mirrored copies with the configured encryptor.
	EncryptMirror bool `toml:"encrypt_mirror"`
}

// GuardConfig tunes the deletion guard.
type GuardConfig struct {
	ModelConfirmThreshold int `toml:"model_confirm_threshold"`
}

// VaultConfig represents configuration for an off-site mirror of backup artifacts.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // S3-compatible services such as MinIO
	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for mirrored artifacts.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a new Config with the provided values and defaults for
// everything else.
func NewConfig(stationID, baseDir string) *Config {
	return &Config{
		StationID: stationID,
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		LogLevel:  DefaultLogLevel,
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Backup: BackupConfig{
			Enabled:              true,
			Dir:                  filepath.Join(baseDir, "backups"),
			Prefix:               DefaultBackupPrefix,
			Extension:            DefaultBackupExtension,
			IntervalHours:        DefaultIntervalHours,
			MaxRetained:          DefaultMaxRetained,
			MinSourceSizeBytes:   DefaultMinSourceSizeBytes,
			OnStart:              true,
			OnExit:               true,
			CheckIntervalMinutes: DefaultCheckIntervalMinutes,
		},
		Guard: GuardConfig{ModelConfirmThreshold: DefaultModelConfirmThreshold},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "bodega.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "bodega.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Keys missing from the
// document take their default values.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	applyDefaults(&cfg, md)
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config, md toml.MetaData) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Encryption.Type == "" {
		cfg.Encryption.Type = "none"
	}

	b := &cfg.Backup
	if !md.IsDefined("backup", "enabled") {
		b.Enabled = true
	}
	if !md.IsDefined("backup", "on_start") {
		b.OnStart = true
	}
	if !md.IsDefined("backup", "on_exit") {
		b.OnExit = true
	}
	if b.Dir == "" && cfg.BaseDir != "" {
		b.Dir = filepath.Join(cfg.BaseDir, "backups")
	}
	if b.Prefix == "" {
		b.Prefix = DefaultBackupPrefix
	}
	if b.Extension == "" {
		b.Extension = DefaultBackupExtension
	}
	if !md.IsDefined("backup", "interval_hours") {
		b.IntervalHours = DefaultIntervalHours
	}
	if !md.IsDefined("backup", "max_retained") {
		b.MaxRetained = DefaultMaxRetained
	}
	if !md.IsDefined("backup", "min_source_size_bytes") {
		b.MinSourceSizeBytes = DefaultMinSourceSizeBytes
	}
	if !md.IsDefined("backup", "check_interval_minutes") {
		b.CheckIntervalMinutes = DefaultCheckIntervalMinutes
	}
	if !md.IsDefined("guard", "model_confirm_threshold") {
		cfg.Guard.ModelConfirmThreshold = DefaultModelConfirmThreshold
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.StationID == "" {
		errs = append(errs, errors.New("station_id is required"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel))
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			errs = append(errs, errors.New("database.data_dir required for sqlite database"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database type: %s", c.Database.Type))
	}

	b := c.Backup
	if b.Enabled && b.Dir == "" {
		errs = append(errs, errors.New("backup.dir is required when backups are enabled"))
	}
	if b.Prefix == "" || strings.ContainsAny(b.Prefix, `/\`) {
		errs = append(errs, fmt.Errorf("backup.prefix %q must be a non-empty file name prefix", b.Prefix))
	} else if b.Prefix == backup.PreRestorePrefix {
		errs = append(errs, fmt.Errorf("backup.prefix %q is reserved for pre-restore safety copies", b.Prefix))
	}
	if b.Extension == "" || strings.ContainsAny(b.Extension, `/\.`) {
		errs = append(errs, fmt.Errorf("backup.extension %q must be a bare extension such as \"db\"", b.Extension))
	}
	if b.IntervalHours <= 0 {
		errs = append(errs, fmt.Errorf("backup.interval_hours must be positive, got %d", b.IntervalHours))
	}
	if b.MaxRetained < 1 {
		errs = append(errs, fmt.Errorf("backup.max_retained must be at least 1, got %d", b.MaxRetained))
	}
	if b.MinSourceSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("backup.min_source_size_bytes must not be negative, got %d", b.MinSourceSizeBytes))
	}
	if b.CheckIntervalMinutes <= 0 {
		errs = append(errs, fmt.Errorf("backup.check_interval_minutes must be positive, got %d", b.CheckIntervalMinutes))
	}

	if c.Guard.ModelConfirmThreshold <= 0 {
		errs = append(errs, fmt.Errorf("guard.model_confirm_threshold must be positive, got %d", c.Guard.ModelConfirmThreshold))
	}

	names := make(map[string]bool)
	for i, v := range c.Vaults {
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("vaults[%d]: name is required", i))
		} else if names[v.Name] {
			errs = append(errs, fmt.Errorf("vaults[%d]: duplicate vault name %q", i, v.Name))
		}
		names[v.Name] = true

		switch v.Type {
		case "memory":
		case "filesystem":
			if v.FSVaultRoot == "" {
				errs = append(errs, fmt.Errorf("vaults[%d]: fs_vault_root required for filesystem vault", i))
			}
		case "s3":
			if v.S3Bucket == "" {
				errs = append(errs, fmt.Errorf("vaults[%d]: s3_bucket required for s3 vault", i))
			}
			if v.S3Region == "" {
				errs = append(errs, fmt.Errorf("vaults[%d]: s3_region required for s3 vault", i))
			}
		default:
			errs = append(errs, fmt.Errorf("vaults[%d]: unknown vault type: %s", i, v.Type))
		}
	}

	switch c.Encryption.Type {
	case "none":
		if b.EncryptMirror {
			errs = append(errs, errors.New("backup.encrypt_mirror requires an encryption type other than none"))
		}
	case "age":
		if c.Encryption.PublicKeyPath == "" || c.Encryption.PrivateKeyPath == "" {
			errs = append(errs, errors.New("encryption.public_key_path and private_key_path are required for age"))
		}
	case "test":
	default:
		errs = append(errs, fmt.Errorf("unknown encryption type: %s", c.Encryption.Type))
	}

	return errors.Join(errs...)
}

// Vault returns the vault configuration with the given name.
func (c *Config) Vault(name string) (VaultConfig, bool) {
	for _, v := range c.Vaults {
		if v.Name == name {
			return v, true
		}
	}
	return VaultConfig{}, false
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file. An existing file is never overwritten.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
