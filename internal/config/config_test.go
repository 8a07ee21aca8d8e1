package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("station-abc", "/home/user/.local/share/bodega")
	original.LogLevel = "debug"
	original.Backup.MaxRetained = 3
	original.Backup.OnExit = false
	original.Guard.ModelConfirmThreshold = 8
	original.Vaults = []VaultConfig{
		{Type: "filesystem", Name: "nas", FSVaultRoot: "/mnt/nas/bodega"},
		{Type: "s3", Name: "offsite", S3Bucket: "bodega-backups", S3Region: "us-east-1", S3Endpoint: "http://minio:9000"},
	}

	var buf bytes.Buffer
	m := &Manager{}
	require.NoError(t, m.Write(&buf, original))

	got, err := m.Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, original, got)
}

func TestManager_Read_AppliesDefaults(t *testing.T) {
	doc := `
station_id = "s1"
base_dir = "/data/bodega"

[database]
type = "memory"

[backup]
on_exit = false
`
	cfg, err := (&Manager{}).Read(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.True(t, cfg.Backup.Enabled)
	assert.True(t, cfg.Backup.OnStart)
	assert.False(t, cfg.Backup.OnExit, "explicit false must survive defaulting")
	assert.Equal(t, "/data/bodega/backups", cfg.Backup.Dir)
	assert.Equal(t, DefaultBackupPrefix, cfg.Backup.Prefix)
	assert.Equal(t, DefaultBackupExtension, cfg.Backup.Extension)
	assert.Equal(t, DefaultIntervalHours, cfg.Backup.IntervalHours)
	assert.Equal(t, DefaultMaxRetained, cfg.Backup.MaxRetained)
	assert.Equal(t, int64(DefaultMinSourceSizeBytes), cfg.Backup.MinSourceSizeBytes)
	assert.Equal(t, DefaultCheckIntervalMinutes, cfg.Backup.CheckIntervalMinutes)
	assert.Equal(t, DefaultModelConfirmThreshold, cfg.Guard.ModelConfirmThreshold)
	assert.Equal(t, "none", cfg.Encryption.Type)
	assert.NoError(t, cfg.Validate())
}

func TestManager_Read_InvalidTOML(t *testing.T) {
	_, err := (&Manager{}).Read(strings.NewReader("station_id = "))
	assert.Error(t, err)
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("station-1", "/data/bodega")

	assert.Equal(t, "station-1", cfg.StationID)
	assert.Equal(t, "/data/bodega/log", cfg.LogDir)
	assert.Equal(t, "/data/bodega/db/inventory.db", cfg.Database.Path())
	assert.Equal(t, "/data/bodega/backups", cfg.Backup.Dir)
	assert.Equal(t, "/data/bodega/keys/bodega.pub", cfg.Encryption.PublicKeyPath)
	assert.Equal(t, "/data/bodega/keys/bodega.key", cfg.Encryption.PrivateKeyPath)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing station", func(c *Config) { c.StationID = "" }, "station_id"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown database", func(c *Config) { c.Database.Type = "postgres" }, "unknown database type"},
		{"sqlite without data dir", func(c *Config) { c.Database.DataDir = "" }, "data_dir"},
		{"zero interval", func(c *Config) { c.Backup.IntervalHours = 0 }, "interval_hours"},
		{"zero retained", func(c *Config) { c.Backup.MaxRetained = 0 }, "max_retained"},
		{"negative min size", func(c *Config) { c.Backup.MinSourceSizeBytes = -1 }, "min_source_size_bytes"},
		{"dotted extension", func(c *Config) { c.Backup.Extension = ".db" }, "backup.extension"},
		{"prefix with separator", func(c *Config) { c.Backup.Prefix = "a/b" }, "backup.prefix"},
		{"prefix of safety copies", func(c *Config) { c.Backup.Prefix = "pre_restore" }, "reserved for pre-restore"},
		{"zero threshold", func(c *Config) { c.Guard.ModelConfirmThreshold = 0 }, "model_confirm_threshold"},
		{"unknown vault", func(c *Config) { c.Vaults = []VaultConfig{{Type: "ftp", Name: "x"}} }, "unknown vault type"},
		{"s3 without bucket", func(c *Config) { c.Vaults = []VaultConfig{{Type: "s3", Name: "x", S3Region: "eu-west-1"}} }, "s3_bucket"},
		{"duplicate vault names", func(c *Config) {
			c.Vaults = []VaultConfig{{Type: "memory", Name: "a"}, {Type: "memory", Name: "a"}}
		}, "duplicate vault name"},
		{"encrypt mirror without encryptor", func(c *Config) { c.Backup.EncryptMirror = true }, "encrypt_mirror"},
		{"unknown encryption", func(c *Config) { c.Encryption.Type = "rot13" }, "unknown encryption type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("s1", "/data/bodega")
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		cfg := NewConfig("", "/data/bodega")
		cfg.Backup.IntervalHours = 0

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "station_id")
		assert.Contains(t, err.Error(), "interval_hours")
	})
}

func TestConfig_Vault(t *testing.T) {
	cfg := NewConfig("s1", "/data")
	cfg.Vaults = []VaultConfig{{Type: "memory", Name: "mem"}}

	v, ok := cfg.Vault("mem")
	assert.True(t, ok)
	assert.Equal(t, "memory", v.Type)

	_, ok = cfg.Vault("missing")
	assert.False(t, ok)
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "bodega.toml")

		require.NoError(t, Init(path, NewConfig("s1", dir)))

		_, err := os.Stat(path)
		require.NoError(t, err)

		got, err := ReadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "s1", got.StationID)
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bodega.toml")
		cfg := NewConfig("s1", dir)

		require.NoError(t, Init(path, cfg))
		assert.Error(t, Init(path, cfg))
	})

	t.Run("refuses an invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bodega.toml")
		cfg := NewConfig("", dir)

		assert.Error(t, Init(path, cfg))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestReadFromFile_Missing(t *testing.T) {
	_, err := ReadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
