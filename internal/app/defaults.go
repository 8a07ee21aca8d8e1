package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that relocate bodega's files, for example onto a
// shared drive at a plant workstation.
const (
	EnvConfigPath = "BODEGA_CONFIG_PATH"
	EnvHome       = "BODEGA_HOME"
)

// Paths are the locations used before a config file has been read.
// Everything else (database, backups, logs) is derived from BaseDir by
// config.NewConfig and recorded in the config file.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// DefaultPaths resolves Paths from the environment, falling back to
// ~/.config/bodega.toml and ~/.local/share/bodega.
func DefaultPaths() (Paths, error) {
	configPath, err := fromEnvOrHome(EnvConfigPath, ".config", "bodega.toml")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := fromEnvOrHome(EnvHome, ".local", "share", "bodega")
	if err != nil {
		return Paths{}, err
	}
	return Paths{ConfigPath: configPath, BaseDir: baseDir}, nil
}

func fromEnvOrHome(env string, rel ...string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%s is unset and the home directory is unknown: %w", env, err)
	}
	return filepath.Join(append([]string{home}, rel...)...), nil
}
