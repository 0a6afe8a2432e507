package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the runtime settings for the photo sorter. All fields have
// working defaults so a missing config file is not an error.
type Config struct {
	// DatabasePath is the sqlite catalog file.
	DatabasePath string `toml:"database_path"`
	// LogFile receives debug logging when enabled.
	LogFile string `toml:"log_file"`
	// BatchSize is the number of files committed per scan batch. Each batch
	// commit is the atomicity unit for resume.
	BatchSize int `toml:"batch_size"`
	// BackgroundThreshold is the file count above which a scan runs as a
	// background unit of work instead of blocking the caller.
	BackgroundThreshold int `toml:"background_threshold"`
	// DefaultThreshold is the similarity threshold used when the caller does
	// not pass one. Valid range is 1..30.
	DefaultThreshold int `toml:"default_threshold"`
	// HashWorkers bounds concurrent hash computations within a batch.
	HashWorkers int `toml:"hash_workers"`
	// TrashDirName is the per-folder trash directory used by the delete action.
	TrashDirName string `toml:"trash_dir_name"`
	// FavoritesDirName is the directory that receives favorite references.
	FavoritesDirName string `toml:"favorites_dir_name"`
	// BucketPrefixBits is the pHash prefix width used to bucket candidates
	// before pairwise comparison.
	BucketPrefixBits int `toml:"bucket_prefix_bits"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabasePath:        defaultDatabasePath(),
		LogFile:             "photosorter.log",
		BatchSize:           100,
		BackgroundThreshold: 100,
		DefaultThreshold:    10,
		HashWorkers:         0, // 0 means derive from CPU count
		TrashDirName:        ".trash",
		FavoritesDirName:    "favorites",
		BucketPrefixBits:    16,
	}
}

// Load reads a TOML config file and merges it over the defaults. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field ranges and fills derived values.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("config: database_path must not be empty")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be at least 1, got %d", c.BatchSize)
	}
	if c.BackgroundThreshold < 0 {
		return fmt.Errorf("config: background_threshold must not be negative, got %d", c.BackgroundThreshold)
	}
	if c.DefaultThreshold < 1 || c.DefaultThreshold > 30 {
		return fmt.Errorf("config: default_threshold must be in [1,30], got %d", c.DefaultThreshold)
	}
	if c.HashWorkers < 0 {
		return fmt.Errorf("config: hash_workers must not be negative, got %d", c.HashWorkers)
	}
	if c.BucketPrefixBits < 1 || c.BucketPrefixBits > 32 {
		return fmt.Errorf("config: bucket_prefix_bits must be in [1,32], got %d", c.BucketPrefixBits)
	}
	if c.TrashDirName == "" || c.FavoritesDirName == "" {
		return fmt.Errorf("config: trash_dir_name and favorites_dir_name must not be empty")
	}
	return nil
}

func defaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "photosorter.db"
	}
	return filepath.Join(filepath.Dir(exePath), "photosorter.db")
}
