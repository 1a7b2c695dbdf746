// Package config loads sqlsalvage settings from a YAML file and
// SQLSALVAGE_* environment variables.
//
// Precedence, lowest first: built-in defaults, config file, environment,
// command-line flags. The flags are applied by the CLI after Load.
//
// Example file:
//
//	page_size: 4096        # hint used when the header's page size is damaged
//	reserved_bytes: -1     # -1 trusts the header
//	cache_size: 256
//	wal: auto              # auto | off | /path/to/db-wal
//	log:
//	  level: info
//	  format: text
//	dump:
//	  compression: xz
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/sqlsalvage/core/salvage"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
	"github.com/FocuswithJustin/sqlsalvage/internal/logging"
)

// EnvPrefix prefixes every environment variable the package reads.
const EnvPrefix = "SQLSALVAGE_"

// FileName is the config file name searched for by FindConfigFile.
const FileName = "sqlsalvage.yaml"

// Config holds every setting a salvage run takes.
type Config struct {
	PageSize      int        `yaml:"page_size"`
	ReservedBytes int        `yaml:"reserved_bytes"`
	CacheSize     int        `yaml:"cache_size"`
	WAL           string     `yaml:"wal"`
	Log           LogConfig  `yaml:"log"`
	Dump          DumpConfig `yaml:"dump"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DumpConfig holds defaults for the dump command.
type DumpConfig struct {
	Compression string `yaml:"compression"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		PageSize:      0,
		ReservedBytes: -1,
		CacheSize:     256,
		WAL:           salvage.WalAuto,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Dump: DumpConfig{
			Compression: string(salvage.CompressionXZ),
		},
	}
}

// Load reads the YAML file at path over the defaults. Fields the file
// does not mention keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// FindConfigFile returns the first config file found, or "" if none.
// Search order:
//  1. ./sqlsalvage.yaml
//  2. ~/.config/sqlsalvage/config.yaml
func FindConfigFile() string {
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "sqlsalvage", "config.yaml"))
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// ApplyEnv overrides fields from SQLSALVAGE_* variables. Unparseable
// numbers are ignored.
func (c *Config) ApplyEnv() {
	c.PageSize = getEnvInt(EnvPrefix+"PAGE_SIZE", c.PageSize)
	c.ReservedBytes = getEnvInt(EnvPrefix+"RESERVED_BYTES", c.ReservedBytes)
	c.CacheSize = getEnvInt(EnvPrefix+"CACHE_SIZE", c.CacheSize)
	c.WAL = getEnv(EnvPrefix+"WAL", c.WAL)
	c.Log.Level = getEnv(EnvPrefix+"LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv(EnvPrefix+"LOG_FORMAT", c.Log.Format)
	c.Dump.Compression = getEnv(EnvPrefix+"DUMP_COMPRESSION", c.Dump.Compression)
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	if c.PageSize != 0 && !format.IsValidPageSize(c.PageSize) {
		return fmt.Errorf("invalid page size: %d", c.PageSize)
	}
	if c.ReservedBytes < -1 || c.ReservedBytes > 255 {
		return fmt.Errorf("invalid reserved bytes: %d", c.ReservedBytes)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("invalid cache size: %d", c.CacheSize)
	}
	if strings.TrimSpace(c.WAL) == "" {
		return fmt.Errorf("wal must be %q, %q or a path", salvage.WalAuto, salvage.WalOff)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return err
	}
	if _, err := salvage.ParseCompression(c.Dump.Compression); err != nil {
		return err
	}
	return nil
}

// SessionOptions converts the config into salvage session options.
func (c *Config) SessionOptions() salvage.Options {
	return salvage.Options{
		PageSize:      c.PageSize,
		ReservedBytes: c.ReservedBytes,
		CacheSize:     c.CacheSize,
		WAL:           c.WAL,
	}
}

// Logger returns the parsed log level and format. Call Validate first.
func (c *Config) Logger() (logging.Level, logging.Format) {
	level, _ := logging.ParseLevel(c.Log.Level)
	format, _ := logging.ParseFormat(c.Log.Format)
	return level, format
}

// String returns a one-line summary suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{PageSize: %d, ReservedBytes: %d, Cache: %d, WAL: %s, Log: %s/%s, Compression: %s}",
		c.PageSize, c.ReservedBytes, c.CacheSize, c.WAL, c.Log.Level, c.Log.Format, c.Dump.Compression)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}
