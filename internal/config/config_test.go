package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/sqlsalvage/core/salvage"
	"github.com/FocuswithJustin/sqlsalvage/internal/logging"
)

var envVars = []string{
	"PAGE_SIZE", "RESERVED_BYTES", "CACHE_SIZE", "WAL",
	"LOG_LEVEL", "LOG_FORMAT", "DUMP_COMPRESSION",
}

// clearEnvVars blanks every variable ApplyEnv reads for the test's duration.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(EnvPrefix+v, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqlsalvage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0, cfg.PageSize)
	assert.Equal(t, -1, cfg.ReservedBytes)
	assert.Equal(t, 256, cfg.CacheSize)
	assert.Equal(t, salvage.WalAuto, cfg.WAL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "xz", cfg.Dump.Compression)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
page_size: 8192
cache_size: 16
wal: off
log:
  level: debug
dump:
  compression: none
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8192, cfg.PageSize)
	assert.Equal(t, 16, cfg.CacheSize)
	assert.Equal(t, salvage.WalOff, cfg.WAL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "none", cfg.Dump.Compression)

	// Unmentioned fields keep their defaults
	assert.Equal(t, -1, cfg.ReservedBytes)
	assert.Equal(t, "text", cfg.Log.Format)
	require.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "page_size: [1, 2\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := Load(writeConfig(t, "cache_size: lots\n"))
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("SQLSALVAGE_PAGE_SIZE", "1024")
	t.Setenv("SQLSALVAGE_RESERVED_BYTES", "8")
	t.Setenv("SQLSALVAGE_WAL", "/tmp/other-wal")
	t.Setenv("SQLSALVAGE_LOG_FORMAT", "json")
	t.Setenv("SQLSALVAGE_CACHE_SIZE", "not-a-number")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, 1024, cfg.PageSize)
	assert.Equal(t, 8, cfg.ReservedBytes)
	assert.Equal(t, "/tmp/other-wal", cfg.WAL)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 256, cfg.CacheSize, "unparseable numbers are ignored")
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestApplyEnvOverridesFile(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("SQLSALVAGE_DUMP_COMPRESSION", "none")

	cfg, err := Load(writeConfig(t, "dump:\n  compression: xz\n"))
	require.NoError(t, err)
	cfg.ApplyEnv()
	assert.Equal(t, "none", cfg.Dump.Compression)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid page size", func(c *Config) { c.PageSize = 65536 }, ""},
		{"invalid page size", func(c *Config) { c.PageSize = 1000 }, "invalid page size"},
		{"reserved bytes too large", func(c *Config) { c.ReservedBytes = 256 }, "invalid reserved bytes"},
		{"reserved bytes too small", func(c *Config) { c.ReservedBytes = -2 }, "invalid reserved bytes"},
		{"negative cache", func(c *Config) { c.CacheSize = -1 }, "invalid cache size"},
		{"empty wal", func(c *Config) { c.WAL = " " }, "wal must be"},
		{"wal path", func(c *Config) { c.WAL = "/data/app.db-wal" }, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "unknown log format"},
		{"bad compression", func(c *Config) { c.Dump.Compression = "zip" }, "zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSessionOptions(t *testing.T) {
	cfg := Default()
	cfg.PageSize = 4096
	cfg.WAL = salvage.WalOff

	opts := cfg.SessionOptions()
	assert.Equal(t, salvage.Options{PageSize: 4096, ReservedBytes: -1, CacheSize: 256, WAL: salvage.WalOff}, opts)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	level, format := cfg.Logger()
	assert.Equal(t, logging.LevelWarn, level)
	assert.Equal(t, logging.FormatJSON, format)
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())

	assert.Equal(t, "", FindConfigFile())

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("wal: off\n"), 0644))
	assert.Equal(t, FileName, FindConfigFile())
}

func TestString(t *testing.T) {
	s := Default().String()
	assert.Contains(t, s, "WAL: auto")
	assert.Contains(t, s, "Compression: xz")
}
