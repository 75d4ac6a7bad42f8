package config

import (
	"os"
	"path/filepath"
	"testing"

	"vnodefs/internal/devfs"
	"vnodefs/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log:
  level: debug
  json: true
mount:
  point: /mnt/vnodefs
  allow_other: true
webdav:
  addr: ":8080"
root:
  max_size: 64MiB
devfs:
  urandom_seed: 42
ramfs:
  - path: /tmp
    max_size: 1 GB
  - path: /scratch
hostfs:
  - path: /host
    source: /srv/data
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 50, cfg.Log.MaxSizeMB, "defaults survive partial sections")
	assert.Equal(t, "/mnt/vnodefs", cfg.Mount.Point)
	assert.True(t, cfg.Mount.AllowOther)
	assert.Equal(t, ":8080", cfg.WebDAV.Addr)
	assert.Equal(t, ByteSize(64<<20), cfg.Root.MaxSize)
	assert.Equal(t, "/dev", cfg.Devfs.Path)
	assert.Equal(t, uint64(42), cfg.Devfs.UrandomSeed)
	assert.Equal(t, []RamfsMount{
		{Path: "/tmp", MaxSize: 1000 * 1000 * 1000},
		{Path: "/scratch"},
	}, cfg.Ramfs)
	assert.Equal(t, []HostfsMount{{Path: "/host", Source: "/srv/data"}}, cfg.Hostfs)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, uint64(devfs.DefaultUrandomSeed), cfg.Devfs.UrandomSeed)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "root:\n  max_size: lots\n"))
	assert.ErrorContains(t, err, "invalid size")

	_, err = Load(writeFile(t, "broken.yaml", "log: [\n"))
	assert.Error(t, err)
}

func TestByteSizeString(t *testing.T) {
	assert.Equal(t, "0", ByteSize(0).String())
	assert.Equal(t, "64 MiB", ByteSize(64<<20).String())
}

func TestApplyEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "VNODEFS_MOUNT=/from/file\nVNODEFS_STATE=/var/lib/state.json\nUNRELATED=1\n")
	t.Setenv(EnvMount, "/from/env")
	t.Setenv(EnvLogLevel, "trace")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(envFile))
	assert.Equal(t, "/from/env", cfg.Mount.Point)
	assert.Equal(t, "/var/lib/state.json", cfg.State.Path)
	assert.Equal(t, "trace", cfg.Log.Level)
	assert.Empty(t, cfg.WebDAV.Addr)

	assert.Error(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLogOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "WARN"
	cfg.Log.File = "/var/log/vnodefs.log"
	opts, err := cfg.LogOptions()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, opts.Level)
	assert.Equal(t, "/var/log/vnodefs.log", opts.File)
	assert.Equal(t, 3, opts.MaxBackups)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"relative path", func(c *Config) { c.Ramfs = append(c.Ramfs, RamfsMount{Path: "tmp2"}) }, "must be absolute"},
		{"root path", func(c *Config) { c.Ramfs = append(c.Ramfs, RamfsMount{Path: "/x/.."}) }, "cover the root"},
		{"duplicate", func(c *Config) { c.Hostfs = []HostfsMount{{Path: "/tmp/", Source: "/srv"}} }, "already used"},
		{"duplicate devfs", func(c *Config) { c.Ramfs = append(c.Ramfs, RamfsMount{Path: "/dev"}) }, "already used"},
		{"missing source", func(c *Config) { c.Hostfs = []HostfsMount{{Path: "/host"}} }, "no source"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}

	cfg := DefaultConfig()
	cfg.Devfs.Path = ""
	cfg.Ramfs = append(cfg.Ramfs, RamfsMount{Path: "/dev"})
	assert.NoError(t, cfg.Validate())
}
