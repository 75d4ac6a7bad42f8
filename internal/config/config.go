// Package config loads the vnodefs configuration file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"vnodefs/internal/devfs"
	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvLogLevel    = "VNODEFS_LOG_LEVEL"
	EnvMount       = "VNODEFS_MOUNT"
	EnvWebDAVAddr  = "VNODEFS_WEBDAV_ADDR"
	EnvMetricsAddr = "VNODEFS_METRICS_ADDR"
	EnvState       = "VNODEFS_STATE"
)

// Config represents the application configuration
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Mount   MountConfig   `yaml:"mount"`
	WebDAV  WebDAVConfig  `yaml:"webdav"`
	Metrics MetricsConfig `yaml:"metrics"`
	State   StateConfig   `yaml:"state"`
	Root    RootConfig    `yaml:"root"`
	Devfs   DevfsConfig   `yaml:"devfs"`
	Ramfs   []RamfsMount  `yaml:"ramfs"`
	Hostfs  []HostfsMount `yaml:"hostfs"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	JSON       bool   `yaml:"json"`
}

type MountConfig struct {
	Point      string `yaml:"point"`
	AllowOther bool   `yaml:"allow_other"`
}

type WebDAVConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type StateConfig struct {
	Path string `yaml:"path"`
}

// RootConfig sizes the RAM filesystem mounted at "/".
type RootConfig struct {
	MaxSize ByteSize `yaml:"max_size"` // 0 means unlimited
}

// DevfsConfig places the device filesystem. An empty path disables it.
type DevfsConfig struct {
	Path        string `yaml:"path"`
	UrandomSeed uint64 `yaml:"urandom_seed"`
}

// RamfsMount is an extra RAM filesystem.
type RamfsMount struct {
	Path    string   `yaml:"path"`
	MaxSize ByteSize `yaml:"max_size"`
}

// HostfsMount serves a host directory read-only.
type HostfsMount struct {
	Path   string `yaml:"path"`
	Source string `yaml:"source"`
}

// ByteSize is a size in bytes that accepts values such as "64MiB".
type ByteSize uint64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	n, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("invalid size %q at line %d: %w", value.Value, value.Line, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

func (b ByteSize) String() string {
	if b == 0 {
		return "0"
	}
	return humanize.IBytes(uint64(b))
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Devfs: DevfsConfig{
			Path:        "/dev",
			UrandomSeed: devfs.DefaultUrandomSeed,
		},
		Ramfs: []RamfsMount{
			{Path: "/tmp"},
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays values from the given .env files and then from the
// process environment, which wins.
func (c *Config) ApplyEnv(envFiles ...string) error {
	values := map[string]string{}
	if len(envFiles) > 0 {
		data, err := godotenv.Read(envFiles...)
		if err != nil {
			return fmt.Errorf("failed to read env files: %w", err)
		}
		values = data
	}
	for _, key := range []string{EnvLogLevel, EnvMount, EnvWebDAVAddr, EnvMetricsAddr, EnvState} {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}

	if v, ok := values[EnvLogLevel]; ok {
		c.Log.Level = v
	}
	if v, ok := values[EnvMount]; ok {
		c.Mount.Point = v
	}
	if v, ok := values[EnvWebDAVAddr]; ok {
		c.WebDAV.Addr = v
	}
	if v, ok := values[EnvMetricsAddr]; ok {
		c.Metrics.Addr = v
	}
	if v, ok := values[EnvState]; ok {
		c.State.Path = v
	}
	return nil
}

// LogOptions converts the log section for logging.Configure.
func (c *Config) LogOptions() (logging.Options, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.Options{}, err
	}
	return logging.Options{
		Level:      level,
		JSON:       c.Log.JSON,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}, nil
}

// Validate reports every problem with the mount layout and log settings.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.LogOptions(); err != nil {
		errs = append(errs, err)
	}

	seen := map[string]bool{}
	check := func(kind, path string) {
		canonical := vfs.Canonicalize(path)
		switch {
		case !strings.HasPrefix(path, "/"):
			errs = append(errs, fmt.Errorf("%s mount path %q must be absolute", kind, path))
		case canonical == "/":
			errs = append(errs, fmt.Errorf("%s mount path %q would cover the root filesystem", kind, path))
		case seen[canonical]:
			errs = append(errs, fmt.Errorf("%s mount path %q is already used", kind, path))
		}
		seen[canonical] = true
	}

	if c.Devfs.Path != "" {
		check("devfs", c.Devfs.Path)
	}
	for _, m := range c.Ramfs {
		check("ramfs", m.Path)
	}
	for _, m := range c.Hostfs {
		check("hostfs", m.Path)
		if m.Source == "" {
			errs = append(errs, fmt.Errorf("hostfs mount %q has no source directory", m.Path))
		}
	}
	return errors.Join(errs...)
}
