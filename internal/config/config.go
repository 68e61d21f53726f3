// Package config loads the harness configuration file (wess-e2e.yaml).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/wess-dev/wess-e2e/internal/client"
	"github.com/wess-dev/wess-e2e/internal/fixture"
	"github.com/wess-dev/wess-e2e/internal/wessconf"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "wess-e2e.yaml"

// Service describes how to launch the service under test and where it leaves
// its artifacts. Binary, Dir and OutputLog are relative to the harness
// working directory. ConfigFile, AuditLog and StorageDir are files the
// service itself reads and writes, so relative values resolve against Dir.
type Service struct {
	Binary     string            `yaml:"binary"`
	Args       []string          `yaml:"args"`
	Dir        string            `yaml:"dir"`
	Env        map[string]string `yaml:"env"`
	ConfigFile string            `yaml:"config_file"`
	AuditLog   string            `yaml:"audit_log"`
	StorageDir string            `yaml:"storage_dir"`
	OutputLog  string            `yaml:"output_log"`
	// GracePeriod bounds the wait between SIGTERM and SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period"`
}

// Readiness controls how the harness decides the service is up.
type Readiness struct {
	Disabled bool          `yaml:"disabled"`
	Path     string        `yaml:"path"`
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
	Settle   time.Duration `yaml:"settle"`
}

// Fixtures locates the module byte files.
type Fixtures struct {
	PathTemplate string `yaml:"path_template"`
	Placeholder  string `yaml:"placeholder"`
}

// Config represents a parsed wess-e2e.yaml file.
type Config struct {
	Service        Service           `yaml:"service"`
	Test           wessconf.Settings `yaml:"test"`
	Prod           wessconf.Settings `yaml:"prod"`
	Readiness      Readiness         `yaml:"readiness"`
	Fixtures       Fixtures          `yaml:"fixtures"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	Features       []string          `yaml:"features"`
	Tags           string            `yaml:"tags"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config at path, applies defaults for every
// omitted field and validates the result. A missing file yields Default().
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	s := &c.Service
	if s.Dir == "" {
		s.Dir = "."
	}
	if s.ConfigFile == "" {
		s.ConfigFile = "wess.toml"
	}
	if s.AuditLog == "" {
		s.AuditLog = "wess.log"
	}
	if s.StorageDir == "" {
		s.StorageDir = "rocksdb/dev"
	}
	if s.OutputLog == "" {
		s.OutputLog = ".wess-e2e/service.log"
	}
	if s.GracePeriod == 0 {
		s.GracePeriod = 5 * time.Second
	}
	s.ConfigFile = s.inDir(s.ConfigFile)
	s.AuditLog = s.inDir(s.AuditLog)
	s.StorageDir = s.inDir(s.StorageDir)

	fillSettings(&c.Test, wessconf.TestSettings)
	fillSettings(&c.Prod, wessconf.ProdSettings)

	r := &c.Readiness
	if r.Path == "" {
		r.Path = "/metrics"
	}
	if r.Timeout == 0 {
		r.Timeout = 10 * time.Second
	}
	if r.Interval == 0 {
		r.Interval = 200 * time.Millisecond
	}

	if c.Fixtures.PathTemplate == "" {
		c.Fixtures.PathTemplate = fixture.DefaultPathTemplate
	}
	if c.Fixtures.Placeholder == "" {
		c.Fixtures.Placeholder = fixture.DefaultPlaceholder
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = client.DefaultTimeout
	}
	if len(c.Features) == 0 {
		c.Features = []string{"features"}
	}
}

func fillSettings(s *wessconf.Settings, def wessconf.Settings) {
	if s.Stage == "" {
		s.Stage = def.Stage
	}
	if s.Address == "" {
		s.Address = def.Address
	}
	if s.Port == 0 {
		s.Port = def.Port
	}
}

// Validate checks ports and durations. The service binary is checked
// separately by Service.Validate since runs against an already running
// service do not need one.
func (c *Config) Validate() error {
	for name, s := range map[string]wessconf.Settings{"test": c.Test, "prod": c.Prod} {
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("%s.port %d out of range 1-65535", name, s.Port)
		}
	}
	if c.Readiness.Timeout < 0 || c.Readiness.Interval < 0 || c.Readiness.Settle < 0 {
		return fmt.Errorf("readiness durations must not be negative")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.Service.GracePeriod < 0 {
		return fmt.Errorf("service.grace_period must not be negative")
	}
	return nil
}

func (s Service) inDir(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Dir, path)
}

// Validate checks that the service can be launched.
func (s Service) Validate() error {
	if s.Binary == "" {
		return fmt.Errorf("service.binary is required")
	}
	return nil
}

// BaseURL is the origin the service listens on during the run.
func (c *Config) BaseURL() string {
	return "http://" + net.JoinHostPort(c.Test.Address, strconv.Itoa(c.Test.Port))
}
