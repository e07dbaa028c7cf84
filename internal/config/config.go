package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eargollo/archiver/internal/ingest"
)

// Config holds all configuration loaded from archiver.yaml.
type Config struct {
	DBPath        string   `yaml:"db_path"`
	HTTPAddr      string   `yaml:"http_addr"`
	LogLevel      string   `yaml:"log_level"`
	FailurePolicy string   `yaml:"failure_policy"`
	PollInterval  Duration `yaml:"poll_interval"`
	MaxWait       Duration `yaml:"max_wait"`
	Walkers       int      `yaml:"walkers"`
	Jobs          []Job    `yaml:"jobs"`
}

// Job is a scheduled ingestion of a fixed set of paths into one profile.
type Job struct {
	Name     string   `yaml:"name"`
	Schedule string   `yaml:"schedule"`
	Profile  int64    `yaml:"profile"`
	Paths    []string `yaml:"paths"`
	Exclude  []string `yaml:"exclude"`
}

// Duration is a time.Duration written as "250ms", "2s", ... in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = v
	return nil
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "archiver.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = string(ingest.PolicySkip)
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval.Duration = 100 * time.Millisecond
	}
	if c.Walkers == 0 {
		c.Walkers = 4
	}
}

// applyEnv overlays environment variables. DATABASE_URL accepts a bare path
// or a sqlite:// URL.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DBPath = strings.TrimPrefix(v, "sqlite://")
	}
	if v := os.Getenv("ARCHIVER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ingest.ParsePolicy(c.FailurePolicy); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval.Duration < 0 || c.MaxWait.Duration < 0 {
		errs = append(errs, errors.New("poll_interval and max_wait must not be negative"))
	}
	for i, j := range c.Jobs {
		if j.Schedule == "" || j.Profile == 0 || len(j.Paths) == 0 {
			errs = append(errs, fmt.Errorf("jobs[%d] %q: schedule, profile and paths are required", i, j.Name))
		}
	}
	return errors.Join(errs...)
}

// Policy returns the parsed failure policy. Call after Validate.
func (c *Config) Policy() ingest.FailurePolicy {
	p, _ := ingest.ParsePolicy(c.FailurePolicy)
	return p
}

// LoadEnv reads a .env file into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env %q: %w", path, err)
	}
	return nil
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the binary
// works without one. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	var cfg Config
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config %q: %w", path, err)
	default:
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}
