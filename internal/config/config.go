/*
Package config loads the tdnetwatch configuration from a YAML file, with
environment variable overrides for secrets.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Scrape Scrape `yaml:"scrape"`
	AI     AI     `yaml:"ai"`
	Store  Store  `yaml:"store"`
	API    API    `yaml:"api"`
	Email  Email  `yaml:"email"`
	Log    Log    `yaml:"log"`
}

// Scrape configures the listing source and run cadence.
type Scrape struct {
	IndexURL    string `yaml:"index_url"`
	BaseURL     string `yaml:"base_url"`
	IntervalSec int    `yaml:"interval_sec"`
	BatchWidth  int    `yaml:"batch_width"`
	DedupDepth  int    `yaml:"dedup_depth"`
}

// Interval returns the scheduling interval as a duration.
func (s Scrape) Interval() time.Duration {
	return time.Duration(s.IntervalSec) * time.Second
}

// AI configures the Gemini analysis client.
type AI struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Store configures the SQLite database.
type Store struct {
	Path string `yaml:"path"`
}

// API configures the read-only HTTP surface.
type API struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// Email configures the per-run double-growth digest.
type Email struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	SMTPUser   string `yaml:"smtp_user"`
	SMTPPass   string `yaml:"smtp_pass"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
}

// Log configures logging output.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Scrape: Scrape{
			IndexURL:    "https://www.release.tdnet.info/inbs/I_main_00.html",
			BaseURL:     "https://www.release.tdnet.info/inbs/",
			IntervalSec: 600,
			BatchWidth:  3,
			DedupDepth:  500,
		},
		AI: AI{
			Model: "gemini-2.0-flash-lite",
		},
		Store: Store{
			Path: "tdnetwatch.db",
		},
		API: API{
			Addr:    ":8787",
			Enabled: true,
		},
		Email: Email{
			SMTPPort: 587,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML config file on top of the defaults and applies env
// overrides. An empty path returns defaults plus env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Secrets are taken from the environment when present so they can stay out
// of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.Email.SMTPPass = v
	}
}

func (c *Config) validate() error {
	if c.Scrape.IndexURL == "" || c.Scrape.BaseURL == "" {
		return fmt.Errorf("scrape.index_url and scrape.base_url must be set")
	}
	if c.Scrape.BatchWidth < 1 {
		return fmt.Errorf("scrape.batch_width must be at least 1, got %d", c.Scrape.BatchWidth)
	}
	if c.Scrape.DedupDepth < 1 {
		return fmt.Errorf("scrape.dedup_depth must be at least 1, got %d", c.Scrape.DedupDepth)
	}
	if c.Scrape.IntervalSec < 1 {
		return fmt.Errorf("scrape.interval_sec must be at least 1, got %d", c.Scrape.IntervalSec)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must be set")
	}
	return nil
}

// EmailEnabled reports whether enough SMTP settings are present to send the
// digest.
func (c *Config) EmailEnabled() bool {
	e := c.Email
	return e.SMTPServer != "" && e.SMTPUser != "" && e.SMTPPass != "" && e.ToEmail != ""
}
