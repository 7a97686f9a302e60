// Package config loads the compiler settings shared by the CLIs.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"ice9c/pkg/compiler"
	"ice9c/pkg/optimize"
)

// Config holds the settings read from YAML and the ICE9_* environment.
type Config struct {
	Optimize      bool     `yaml:"optimize"`
	MaxPasses     int      `yaml:"max_passes"`
	DisabledRules []string `yaml:"disabled_rules"`
	LogLevel      string   `yaml:"log_level"`
	MaxSteps      int      `yaml:"max_steps"`
	Comments      bool     `yaml:"comments"`
}

// Default is used when no file is given.
func Default() Config {
	return Config{
		Optimize:  true,
		MaxPasses: optimize.DefaultMaxPasses,
		LogLevel:  "info",
	}
}

// Load reads path over the defaults and applies the ICE9_* environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := Parse(data, &c); err != nil {
			return c, fmt.Errorf("%s: %w", path, err)
		}
	}
	c.applyEnv()
	return c, c.Validate()
}

// Parse decodes YAML into c. Keys the document leaves out keep their
// current values; c is unchanged on error.
func Parse(data []byte, c *Config) error {
	dec := *c
	if err := yaml.Unmarshal(data, &dec); err != nil {
		return err
	}
	*c = dec
	return nil
}

func (c *Config) applyEnv() {
	if env.Has("ICE9_OPTIMIZE") {
		c.Optimize = env.Bool("ICE9_OPTIMIZE")
	}
	c.MaxPasses = env.Int("ICE9_MAX_PASSES", c.MaxPasses)
	c.MaxSteps = env.Int("ICE9_MAX_STEPS", c.MaxSteps)
	c.LogLevel = env.Str("ICE9_LOG_LEVEL", c.LogLevel)
}

// Validate rejects settings no component accepts.
func (c *Config) Validate() error {
	if c.MaxPasses < 0 {
		return fmt.Errorf("max_passes must not be negative, got %d", c.MaxPasses)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative, got %d", c.MaxSteps)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := optimize.New(optimize.Options{Disabled: c.DisabledRules}); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps log_level to a slog level. "trace" selects the
// optimizer's rewrite trace.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "trace":
		return optimize.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log_level %q", c.LogLevel)
}

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// CompileOptions translates the settings for compiler.Compile.
func (c *Config) CompileOptions(log *slog.Logger) compiler.Options {
	return compiler.Options{
		Optimize: c.Optimize,
		Optimizer: optimize.Options{
			MaxPasses: c.MaxPasses,
			Disabled:  c.DisabledRules,
			Logger:    log,
		},
		Comments: c.Comments,
		Logger:   log,
	}
}
