// Package config loads engine and CLI settings. Values are layered: built-in
// defaults, then an optional JSON config file, then TVA_* environment
// variables, then command-line flags applied by the caller.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/tva-lang/tva/internal/engine"
)

// Config represents the recognized configuration options.
type Config struct {
	Verbose       bool   `json:"verbose" env:"TVA_VERBOSE"`
	Debug         bool   `json:"debug" env:"TVA_DEBUG"`
	OutputChannel string `json:"output_channel" env:"TVA_OUTPUT_CHANNEL"`
	DebugChannel  string `json:"debug_channel" env:"TVA_DEBUG_CHANNEL"`
	SpawnCeiling  int    `json:"spawn_ceiling" env:"TVA_SPAWN_CEILING"`
	Workers       int    `json:"workers" env:"TVA_WORKERS"`
	OTelEndpoint  string `json:"otel_endpoint" env:"TVA_OTEL_ENDPOINT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := engine.DefaultOptions()
	return &Config{
		OutputChannel: opts.OutputChannel,
		DebugChannel:  opts.DebugChannel,
		SpawnCeiling:  opts.SpawnCeiling,
		Workers:       opts.Workers,
	}
}

// Load builds the configuration from defaults, the config file at path (a
// missing file is not an error) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Default config if file doesn't exist
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ParseEnv overlays environment variables onto target. Unset variables
// leave the existing values alone.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.OutputChannel == "" {
		errs = append(errs, errors.New("output_channel must not be empty"))
	}
	if c.DebugChannel == "" {
		errs = append(errs, errors.New("debug_channel must not be empty"))
	}
	if c.OutputChannel != "" && c.OutputChannel == c.DebugChannel {
		errs = append(errs, fmt.Errorf("output_channel and debug_channel are both %q", c.OutputChannel))
	}
	if c.SpawnCeiling <= 0 {
		errs = append(errs, fmt.Errorf("spawn_ceiling must be positive, got %d", c.SpawnCeiling))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// EngineOptions converts the configuration for the harness.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Verbose:       c.Verbose,
		OutputChannel: c.OutputChannel,
		DebugChannel:  c.DebugChannel,
		SpawnCeiling:  c.SpawnCeiling,
		Workers:       c.Workers,
	}
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
