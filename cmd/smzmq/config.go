package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML configuration given with -config.
// Flags set on the command line override it.
type fileConfig struct {
	Wasm       string        `yaml:"wasm"`
	Entry      string        `yaml:"entry"`
	For        time.Duration `yaml:"for"`
	MaxPollers int           `yaml:"max_pollers"`
	Exclusive  bool          `yaml:"exclusive"`
	Verbose    bool          `yaml:"verbose"`
	Metrics    string        `yaml:"metrics"`
}

func (c *fileConfig) validate() error {
	if c.MaxPollers < 0 {
		return errors.New("max_pollers must not be negative")
	}
	if c.For < 0 {
		return errors.New("for must not be negative")
	}
	return nil
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// apply copies every value whose flag was not given explicitly.
func (c *fileConfig) apply(opts *options, set map[string]bool) {
	if !set["wasm"] {
		opts.wasmFile = c.Wasm
	}
	if !set["entry"] {
		opts.entry = c.Entry
	}
	if !set["for"] {
		opts.duration = c.For
	}
	if !set["max-pollers"] {
		opts.maxPollers = c.MaxPollers
	}
	if !set["exclusive"] {
		opts.exclusive = c.Exclusive
	}
	if !set["v"] {
		opts.verbose = c.Verbose
	}
	if !set["metrics"] {
		opts.metrics = c.Metrics
	}
}

func explicitFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
