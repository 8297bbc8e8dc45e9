// Package config loads the engine's runtime configuration: a YAML file
// merged with flags and environment variables, producing one effective,
// immutable Config.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings a melonsync deployment needs: the bundled
// reference remote store, the transaction write budget, the admin HTTP
// surface, and the vacuum schedule.
type Config struct {
	Store struct {
		// Path is the on-disk path for the bundled Pebble-backed reference
		// implementation of the remote document store.
		Path string `yaml:"path"`
		// WriteLimit is W, the remote store's maximum writes per
		// transaction/batch. Defaults to 500, the reference environment's
		// limit, but is overridable (mainly for tests that want to exercise
		// the side-batch path without staging thousands of rows).
		WriteLimit int `yaml:"write_limit"`
	} `yaml:"store"`

	Admin struct {
		Address string `yaml:"address"`
	} `yaml:"admin"`

	Vacuum struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
		// Handles lists the sync context handles the janitor sweeps for
		// orphaned side-batches. The store has no primitive for listing
		// every root document, so the set of handles to watch is
		// operator-configured rather than discovered.
		Handles []string `yaml:"handles"`
	} `yaml:"vacuum"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// DefaultWriteLimit is W in the reference environment.
const DefaultWriteLimit = 500

// Defaults returns a Config with the reference-environment defaults.
func Defaults() *Config {
	c := &Config{}
	c.Store.Path = "./data/melonsync"
	c.Store.WriteLimit = DefaultWriteLimit
	c.Admin.Address = ":8090"
	c.Vacuum.Enabled = true
	c.Vacuum.Cron = "0 3 * * *"
	c.RateLimit.RPS = 20
	c.RateLimit.Burst = 40
	return c
}

// Load reads a YAML config file at path into a copy of Defaults(). A
// missing path is not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Flags describes the command-line flags recognized by melonsync binaries.
type Flags struct {
	ConfigPath string
	StorePath  string
	Address    string
	WriteLimit int
}

// ParseFlags parses os.Args[1:] into Flags using the standard flag package.
// Flag parsing is centralized here rather than scattered across main().
func ParseFlags(args []string) Flags {
	fs := flag.NewFlagSet("melonsync", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to YAML config file")
	storePath := fs.String("store", "", "path to the bundled Pebble store")
	addr := fs.String("addr", "", "admin HTTP listen address")
	writeLimit := fs.Int("write-limit", 0, "remote store transaction write limit (W)")
	_ = fs.Parse(args)
	return Flags{
		ConfigPath: *cfgPath,
		StorePath:  *storePath,
		Address:    *addr,
		WriteLimit: *writeLimit,
	}
}

// Effective merges flags (highest priority), then environment variables,
// then the loaded file/defaults (lowest priority) into one Config.
func Effective(f Flags) (*Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(os.Getenv("MELONSYNC_STORE_PATH")); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("MELONSYNC_ADDR")); v != "" {
		cfg.Admin.Address = v
	}
	if v := strings.TrimSpace(os.Getenv("MELONSYNC_WRITE_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Store.WriteLimit = n
		}
	}

	if f.StorePath != "" {
		cfg.Store.Path = f.StorePath
	}
	if f.Address != "" {
		cfg.Admin.Address = f.Address
	}
	if f.WriteLimit > 0 {
		cfg.Store.WriteLimit = f.WriteLimit
	}

	if cfg.Store.WriteLimit <= 1 {
		return nil, fmt.Errorf("store.write_limit must be > 1, got %d", cfg.Store.WriteLimit)
	}
	return cfg, nil
}
