// Package config loads fixture engine settings.
//
// Settings are resolved in three layers: built-in defaults, an optional YAML
// file, then environment variables. Command-line flags are applied on top by
// the CLI.
//
//	FIXTURES_DRIVER:       sqlite|postgres (default sqlite)
//	FIXTURES_DSN:          data source name (default fixtures.db)
//	FIXTURES_OWNER:        owner identity created by install (default fixtures_owner)
//	FIXTURES_CALLER:       caller identity recorded on sqlite (default $USER)
//	FIXTURES_LOCK_TIMEOUT: admission wait bound, Go duration (default 30s)
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Driver identifies a concrete store dialect.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Environment variable names.
const (
	EnvDriver      = "FIXTURES_DRIVER"
	EnvDSN         = "FIXTURES_DSN"
	EnvOwner       = "FIXTURES_OWNER"
	EnvCaller      = "FIXTURES_CALLER"
	EnvLockTimeout = "FIXTURES_LOCK_TIMEOUT"
)

// Namespaces names the three namespaces the engine owns.
type Namespaces struct {
	API      string `yaml:"api"`
	Internal string `yaml:"internal"`
	Cache    string `yaml:"cache"`
}

// Config holds all engine settings.
type Config struct {
	Driver      Driver        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	Owner       string        `yaml:"owner"`
	Caller      string        `yaml:"caller"`
	Namespaces  Namespaces    `yaml:"namespaces"`
	DataSchemas []string      `yaml:"data_schemas"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	caller := os.Getenv("USER")
	if caller == "" {
		caller = "fixtures"
	}
	return Config{
		Driver: DriverSQLite,
		DSN:    "fixtures.db",
		Owner:  "fixtures_owner",
		Caller: caller,
		Namespaces: Namespaces{
			API:      "fixtures",
			Internal: "fixtures_internal",
			Cache:    "fixtures_cache",
		},
		DataSchemas: []string{"public"},
		LockTimeout: 30 * time.Second,
	}
}

// Load resolves the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var file Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if file.Driver != "" {
		c.Driver = file.Driver
	}
	if file.DSN != "" {
		c.DSN = file.DSN
	}
	if file.Owner != "" {
		c.Owner = file.Owner
	}
	if file.Caller != "" {
		c.Caller = file.Caller
	}
	if file.Namespaces.API != "" {
		c.Namespaces.API = file.Namespaces.API
	}
	if file.Namespaces.Internal != "" {
		c.Namespaces.Internal = file.Namespaces.Internal
	}
	if file.Namespaces.Cache != "" {
		c.Namespaces.Cache = file.Namespaces.Cache
	}
	if len(file.DataSchemas) > 0 {
		c.DataSchemas = file.DataSchemas
	}
	if file.LockTimeout != 0 {
		c.LockTimeout = file.LockTimeout
	}
	return nil
}

func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDriver); ok && v != "" {
		c.Driver = Driver(v)
	}
	if v, ok := lookup(EnvDSN); ok && v != "" {
		c.DSN = v
	}
	if v, ok := lookup(EnvOwner); ok && v != "" {
		c.Owner = v
	}
	if v, ok := lookup(EnvCaller); ok && v != "" {
		c.Caller = v
	}
	if v, ok := lookup(EnvLockTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLockTimeout, err)
		}
		c.LockTimeout = d
	}
	return nil
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown driver %q: must be %s or %s", c.Driver, DriverSQLite, DriverPostgres)
	}
	if c.DSN == "" {
		return errors.New("dsn is required")
	}
	if c.Owner == "" {
		return errors.New("owner is required")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive, got %s", c.LockTimeout)
	}
	names := []struct {
		field, name string
		hidden      bool
	}{
		{"namespaces.api", c.Namespaces.API, false},
		{"namespaces.internal", c.Namespaces.Internal, true},
		{"namespaces.cache", c.Namespaces.Cache, true},
	}
	for i, a := range names {
		if a.name == "" {
			return fmt.Errorf("%s is required", a.field)
		}
		for _, b := range names[:i] {
			if a.name == b.name {
				return fmt.Errorf("%s and %s both use %q", a.field, b.field, a.name)
			}
		}
	}
	// SQLite keeps every namespace in one schema as "<ns>_" table prefixes,
	// matched case-insensitively. A hidden prefix must not cover another
	// namespace's tables.
	if c.Driver == DriverSQLite {
		for _, h := range names {
			if !h.hidden {
				continue
			}
			for _, n := range names {
				if n.field != h.field && coversPrefix(h.name, n.name) {
					return fmt.Errorf("%s %q overlaps %s %q: table prefix %q would hide its tables",
						h.field, h.name, n.field, n.name, h.name+"_")
				}
			}
		}
	}
	return nil
}

// coversPrefix reports whether tables named "<other>_..." start with the
// "<ns>_" prefix.
func coversPrefix(ns, other string) bool {
	return strings.HasPrefix(strings.ToLower(other)+"_", strings.ToLower(ns)+"_")
}
