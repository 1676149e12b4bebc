// Package config loads runtime settings for the circuit server and CLI.
//
// Precedence, lowest first: built-in defaults, the YAML file, CIRCUIT_*
// environment variables. Command-line flags are applied by the CLI on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CIRCUIT_"

// Config holds every runtime setting.
type Config struct {
	TickRateHz      int     `yaml:"tick_rate_hz"`       // wall-clock ticks per second
	BaseDT          float64 `yaml:"base_dt"`            // simulated seconds per tick at normal speed; 0 = 1/tick_rate_hz
	ListenAddr      string  `yaml:"listen_addr"`        // HTTP/websocket address; empty disables serving
	DBPath          string  `yaml:"db_path"`            // SQLite store
	CatalogDir      string  `yaml:"catalog_dir"`        // CUE catalog overriding built-in definitions; empty = built-ins
	InputRate       float64 `yaml:"input_rate"`         // inbound inputs per second per connection
	InputBurst      int     `yaml:"input_burst"`        // inbound input burst per connection
	MaxSendsPerTick int     `yaml:"max_sends_per_tick"` // per-node synchronizer quota; 0 = unlimited
	LogLevel        string  `yaml:"log_level"`          // debug, info, warn, error

	// AllowedOrigins lists browser origins accepted by the server.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		TickRateHz:      30,
		ListenAddr:      "127.0.0.1:8088",
		DBPath:          "circuit.db",
		InputRate:       20,
		InputBurst:      40,
		MaxSendsPerTick: 256,
		LogLevel:        "info",
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// decode parses YAML with strict field validation, catching typos like
// "tick_rate:" for "tick_rate_hz:".
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from CIRCUIT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}

	integer("TICK_RATE_HZ", &c.TickRateHz)
	float("BASE_DT", &c.BaseDT)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("DB_PATH", &c.DBPath)
	str("CATALOG_DIR", &c.CatalogDir)
	float("INPUT_RATE", &c.InputRate)
	integer("INPUT_BURST", &c.InputBurst)
	integer("MAX_SENDS_PER_TICK", &c.MaxSendsPerTick)
	str("LOG_LEVEL", &c.LogLevel)
	if v, ok := lookup(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	return errors.Join(errs...)
}

// Validate reports settings no component could run with.
func (c Config) Validate() error {
	var errs []error
	if c.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0, got %d", c.TickRateHz))
	}
	if c.BaseDT < 0 {
		errs = append(errs, fmt.Errorf("base_dt must be >= 0, got %v", c.BaseDT))
	}
	if c.InputRate <= 0 || c.InputBurst <= 0 {
		errs = append(errs, fmt.Errorf("input_rate and input_burst must be > 0"))
	}
	if c.MaxSendsPerTick < 0 {
		errs = append(errs, fmt.Errorf("max_sends_per_tick must be >= 0, got %d", c.MaxSendsPerTick))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Cadence is the wall-clock interval between ticks.
func (c Config) Cadence() time.Duration {
	return time.Second / time.Duration(c.TickRateHz)
}

// TickDT is the simulated seconds per tick at normal speed.
func (c Config) TickDT() float64 {
	if c.BaseDT > 0 {
		return c.BaseDT
	}
	return 1 / float64(c.TickRateHz)
}

// Level returns the configured log level. Invalid names were rejected by
// Validate; they map to info here.
func (c Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: must be debug, info, warn or error", name)
	}
	return l, nil
}
