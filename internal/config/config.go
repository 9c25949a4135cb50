package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr   string `yaml:"http_addr"`
	HealthAddr string `yaml:"health_addr"` // gRPC health service; "" disables it

	// DB
	Env            string `yaml:"env"`              // "dev" | "prod"
	DBPath         string `yaml:"db_path"`          // e.g. "./data/gatehouse.db"
	TrainingDBPath string `yaml:"training_db_path"` // "" keeps training in memory

	LogLevel string `yaml:"log_level"`

	// Site
	TimeZone string `yaml:"time_zone"`
	Shift    Shift  `yaml:"shift"`

	ManualJustificationMin int    `yaml:"manual_justification_min"`
	DepartedMarker         string `yaml:"departed_marker"`

	Overdue   Overdue   `yaml:"overdue"`
	RateLimit RateLimit `yaml:"rate_limit"`

	Operators []Operator `yaml:"operators"`
}

type Shift struct {
	Epoch    string   `yaml:"epoch"`    // calendar date of ALFA's first day
	Boundary string   `yaml:"boundary"` // HH:MM local
	Names    []string `yaml:"names"`
}

type Overdue struct {
	Threshold time.Duration `yaml:"threshold"` // 0 disables the notifier
	Interval  time.Duration `yaml:"interval"`
}

// RateLimit caps mutating requests per operator.
type RateLimit struct {
	PerMinute float64 `yaml:"per_minute"` // 0 = unlimited
	Burst     int     `yaml:"burst"`
}

type Operator struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities"`
	SecretHash   string   `yaml:"secret_hash"`
}

func Default() Config {
	return Config{
		HTTPAddr:   ":8080",
		HealthAddr: ":8081",
		Env:        "dev",
		DBPath:     "./data/gatehouse.db",
		LogLevel:   "info",
		TimeZone:   "America/Manaus",
		Shift: Shift{
			Epoch:    "2025-01-01",
			Boundary: "07:30",
			Names:    []string{"ALFA", "BRAVO", "CHARLIE", "DELTA"},
		},
		ManualJustificationMin: 200,
		DepartedMarker:         "Egresso: ",
		Overdue: Overdue{
			Threshold: 10 * time.Hour,
			Interval:  15 * time.Minute,
		},
		RateLimit: RateLimit{PerMinute: 120, Burst: 20},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then GATEHOUSE_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Load without a file.
func FromEnv() (Config, error) { return Load("") }

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("GATEHOUSE_HTTP_ADDR", &c.HTTPAddr)
	if v, ok := lookup("GATEHOUSE_HEALTH_ADDR"); ok {
		c.HealthAddr = strings.TrimSpace(v)
	}
	str("GATEHOUSE_ENV", &c.Env)
	str("GATEHOUSE_DB_PATH", &c.DBPath)
	if v, ok := lookup("GATEHOUSE_TRAINING_DB_PATH"); ok {
		c.TrainingDBPath = strings.TrimSpace(v)
	}
	str("GATEHOUSE_LOG_LEVEL", &c.LogLevel)
	str("GATEHOUSE_TIME_ZONE", &c.TimeZone)
	str("GATEHOUSE_SHIFT_EPOCH", &c.Shift.Epoch)
	str("GATEHOUSE_SHIFT_BOUNDARY", &c.Shift.Boundary)
	if v, ok := lookup("GATEHOUSE_SHIFT_NAMES"); ok {
		if names := splitCSV(v); len(names) > 0 {
			c.Shift.Names = names
		}
	}
	c.ManualJustificationMin = getenvInt(lookup, "GATEHOUSE_MANUAL_JUSTIFICATION_MIN", c.ManualJustificationMin)
	if v, ok := lookup("GATEHOUSE_DEPARTED_MARKER"); ok && v != "" {
		c.DepartedMarker = v
	}
	c.Overdue.Threshold = getenvDuration(lookup, "GATEHOUSE_OVERDUE_THRESHOLD", c.Overdue.Threshold)
	c.Overdue.Interval = getenvDuration(lookup, "GATEHOUSE_OVERDUE_INTERVAL", c.Overdue.Interval)
	if v, ok := lookup("GATEHOUSE_RATE_PER_MINUTE"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
			c.RateLimit.PerMinute = f
		}
	}
	c.RateLimit.Burst = getenvInt(lookup, "GATEHOUSE_RATE_BURST", c.RateLimit.Burst)

	c.Env = strings.ToLower(c.Env)
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
}

func (c Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("time_zone: %w", err))
	}
	if len(c.Shift.Names) != 4 {
		errs = append(errs, fmt.Errorf("shift.names: want 4, got %d", len(c.Shift.Names)))
	}
	if c.ManualJustificationMin < 1 {
		errs = append(errs, errors.New("manual_justification_min must be positive"))
	}
	if c.Overdue.Threshold < 0 || c.Overdue.Interval < 0 {
		errs = append(errs, errors.New("overdue durations must not be negative"))
	}
	if c.RateLimit.PerMinute > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate_limit.burst must be at least 1"))
	}
	seen := make(map[string]bool, len(c.Operators))
	for i, op := range c.Operators {
		id := strings.TrimSpace(op.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("operators[%d]: id is required", i))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("operators[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
	}
	return errors.Join(errs...)
}

// Location loads the site time zone. Validate has already checked it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvInt(lookup lookupFunc, key string, def int) int {
	v, _ := lookup(key)
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvDuration(lookup lookupFunc, key string, def time.Duration) time.Duration {
	v, _ := lookup(key)
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
