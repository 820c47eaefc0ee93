// Package config loads the city's run configuration: YAML over built-in
// defaults, then environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

// Config is the complete run configuration.
type Config struct {
	World   WorldConfig   `yaml:"world"`
	Clock   ClockConfig   `yaml:"clock"`
	Growth  GrowthConfig  `yaml:"growth"`
	Economy EconomyConfig `yaml:"economy"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
	Log     LogConfig     `yaml:"log"`
}

// WorldConfig holds terrain generation parameters.
type WorldConfig struct {
	Rows     int   `yaml:"rows"`
	Cols     int   `yaml:"cols"`
	Seed     int64 `yaml:"seed"`
	Levels   int   `yaml:"levels"`
	SeaLevel int   `yaml:"sea_level"`
}

// ClockConfig sets simulated time against real time.
type ClockConfig struct {
	DaysPerSecond      float64 `yaml:"days_per_second"`
	ValvePeriodSeconds float64 `yaml:"valve_period_seconds"`
	TickIntervalMS     int     `yaml:"tick_interval_ms"`
	Speed              float64 `yaml:"speed"`
}

// GrowthConfig tunes the weekly growth pass.
type GrowthConfig struct {
	DemandWeight       float64 `yaml:"demand_weight"`
	ValveDemandDivisor float64 `yaml:"valve_demand_divisor"`
	LightIndustryOnly  bool    `yaml:"light_industry_only"`
}

// EconomyConfig selects difficulty, tax and valve limits.
type EconomyConfig struct {
	Difficulty  string         `yaml:"difficulty"`
	TaxLevel    int            `yaml:"tax_level"`
	ValveLimits economy.Limits `yaml:"valve_limits"`
}

// StorageConfig locates the run history database.
type StorageConfig struct {
	DBPath         string `yaml:"db_path"`
	FrameEveryDays int    `yaml:"frame_every_days"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port              int    `yaml:"port"`
	AdminKey          string `yaml:"admin_key"`
	Metrics           bool   `yaml:"metrics"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Default returns the configuration used when no file is given.
func Default() Config {
	gen := world.DefaultGenConfig()
	return Config{
		World: WorldConfig{
			Rows:     gen.Rows,
			Cols:     gen.Cols,
			Seed:     gen.Seed,
			Levels:   gen.Levels,
			SeaLevel: gen.SeaLevel,
		},
		Clock: ClockConfig{
			DaysPerSecond:      1.0,
			ValvePeriodSeconds: 2.0,
			TickIntervalMS:     100,
			Speed:              1.0,
		},
		Growth: GrowthConfig{
			DemandWeight:       0.5,
			ValveDemandDivisor: 20,
		},
		Economy: EconomyConfig{
			Difficulty:  "medium",
			TaxLevel:    7,
			ValveLimits: economy.DefaultLimits(),
		},
		Storage: StorageConfig{
			DBPath:         "data/gridcity.db",
			FrameEveryDays: 7,
		},
		API: APIConfig{
			Port:              8080,
			Metrics:           true,
			RequestsPerMinute: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GRIDCITY_DB, GRIDCITY_PORT,
// GRIDCITY_ADMIN_KEY, LOG_LEVEL and LOG_FORMAT.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("GRIDCITY_DB"); v != "" {
		c.Storage.DBPath = v
	}
	if v := getenv("GRIDCITY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRIDCITY_PORT: %w", err)
		}
		c.API.Port = port
	}
	if v := getenv("GRIDCITY_ADMIN_KEY"); v != "" {
		c.API.AdminKey = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.World.Rows <= 0 || c.World.Cols <= 0 {
		return fmt.Errorf("world rows and cols must be > 0")
	}
	if c.World.Levels < 1 {
		return fmt.Errorf("world levels must be >= 1")
	}
	if c.Clock.DaysPerSecond <= 0 {
		return fmt.Errorf("clock days_per_second must be > 0")
	}
	if c.Clock.ValvePeriodSeconds <= 0 {
		return fmt.Errorf("clock valve_period_seconds must be > 0")
	}
	if c.Clock.TickIntervalMS <= 0 {
		return fmt.Errorf("clock tick_interval_ms must be > 0")
	}
	if c.Clock.Speed < 0 {
		return fmt.Errorf("clock speed must be >= 0")
	}
	if c.Growth.DemandWeight < 0 || c.Growth.ValveDemandDivisor < 0 {
		return fmt.Errorf("growth weights must be >= 0")
	}
	if _, err := economy.ParseDifficulty(c.Economy.Difficulty); err != nil {
		return fmt.Errorf("economy: %w", err)
	}
	if c.Economy.TaxLevel < 0 || c.Economy.TaxLevel >= len(economy.TaxTable) {
		return fmt.Errorf("economy tax_level must be in [0, %d)", len(economy.TaxTable))
	}
	l := c.Economy.ValveLimits
	if l.Residential <= 0 || l.Commercial <= 0 || l.Industrial <= 0 {
		return fmt.Errorf("economy valve_limits must be > 0")
	}
	if c.Storage.FrameEveryDays < 0 {
		return fmt.Errorf("storage frame_every_days must be >= 0")
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port %d out of range", c.API.Port)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q must be text or json", c.Log.Format)
	}
	return nil
}

// GenConfig returns the world generation parameters.
func (c Config) GenConfig() world.GenConfig {
	return world.GenConfig{
		Rows:     c.World.Rows,
		Cols:     c.World.Cols,
		Seed:     c.World.Seed,
		Levels:   c.World.Levels,
		SeaLevel: c.World.SeaLevel,
	}
}

// NewEconomy builds the valve economy described by the economy section.
func (c Config) NewEconomy() (*economy.Economy, error) {
	d, err := economy.ParseDifficulty(c.Economy.Difficulty)
	if err != nil {
		return nil, err
	}
	e := economy.New(d, c.Economy.TaxLevel)
	e.Limits = c.Economy.ValveLimits
	return e, nil
}

// TickInterval returns the engine's base tick interval.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Clock.TickIntervalMS) * time.Millisecond
}

// SlogLevel maps the configured level name to a slog level. Unknown names
// fall back to info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
