// Package config loads the settings of the fieldprobe tool: a YAML file
// with DGFIELD_ environment overrides (log.level -> DGFIELD_LOG_LEVEL).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/notargets/DGField/findxi"
	"github.com/notargets/DGField/logging"
	"github.com/notargets/DGField/meshrange"
	"github.com/notargets/DGField/partitions"
)

const envPrefix = "DGFIELD"

type Config struct {
	Log    logging.Config `mapstructure:"log"`
	Solver SolverConfig   `mapstructure:"solver"`
	Ranges RangesConfig   `mapstructure:"ranges"`
	Mesh   MeshConfig     `mapstructure:"mesh"`
	Probe  ProbeConfig    `mapstructure:"probe"`
}

type SolverConfig struct {
	XiTolerance float64 `mapstructure:"xi_tolerance"`
	FindNearest bool    `mapstructure:"find_nearest"`
}

type RangesConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Divisions int  `mapstructure:"divisions"`
	Workers   int  `mapstructure:"workers"` // 0 = GOMAXPROCS
	// Partitioning is "block" or "round-robin"
	Partitioning string `mapstructure:"partitioning"`
}

// MeshConfig selects a mesh file, or a generated grid when File is empty
type MeshConfig struct {
	File string     `mapstructure:"file"`
	Grid GridConfig `mapstructure:"grid"`
}

type GridConfig struct {
	NX         int     `mapstructure:"nx"`
	NY         int     `mapstructure:"ny"`
	Distortion float64 `mapstructure:"distortion"`
}

// ProbeConfig lists points to locate, each "x,y[,z]"
type ProbeConfig struct {
	Points []string `mapstructure:"points"`
}

// Default returns the configuration used for every unset key
func Default() Config {
	return Config{
		Log: logging.Config{Level: "info", Format: "console", OutputPaths: []string{"stderr"}},
		Solver: SolverConfig{
			XiTolerance: findxi.DefaultXiTolerance,
		},
		Ranges: RangesConfig{Enabled: true, Divisions: meshrange.DefaultDivisions, Partitioning: "block"},
		Mesh:   MeshConfig{Grid: GridConfig{NX: 8, NY: 8, Distortion: 0.3}},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default for environment overrides to reach Unmarshal
	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output_paths", d.Log.OutputPaths)
	v.SetDefault("solver.xi_tolerance", d.Solver.XiTolerance)
	v.SetDefault("solver.find_nearest", d.Solver.FindNearest)
	v.SetDefault("ranges.enabled", d.Ranges.Enabled)
	v.SetDefault("ranges.divisions", d.Ranges.Divisions)
	v.SetDefault("ranges.workers", d.Ranges.Workers)
	v.SetDefault("ranges.partitioning", d.Ranges.Partitioning)
	v.SetDefault("mesh.file", d.Mesh.File)
	v.SetDefault("mesh.grid.nx", d.Mesh.Grid.NX)
	v.SetDefault("mesh.grid.ny", d.Mesh.Grid.NY)
	v.SetDefault("mesh.grid.distortion", d.Mesh.Grid.Distortion)
	v.SetDefault("probe.points", d.Probe.Points)
	return v
}

// Load reads configPath, or only defaults and environment if it is empty
func Load(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
		}
	}
	return unmarshalAndFinalize(v)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills zero values that are never meaningful
func ApplyDefaults(cfg *Config) {
	d := Default()
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = d.Log.OutputPaths
	}
	if cfg.Solver.XiTolerance == 0 {
		cfg.Solver.XiTolerance = d.Solver.XiTolerance
	}
	if cfg.Ranges.Divisions == 0 {
		cfg.Ranges.Divisions = d.Ranges.Divisions
	}
}

func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q: want json or console", c.Log.Format)
	}
	if c.Solver.XiTolerance <= 0 || c.Solver.XiTolerance >= 0.1 {
		return fmt.Errorf("solver.xi_tolerance %g outside (0, 0.1)", c.Solver.XiTolerance)
	}
	if c.Ranges.Divisions < 1 {
		return fmt.Errorf("ranges.divisions %d < 1", c.Ranges.Divisions)
	}
	if c.Ranges.Workers < 0 {
		return fmt.Errorf("ranges.workers %d < 0", c.Ranges.Workers)
	}
	if _, err := partitions.ParseStrategy(c.Ranges.Partitioning); err != nil {
		return fmt.Errorf("ranges.partitioning: %w", err)
	}
	if c.Mesh.File == "" {
		g := c.Mesh.Grid
		if g.NX < 1 || g.NY < 1 {
			return fmt.Errorf("mesh.grid %dx%d: need at least one element per direction", g.NX, g.NY)
		}
		if g.Distortion < 0 || g.Distortion >= 1 {
			return fmt.Errorf("mesh.grid.distortion %g outside [0,1)", g.Distortion)
		}
	}
	return nil
}

// RangeOptions maps the ranges section onto meshrange options; c must be valid
func (c *Config) RangeOptions() meshrange.Options {
	strategy, _ := partitions.ParseStrategy(c.Ranges.Partitioning)
	return meshrange.Options{
		Divisions:    c.Ranges.Divisions,
		Workers:      c.Ranges.Workers,
		Partitioning: strategy,
	}
}
