package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/DGField/partitions"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "fieldprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	d := Default()
	assert.Equal(t, d.Log, cfg.Log)
	assert.Equal(t, d.Solver, cfg.Solver)
	assert.Equal(t, d.Ranges, cfg.Ranges)
	assert.Equal(t, d.Mesh, cfg.Mesh)
	assert.Empty(t, cfg.Probe.Points)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
solver:
  find_nearest: true
ranges:
  enabled: false
  workers: 2
  partitioning: round-robin
mesh:
  grid:
    nx: 3
    ny: 4
probe:
  points: ["0.5,0.5", "1,2"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Solver.FindNearest)
	assert.Equal(t, 1e-5, cfg.Solver.XiTolerance)
	assert.False(t, cfg.Ranges.Enabled)
	assert.Equal(t, 2, cfg.RangeOptions().Workers)
	assert.Equal(t, partitions.RoundRobin, cfg.RangeOptions().Partitioning)
	assert.Equal(t, GridConfig{NX: 3, NY: 4, Distortion: 0.3}, cfg.Mesh.Grid)
	assert.Equal(t, []string{"0.5,0.5", "1,2"}, cfg.Probe.Points)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("DGFIELD_SOLVER_XI_TOLERANCE", "1e-8")
	t.Setenv("DGFIELD_MESH_GRID_NX", "12")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1e-8, cfg.Solver.XiTolerance)
	assert.Equal(t, 12, cfg.Mesh.Grid.NX)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"format":     func(c *Config) { c.Log.Format = "xml" },
		"tolerance":  func(c *Config) { c.Solver.XiTolerance = 0.5 },
		"divisions":  func(c *Config) { c.Ranges.Divisions = 0 },
		"workers":    func(c *Config) { c.Ranges.Workers = -1 },
		"strategy":   func(c *Config) { c.Ranges.Partitioning = "metis" },
		"grid":       func(c *Config) { c.Mesh.Grid.NX = 0 },
		"distortion": func(c *Config) { c.Mesh.Grid.Distortion = 1 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Mesh.File = "cube.neu"
	cfg.Mesh.Grid.NX = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "solver:\n  xi_tolerance: 2\n"))
	assert.Error(t, err)
}
