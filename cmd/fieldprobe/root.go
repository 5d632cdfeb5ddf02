package main

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notargets/DGField/config"
	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/logging"
	"github.com/notargets/DGField/mesh"
	"github.com/notargets/DGField/meshio"
	"github.com/notargets/DGField/meshrange"
	"github.com/notargets/DGField/metrics"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// workspace is what every subcommand works on
type workspace struct {
	cfg      *config.Config
	mesh     *mesh.Mesh
	coords   *field.FiniteElement
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	ranges   *meshrange.Registry
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "fieldprobe",
		Short:         "Locate points in a finite element mesh",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (YAML)")
	pf.StringVar(&opts.logLevel, "log-level", "", "overrides log.level")

	cmd.AddCommand(newLocateCommand(opts), newRangesCommand(opts))
	return cmd
}

func (o *rootOptions) open() (*workspace, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logging.SetLogger(logger)

	ws := &workspace{cfg: cfg, metrics: metrics.New(), registry: prometheus.NewRegistry()}
	if err = ws.metrics.Register(ws.registry); err != nil {
		return nil, err
	}
	if cfg.Mesh.File != "" {
		ws.mesh, ws.coords, err = meshio.ReadGambitTets(cfg.Mesh.File)
	} else {
		g := cfg.Mesh.Grid
		ws.mesh, ws.coords, err = meshio.Grid2D(g.NX, g.NY, g.Distortion)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("mesh ready",
		zap.Stringer("mesh", ws.mesh.ID),
		zap.Int("dimension", ws.mesh.Dimension()),
		zap.Int("elements", ws.mesh.Size()))
	return ws, nil
}

// rangeRegistry shares coordinate ranges between searches, nil when disabled
func (ws *workspace) rangeRegistry() *meshrange.Registry {
	if !ws.cfg.Ranges.Enabled {
		return nil
	}
	if ws.ranges == nil {
		opts := ws.cfg.RangeOptions()
		opts.Metrics = ws.metrics
		ws.ranges = meshrange.NewRegistry(opts)
	}
	return ws.ranges
}

func (ws *workspace) close() {
	if ws.ranges != nil {
		ws.ranges.Clear()
	}
	_ = logging.Logger().Sync()
	logging.SetLogger(nil)
}

// printCounters writes every counter of the registry, sorted by name
func (ws *workspace) printCounters(cmd *cobra.Command) error {
	families, err := ws.registry.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += fmt.Sprintf("{%s=%q}", lp.GetName(), lp.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%-60s %g", name, m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
	return nil
}
