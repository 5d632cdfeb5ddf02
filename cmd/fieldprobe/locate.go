package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/findxi"
)

func newLocateCommand(opts *rootOptions) *cobra.Command {
	var nearest bool
	cmd := &cobra.Command{
		Use:   "locate [x,y[,z] ...]",
		Short: "Find the element and xi of each point",
		Long:  "Find the element and xi of each point given as arguments, or of probe.points when there are none.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.open()
			if err != nil {
				return err
			}
			defer ws.close()
			if cmd.Flags().Changed("nearest") {
				ws.cfg.Solver.FindNearest = nearest
			}
			if len(args) == 0 {
				args = ws.cfg.Probe.Points
			}
			points := make([][]float64, len(args))
			for i, a := range args {
				if points[i], err = parsePoint(a, ws.mesh.Dimension()); err != nil {
					return err
				}
			}
			return locate(cmd, ws, points)
		},
	}
	cmd.Flags().BoolVar(&nearest, "nearest", false, "report the nearest location of points outside the mesh")
	return cmd
}

func parsePoint(s string, dim int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != dim {
		return nil, fmt.Errorf("point %q: want %d comma separated coordinates", s, dim)
	}
	p := make([]float64, dim)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", s, err)
		}
		p[i] = v
	}
	return p, nil
}

func locate(cmd *cobra.Command, ws *workspace, points [][]float64) error {
	cache := field.NewCache()
	xiCache := findxi.NewCache()
	out := cmd.OutOrStdout()
	for _, p := range points {
		res, err := findxi.FindElementXi(findxi.Request{
			Field:       ws.coords,
			Cache:       cache,
			Values:      p,
			SearchMesh:  ws.mesh,
			Registry:    ws.rangeRegistry(),
			XiCache:     xiCache,
			FindNearest: ws.cfg.Solver.FindNearest,
			XiTolerance: ws.cfg.Solver.XiTolerance,
			Metrics:     ws.metrics,
		})
		if err != nil {
			return err
		}
		switch {
		case !res.Found:
			fmt.Fprintf(out, "%v\tnot found\n", p)
		case res.Exact:
			fmt.Fprintf(out, "%v\telement %d\txi %.6g\texact\n", p, res.Element.ID(), res.Xi)
		default:
			fmt.Fprintf(out, "%v\telement %d\txi %.6g\tnearest\tdistance %.6g\n",
				p, res.Element.ID(), res.Xi, res.DistanceSquared)
		}
	}
	return ws.printCounters(cmd)
}
