package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRangesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "Print the coordinate range of every element",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := opts.open()
			if err != nil {
				return err
			}
			defer ws.close()
			ws.cfg.Ranges.Enabled = true
			ranges, err := ws.rangeRegistry().Get(ws.mesh, ws.coords)
			if err != nil {
				return err
			}
			if err = ranges.Evaluate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			it := ws.mesh.CreateElementIterator()
			for e := it.Next(); e != nil; e = it.Next() {
				if rg, ok := ranges.ElementRange(e); ok {
					fmt.Fprintf(out, "%v\t%.6g\t%.6g\n", e, rg.Min, rg.Max)
				} else {
					fmt.Fprintf(out, "%v\tundefined\n", e)
				}
			}
			if total, ok := ranges.TotalRange(); ok {
				fmt.Fprintf(out, "total\t%.6g\t%.6g\n", total.Min, total.Max)
			}
			fmt.Fprintf(out, "tolerance\t%.6g\n", ranges.Tolerance())
			return nil
		},
	}
}
