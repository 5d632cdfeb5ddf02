// Command fieldprobe locates points in a mesh through its coordinate field
// and reports the per-element field ranges used to prune the search.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fieldprobe:", err)
		os.Exit(1)
	}
}
