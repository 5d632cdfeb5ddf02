// Package partitions splits an ordered element list into partitions that are
// processed independently, one worker per partition.
package partitions

import (
	"fmt"

	"github.com/notargets/DGField/mesh"
)

// Partition is a collection of elements processed together by one worker
type Partition struct {
	// Unique identifier for this partition
	ID int

	// Element membership, as indices into the partitioned list
	Elements    []int
	NumElements int // Actual number of elements
	MaxElements int // Largest partition size in the layout

	// Mixed element support
	TypeGroups []ElementGroup // Grouped by geometry, in order of first appearance
}

// ElementGroup represents elements of the same geometry within a partition
type ElementGroup struct {
	Geometry mesh.ElementGeometry
	Count    int
	LocalIDs []int // Indices within the partition's Elements
}

// PartitionLayout is the complete decomposition of an element list
type PartitionLayout struct {
	Partitions []Partition

	KpartMax      int // max(NumElements) across all partitions
	TotalElements int
	NumPartitions int

	// Element to partition mapping
	EToP []int // element k belongs to partition EToP[k]
}

// GetPartition returns the partition containing element k, or -1
func (pl *PartitionLayout) GetPartition(k int) int {
	if k < 0 || k >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[k]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions, NumPartitions %d", len(pl.Partitions), pl.NumPartitions)
	}
	if len(pl.EToP) != pl.TotalElements {
		return fmt.Errorf("EToP has %d entries for %d elements", len(pl.EToP), pl.TotalElements)
	}
	var (
		actualMax int
		total     int
	)
	for _, p := range pl.Partitions {
		if p.NumElements != len(p.Elements) {
			return fmt.Errorf("partition %d: NumElements %d != %d elements",
				p.ID, p.NumElements, len(p.Elements))
		}
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		for _, k := range p.Elements {
			if pl.GetPartition(k) != p.ID {
				return fmt.Errorf("element %d listed in partition %d, EToP says %d",
					k, p.ID, pl.GetPartition(k))
			}
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, expected %d", total, pl.TotalElements)
	}
	return nil
}

// PartitionStats summarises load balance
type PartitionStats struct {
	MinElements int
	MaxElements int
	AvgElements float64
	Imbalance   float64 // MaxElements / AvgElements
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	if pl.NumPartitions == 0 {
		return PartitionStats{}
	}
	stats := PartitionStats{MinElements: pl.Partitions[0].NumElements}
	for _, p := range pl.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}
	stats.AvgElements = float64(pl.TotalElements) / float64(pl.NumPartitions)
	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}
	return stats
}
