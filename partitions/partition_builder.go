package partitions

import (
	"fmt"
	"math"

	"github.com/notargets/DGField/mesh"
)

// PartitionBuilder constructs partitions over an element list
type PartitionBuilder struct {
	Elements ElementList

	// Partitioning parameters
	TargetPartitionSize int // Desired elements per partition
	MaxPartitions       int // Upper bound on the partition count, 0 = none
	Strategy            PartitionStrategy
}

// ElementList describes the elements to partition. Geometries is optional;
// when present it has NumElements entries and drives TypeGroups.
type ElementList struct {
	NumElements int
	Geometries  []mesh.ElementGeometry
}

// ElementListOf describes a slice of mesh elements
func ElementListOf(elements []*mesh.Element) ElementList {
	el := ElementList{
		NumElements: len(elements),
		Geometries:  make([]mesh.ElementGeometry, len(elements)),
	}
	for i, e := range elements {
		el.Geometries[i] = e.Shape().Geometry()
	}
	return el
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "round-robin"
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// ParseStrategy is the inverse of String; empty means BlockPartition
func ParseStrategy(s string) (PartitionStrategy, error) {
	switch s {
	case "", "block":
		return BlockPartition, nil
	case "round-robin":
		return RoundRobin, nil
	}
	return 0, fmt.Errorf("unknown partition strategy %q", s)
}

// BuildPartitions creates a partition layout from the element list
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.Elements.NumElements < 0 {
		return nil, fmt.Errorf("negative element count %d", pb.Elements.NumElements)
	}
	if pb.TargetPartitionSize < 1 {
		return nil, fmt.Errorf("target partition size %d < 1", pb.TargetPartitionSize)
	}
	if g := pb.Elements.Geometries; g != nil && len(g) != pb.Elements.NumElements {
		return nil, fmt.Errorf("%d geometries for %d elements", len(g), pb.Elements.NumElements)
	}

	numPartitions := pb.calculateNumPartitions()
	eToP, err := pb.partitionElements(numPartitions)
	if err != nil {
		return nil, err
	}
	partitions := pb.createPartitions(eToP, numPartitions)

	kpartMax := pb.calculateKpartMax(partitions)
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.Elements.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// calculateNumPartitions determines the partition count, at least one and
// never more than the element count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	n := pb.Elements.NumElements
	numPartitions := int(math.Ceil(float64(n) / float64(pb.TargetPartitionSize)))
	if pb.MaxPartitions > 0 && numPartitions > pb.MaxPartitions {
		numPartitions = pb.MaxPartitions
	}
	if numPartitions > n {
		numPartitions = n
	}
	if numPartitions < 1 {
		numPartitions = 1
	}
	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	n := pb.Elements.NumElements
	eToP := make([]int, n)

	switch pb.Strategy {
	case BlockPartition:
		// Sizes differ by at most one, larger partitions first
		base, extra := n/numPartitions, n%numPartitions
		k := 0
		for p := 0; p < numPartitions; p++ {
			size := base
			if p < extra {
				size++
			}
			for i := 0; i < size; i++ {
				eToP[k] = p
				k++
			}
		}
	case RoundRobin:
		for i := 0; i < n; i++ {
			eToP[i] = i % numPartitions
		}
	default:
		return nil, fmt.Errorf("unknown partition strategy %v", pb.Strategy)
	}
	return eToP, nil
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i] = Partition{ID: i, Elements: make([]int, 0)}
	}
	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
	}
	for i := range partitions {
		p := &partitions[i]
		p.NumElements = len(p.Elements)
		if pb.Elements.Geometries != nil {
			p.TypeGroups = pb.createElementGroups(p)
		}
	}
	return partitions
}

// createElementGroups organizes elements by geometry within a partition
func (pb *PartitionBuilder) createElementGroups(p *Partition) []ElementGroup {
	var groups []ElementGroup
	index := make(map[mesh.ElementGeometry]int)
	for local, k := range p.Elements {
		g := pb.Elements.Geometries[k]
		gi, ok := index[g]
		if !ok {
			gi = len(groups)
			index[g] = gi
			groups = append(groups, ElementGroup{Geometry: g})
		}
		groups[gi].Count++
		groups[gi].LocalIDs = append(groups[gi].LocalIDs, local)
	}
	return groups
}

// calculateKpartMax finds maximum elements across all partitions
func (pb *PartitionBuilder) calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}
