package partitions

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/DGField/mesh"
)

func TestBlockPartition(t *testing.T) {
	for _, tc := range []struct {
		n, target int
		sizes     []int
	}{
		{10, 4, []int{4, 3, 3}},
		{8, 4, []int{4, 4}},
		{3, 10, []int{3}},
		{0, 4, []int{0}},
	} {
		t.Run(fmt.Sprintf("N=%d/target=%d", tc.n, tc.target), func(t *testing.T) {
			pb := &PartitionBuilder{
				Elements:            ElementList{NumElements: tc.n},
				TargetPartitionSize: tc.target,
				Strategy:            BlockPartition,
			}
			layout, err := pb.BuildPartitions()
			if err != nil {
				t.Fatalf("BuildPartitions: %v", err)
			}
			require.Equal(t, len(tc.sizes), layout.NumPartitions)
			next := 0
			for i, p := range layout.Partitions {
				assert.Equal(t, tc.sizes[i], p.NumElements)
				// Blocks are contiguous and in order
				for _, k := range p.Elements {
					assert.Equal(t, next, k)
					next++
				}
			}
			assert.Equal(t, tc.n, next)
		})
	}
}

func TestRoundRobinPartition(t *testing.T) {
	pb := &PartitionBuilder{
		Elements:            ElementList{NumElements: 7},
		TargetPartitionSize: 3,
		Strategy:            RoundRobin,
	}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	require.Equal(t, 3, layout.NumPartitions)
	assert.Equal(t, []int{0, 3, 6}, layout.Partitions[0].Elements)
	assert.Equal(t, []int{1, 4}, layout.Partitions[1].Elements)
	assert.Equal(t, 3, layout.KpartMax)
	assert.Equal(t, 1, layout.GetPartition(4))
	assert.Equal(t, -1, layout.GetPartition(7))

	stats := layout.PartitionStatistics()
	assert.Equal(t, 2, stats.MinElements)
	assert.Equal(t, 3, stats.MaxElements)
	assert.InDelta(t, 3/(7./3), stats.Imbalance, 1e-12)
}

func TestMaxPartitions(t *testing.T) {
	pb := &PartitionBuilder{
		Elements:            ElementList{NumElements: 100},
		TargetPartitionSize: 1,
		MaxPartitions:       4,
	}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, 4, layout.NumPartitions)
	assert.Equal(t, 25, layout.KpartMax)
}

func TestTypeGroups(t *testing.T) {
	pb := &PartitionBuilder{
		Elements: ElementList{
			NumElements: 5,
			Geometries:  []mesh.ElementGeometry{mesh.Tet, mesh.Hex, mesh.Tet, mesh.Tet, mesh.Hex},
		},
		TargetPartitionSize: 5,
	}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	groups := layout.Partitions[0].TypeGroups
	require.Len(t, groups, 2)
	assert.Equal(t, mesh.Tet, groups[0].Geometry)
	assert.Equal(t, []int{0, 2, 3}, groups[0].LocalIDs)
	assert.Equal(t, 2, groups[1].Count)
}

func TestBuildPartitionsErrors(t *testing.T) {
	_, err := (&PartitionBuilder{Elements: ElementList{NumElements: 4}}).BuildPartitions()
	assert.Error(t, err)

	_, err = (&PartitionBuilder{
		Elements:            ElementList{NumElements: 4},
		TargetPartitionSize: 2,
		Strategy:            PartitionStrategy(9),
	}).BuildPartitions()
	assert.Error(t, err)

	_, err = (&PartitionBuilder{
		Elements:            ElementList{NumElements: 2, Geometries: []mesh.ElementGeometry{mesh.Tri}},
		TargetPartitionSize: 2,
	}).BuildPartitions()
	assert.Error(t, err)
}

func TestValidateLayoutDetectsMismatch(t *testing.T) {
	layout, err := (&PartitionBuilder{
		Elements:            ElementList{NumElements: 6},
		TargetPartitionSize: 2,
	}).BuildPartitions()
	require.NoError(t, err)
	layout.EToP[0] = 2
	assert.Error(t, layout.ValidateLayout())
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin} {
		parsed, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	parsed, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, BlockPartition, parsed)
	_, err = ParseStrategy("metis")
	assert.Error(t, err)
}
