package meshio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/DGField/field"
)

func TestGrid2D(t *testing.T) {
	m, coords, err := Grid2D(3, 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 6, m.Size())
	assert.Equal(t, 2, m.Dimension())

	cache := field.NewCache()
	e := m.FindElementByID(2*3 - 1) // (i,j) = (2,1)
	require.NotNil(t, e)
	require.NoError(t, cache.SetMeshLocation(e, []float64{1, 1}))
	vc := cache.Evaluate(coords)
	require.NotNil(t, vc)
	assert.Equal(t, []float64{3, 2}, vc.Values)

	// Interior node is displaced, boundary nodes are not
	interior, ok := coords.NodeValues(m.FindElementByID(0).Nodes()[3])
	require.True(t, ok)
	assert.NotEqual(t, []float64{1, 1}, interior)
	assert.InDelta(t, 1, interior[0], 0.125)
	edge, _ := coords.NodeValues(m.FindElementByID(0).Nodes()[1])
	assert.Equal(t, []float64{1, 0}, edge)
}

func TestGrid2DErrors(t *testing.T) {
	_, _, err := Grid2D(0, 2, 0)
	assert.Error(t, err)
	_, _, err = Grid2D(2, 2, 1)
	assert.Error(t, err)
}

func TestReadGambitTetsMissingFile(t *testing.T) {
	_, _, err := ReadGambitTets(filepath.Join(t.TempDir(), "missing.neu"))
	assert.Error(t, err)
}
