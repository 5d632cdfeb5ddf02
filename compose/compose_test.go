package compose

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/findxi"
	"github.com/notargets/DGField/logging"
	"github.com/notargets/DGField/mesh"
	"github.com/notargets/DGField/meshio"
	"github.com/notargets/DGField/meshrange"
	"github.com/notargets/DGField/metrics"
)

type fixture struct {
	grid        *mesh.Mesh
	coords      *field.FiniteElement
	temperature *field.FiniteElement // x + 2y on the grid
	probe       *mesh.Element        // line from (0.5,0.5) to (3.5,2.5)
	probeCoords *field.FiniteElement
}

func newFixture(t *testing.T) *fixture {
	grid, coords, err := meshio.Grid2D(4, 3, 0.4)
	require.NoError(t, err)
	temperature, err := field.NewFiniteElement("temperature", grid, 1)
	require.NoError(t, err)
	cache := field.NewCache()
	it := grid.CreateElementIterator()
	for e := it.Next(); e != nil; e = it.Next() {
		for _, n := range e.Nodes() {
			require.NoError(t, cache.SetNode(n))
			xy := cache.Evaluate(coords).Values
			require.NoError(t, temperature.SetNodeValues(n, xy[0]+2*xy[1]))
		}
	}

	line, err := mesh.NewMesh(1)
	require.NoError(t, err)
	nodes := line.CreateNodes(2)
	probe, err := line.CreateElement(mesh.Line, nodes)
	require.NoError(t, err)
	probeCoords, err := field.NewFiniteElement("probe", line, 2)
	require.NoError(t, err)
	require.NoError(t, probeCoords.SetNodeValues(nodes[0], 0.5, 0.5))
	require.NoError(t, probeCoords.SetNodeValues(nodes[1], 3.5, 2.5))

	return &fixture{grid: grid, coords: coords, temperature: temperature, probe: probe, probeCoords: probeCoords}
}

func TestCompose(t *testing.T) {
	fx := newFixture(t)
	met := metrics.New()
	ranges, err := meshrange.New(fx.grid, fx.coords, meshrange.Options{Metrics: met})
	require.NoError(t, err)
	defer ranges.Close()

	sampled, err := NewCompose("sampled", fx.probeCoords, fx.coords, fx.temperature, fx.grid,
		Options{Ranges: ranges, Metrics: met})
	require.NoError(t, err)
	assert.Equal(t, 1, sampled.NumberOfComponents())
	assert.Equal(t, 3, sampled.NumberOfSourceFields())

	cache := field.NewCache()
	for _, s := range []float64{0, 0.25, 0.5, 0.8, 1} {
		require.NoError(t, cache.SetMeshLocation(fx.probe, []float64{s}))
		vc := cache.Evaluate(sampled)
		require.NotNil(t, vc, "s=%g", s)
		x, y := 0.5+3*s, 0.5+2*s
		// Bilinear interpolation of a linear function of the distorted coordinates is exact
		assert.InDelta(t, x+2*y, vc.Values[0], 1e-4)
		assert.True(t, vc.HasExtraCache())
	}
	assert.Nil(t, cache.EvaluateDerivative(sampled, field.FirstDerivative(1)))
	assert.Equal(t, 5.0, testutil.ToFloat64(met.Searches.WithLabelValues(metrics.ResultExact)))
}

func TestComposeOutsideMesh(t *testing.T) {
	fx := newFixture(t)
	outside, err := field.NewConstant("outside", 5, 1)
	require.NoError(t, err)
	cache := field.NewCache()
	require.NoError(t, cache.SetMeshLocation(fx.probe, []float64{0}))

	exact, err := NewCompose("exact", outside, fx.coords, fx.temperature, fx.grid, Options{Metrics: metrics.New()})
	require.NoError(t, err)
	assert.Nil(t, cache.Evaluate(exact))

	nearest, err := NewCompose("nearest", outside, fx.coords, fx.temperature, fx.grid,
		Options{FindNearest: true, Metrics: metrics.New()})
	require.NoError(t, err)
	vc := cache.Evaluate(nearest)
	require.NotNil(t, vc)
	// Closest point of the grid is (4, 1) on its right edge
	assert.InDelta(t, 4+2*1, vc.Values[0], 1e-3)
}

func TestFindMeshLocation(t *testing.T) {
	fx := newFixture(t)
	met := metrics.New()
	loc, err := NewFindMeshLocation("where", fx.probeCoords, fx.coords, fx.grid, Options{Metrics: met})
	require.NoError(t, err)
	assert.Equal(t, 2, loc.NumberOfComponents())
	assert.Same(t, fx.coords, loc.SourceField(1))
	assert.Nil(t, loc.SourceField(2))

	cache := field.NewCache()
	require.NoError(t, cache.SetMeshLocation(fx.probe, []float64{0.5}))
	vc := cache.Evaluate(loc)
	require.NotNil(t, vc)
	e, xi, ok := MeshLocation(vc)
	require.True(t, ok)
	assert.Equal(t, xi, vc.Values)

	// Mapping the found location back reproduces the probe point (2, 1.5)
	back := field.NewCache()
	require.NoError(t, back.SetMeshLocation(e, xi))
	assert.InDeltaSlice(t, []float64{2, 1.5}, back.Evaluate(fx.coords).Values, 1e-5)

	// The next nearby evaluation starts from the remembered element
	before := testutil.ToFloat64(met.SolverInvocations)
	require.NoError(t, cache.SetMeshLocation(fx.probe, []float64{0.501}))
	require.NotNil(t, cache.Evaluate(loc))
	assert.Equal(t, before+1, testutil.ToFloat64(met.SolverInvocations))

	_, _, ok = MeshLocation(nil)
	assert.False(t, ok)
}

func TestConstructionErrors(t *testing.T) {
	fx := newFixture(t)
	scalar, _ := field.NewConstant("scalar", 1)

	_, err := NewCompose("c", scalar, fx.coords, fx.temperature, fx.grid, Options{})
	assert.Error(t, err)
	_, err = NewCompose("c", fx.probeCoords, fx.coords, nil, fx.grid, Options{})
	assert.Error(t, err)
	_, err = NewCompose("c", scalar, fx.temperature, fx.temperature, fx.grid, Options{})
	assert.Error(t, err, "2-D mesh cannot be searched with one value")
	_, err = NewFindMeshLocation("l", fx.probeCoords, fx.coords, nil, Options{})
	assert.Error(t, err)

	ranges, err := meshrange.New(fx.grid, fx.temperature, meshrange.Options{Metrics: metrics.New()})
	require.NoError(t, err)
	defer ranges.Close()
	_, err = NewFindMeshLocation("l", fx.probeCoords, fx.coords, fx.grid, Options{Ranges: ranges})
	assert.Error(t, err)
}

func TestComposeSharesRegistryRanges(t *testing.T) {
	fx := newFixture(t)
	met := metrics.New()
	registry := meshrange.NewRegistry(meshrange.Options{Metrics: met})
	defer registry.Clear()

	opts := Options{Registry: registry, Metrics: met}
	sampled, err := NewCompose("sampled", fx.probeCoords, fx.coords, fx.temperature, fx.grid, opts)
	require.NoError(t, err)
	where, err := NewFindMeshLocation("where", fx.probeCoords, fx.coords, fx.grid, opts)
	require.NoError(t, err)

	cache := field.NewCache()
	require.NoError(t, cache.SetMeshLocation(fx.probe, []float64{0.25}))
	require.NotNil(t, cache.Evaluate(sampled))
	require.NotNil(t, cache.Evaluate(where))

	// Both fields search the same (grid, coordinates) pair
	assert.Equal(t, 1, registry.Len())
	ranges, err := registry.Get(fx.grid, fx.coords)
	require.NoError(t, err)
	assert.True(t, ranges.IsValid())
	assert.Equal(t, 1.0, testutil.ToFloat64(met.RangeEvaluations))
}

// reshapedSet reports a dimension different from its mesh
type reshapedSet struct {
	mesh.Set
	dimension int
}

func (s *reshapedSet) Dimension() int { return s.dimension }

func TestSearchErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	defer logging.SetLogger(nil)

	fx := newFixture(t)
	set := &reshapedSet{Set: fx.grid, dimension: 2}
	where, err := NewFindMeshLocation("where", fx.probeCoords, fx.coords, set, Options{Metrics: metrics.New()})
	require.NoError(t, err)

	set.dimension = 3
	cache := field.NewCache()
	require.NoError(t, cache.SetMeshLocation(fx.probe, []float64{0.5}))
	assert.Nil(t, cache.Evaluate(where))

	failed := logs.FilterMessage("inverse search failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "where", failed[0].ContextMap()["field"])
	assert.ErrorIs(t, failed[0].Context[len(failed[0].Context)-1].Interface.(error), findxi.ErrInvalidArgument)
}
