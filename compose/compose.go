// Package compose provides fields that evaluate another field at a location
// found by inverting a field over a search mesh.
package compose

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/findxi"
	"github.com/notargets/DGField/logging"
	"github.com/notargets/DGField/mesh"
	"github.com/notargets/DGField/meshrange"
	"github.com/notargets/DGField/metrics"
)

// Options of the inverse search done by every evaluation
type Options struct {
	FindNearest bool
	// Ranges of the find field over the search mesh. When nil the ranges
	// come from Registry, and without either the search is unpruned.
	Ranges      *meshrange.Ranges
	Registry    *meshrange.Registry
	XiTolerance float64
	Metrics     *metrics.Metrics
}

// locator is shared by Compose and FindMeshLocation: it finds where find
// takes given values and leaves the extra cache of vc at that location
type locator struct {
	name       string
	components int
	sources    []field.Field
	find       field.Field
	searchMesh mesh.Set
	opts       Options
}

// state is kept in ValueCache.State
type state struct {
	xiCache *findxi.Cache
	element *mesh.Element
	xi      []float64
}

func newLocator(name string, components int, find field.Field, searchMesh mesh.Set, opts Options, sources ...field.Field) (locator, error) {
	for i, s := range sources {
		if s == nil {
			return locator{}, fmt.Errorf("field %q: source field %d is nil", name, i)
		}
	}
	if searchMesh == nil {
		return locator{}, fmt.Errorf("field %q: nil search mesh", name)
	}
	if searchMesh.Dimension() > find.NumberOfComponents() {
		return locator{}, fmt.Errorf("field %q: search mesh dimension %d exceeds %d components of %q",
			name, searchMesh.Dimension(), find.NumberOfComponents(), find.Name())
	}
	if r := opts.Ranges; r != nil && (r.Field() != find || r.Set() != searchMesh) {
		return locator{}, fmt.Errorf("field %q: ranges are not for %q over the search mesh", name, find.Name())
	}
	return locator{
		name:       name,
		components: components,
		sources:    sources,
		find:       find,
		searchMesh: searchMesh,
		opts:       opts,
	}, nil
}

func (l *locator) Name() string              { return l.name }
func (l *locator) NumberOfComponents() int   { return l.components }
func (l *locator) NumberOfSourceFields() int { return len(l.sources) }

func (l *locator) SourceField(i int) field.Field {
	if i < 0 || i >= len(l.sources) {
		return nil
	}
	return l.sources[i]
}

// EvaluateDerivative is not available through an inverse search
func (l *locator) EvaluateDerivative(*field.Cache, *field.ValueCache, field.Derivative, *field.DerivativeValueCache) bool {
	return false
}

func (l *locator) locate(cache *field.Cache, vc *field.ValueCache, values []float64) (*state, bool) {
	st, _ := vc.State.(*state)
	if st == nil {
		st = &state{xiCache: findxi.NewCache()}
		vc.State = st
	}
	st.element, st.xi = nil, nil

	extra := vc.ExtraCache()
	extra.SetTime(cache.Time())
	res, err := findxi.FindElementXi(findxi.Request{
		Field:       l.find,
		Cache:       extra,
		Values:      values,
		SearchMesh:  l.searchMesh,
		Ranges:      l.opts.Ranges,
		Registry:    l.opts.Registry,
		XiCache:     st.xiCache,
		FindNearest: l.opts.FindNearest,
		XiTolerance: l.opts.XiTolerance,
		Metrics:     l.opts.Metrics,
	})
	if err != nil {
		logging.Logger().Warn("inverse search failed",
			zap.String("field", l.name),
			zap.String("find", l.find.Name()),
			zap.Float64s("values", values),
			zap.Error(err))
		return st, false
	}
	if !res.Found {
		return st, false
	}
	if err = extra.SetMeshLocation(res.Element, res.Xi); err != nil {
		return st, false
	}
	st.element, st.xi = res.Element, res.Xi
	return st, true
}

// Compose evaluates calculate where find equals the value of texture at the
// current location
type Compose struct {
	locator
	texture, calculate field.Field
}

func NewCompose(name string, texture, find, calculate field.Field, searchMesh mesh.Set, opts Options) (*Compose, error) {
	if texture == nil || find == nil || calculate == nil {
		return nil, fmt.Errorf("field %q: nil source field", name)
	}
	if texture.NumberOfComponents() != find.NumberOfComponents() {
		return nil, fmt.Errorf("field %q: texture %q has %d components, find %q has %d", name,
			texture.Name(), texture.NumberOfComponents(), find.Name(), find.NumberOfComponents())
	}
	l, err := newLocator(name, calculate.NumberOfComponents(), find, searchMesh, opts, texture, find, calculate)
	if err != nil {
		return nil, err
	}
	return &Compose{locator: l, texture: texture, calculate: calculate}, nil
}

func (c *Compose) Evaluate(cache *field.Cache, vc *field.ValueCache) bool {
	tv := cache.Evaluate(c.texture)
	if tv == nil {
		return false
	}
	if _, ok := c.locate(cache, vc, tv.Values); !ok {
		return false
	}
	cv := vc.ExtraCache().Evaluate(c.calculate)
	if cv == nil {
		return false
	}
	copy(vc.Values, cv.Values)
	return true
}

// FindMeshLocation has the xi, over the search mesh, where meshField equals
// the value of source at the current location. MeshLocation gives the element.
type FindMeshLocation struct {
	locator
	source field.Field
}

func NewFindMeshLocation(name string, source, meshField field.Field, searchMesh mesh.Set, opts Options) (*FindMeshLocation, error) {
	if source == nil || meshField == nil {
		return nil, fmt.Errorf("field %q: nil source field", name)
	}
	if source.NumberOfComponents() != meshField.NumberOfComponents() {
		return nil, fmt.Errorf("field %q: source %q has %d components, mesh field %q has %d", name,
			source.Name(), source.NumberOfComponents(), meshField.Name(), meshField.NumberOfComponents())
	}
	if searchMesh == nil {
		return nil, fmt.Errorf("field %q: nil search mesh", name)
	}
	l, err := newLocator(name, searchMesh.Dimension(), meshField, searchMesh, opts, source, meshField)
	if err != nil {
		return nil, err
	}
	return &FindMeshLocation{locator: l, source: source}, nil
}

func (f *FindMeshLocation) Evaluate(cache *field.Cache, vc *field.ValueCache) bool {
	sv := cache.Evaluate(f.source)
	if sv == nil {
		return false
	}
	st, ok := f.locate(cache, vc, sv.Values)
	if !ok {
		return false
	}
	copy(vc.Values, st.xi)
	return true
}

// MeshLocation returns the element and xi behind a value cache of a
// FindMeshLocation field returned by field.Cache.Evaluate
func MeshLocation(vc *field.ValueCache) (*mesh.Element, []float64, bool) {
	if vc == nil {
		return nil, nil, false
	}
	st, ok := vc.State.(*state)
	if !ok || st.element == nil {
		return nil, nil, false
	}
	return st.element, st.xi, true
}
