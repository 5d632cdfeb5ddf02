// Package field defines computed fields and the evaluation cache that
// memoises their values and derivatives at the current domain location.
//
// A Cache is owned by one goroutine. Fields are shared: their Evaluate
// methods must only write into the ValueCache they are handed and must read
// their sources through the same Cache.
package field

import (
	"fmt"
)

// Field is a computation node over domain locations. Implementations must be
// comparable (normally a pointer type); the Cache keys value caches on it.
type Field interface {
	Name() string
	NumberOfComponents() int
	NumberOfSourceFields() int
	SourceField(i int) Field

	// Evaluate writes the field value at cache.Location() into vc.Values.
	// Returns false when the field is not defined there.
	Evaluate(cache *Cache, vc *ValueCache) bool

	// EvaluateDerivative writes the requested derivative into dvc.Values,
	// component major: dvc.Values[k*d.TermCount()+term]. Returns false when
	// the derivative is not available at this location.
	EvaluateDerivative(cache *Cache, vc *ValueCache, d Derivative, dvc *DerivativeValueCache) bool
}

// Revisioned is implemented by fields whose definition can change after
// creation. Revision increases on every change.
type Revisioned interface {
	Revision() uint64
}

// RevisionOf sums the revisions of f and of every field it depends on, so
// it increases whenever any of them changes definition
func RevisionOf(f Field) uint64 {
	if f == nil {
		return 0
	}
	var revision uint64
	if rv, ok := f.(Revisioned); ok {
		revision = rv.Revision()
	}
	for i := 0; i < f.NumberOfSourceFields(); i++ {
		revision += RevisionOf(f.SourceField(i))
	}
	return revision
}

// Derivative identifies a derivative with respect to element xi: Order
// times over the Dimension xi directions of the element.
type Derivative struct {
	Dimension int
	Order     int
}

// FirstDerivative is the gradient with respect to xi of a dimension-d element
func FirstDerivative(d int) Derivative {
	return Derivative{Dimension: d, Order: 1}
}

// TermCount is the number of derivative terms per component
func (d Derivative) TermCount() int {
	terms := 1
	for i := 0; i < d.Order; i++ {
		terms *= d.Dimension
	}
	return terms
}

func (d Derivative) Valid() bool {
	return d.Dimension > 0 && d.Order > 0
}

func (d Derivative) String() string {
	return fmt.Sprintf("d%d/dxi%d", d.Order, d.Dimension)
}

// base carries the name, component count and sources common to all kinds
type base struct {
	name       string
	components int
	sources    []Field
}

func (b *base) Name() string              { return b.name }
func (b *base) NumberOfComponents() int   { return b.components }
func (b *base) NumberOfSourceFields() int { return len(b.sources) }

func (b *base) SourceField(i int) Field {
	if i < 0 || i >= len(b.sources) {
		return nil
	}
	return b.sources[i]
}

func newBase(name string, components int, sources ...Field) (base, error) {
	if components < 1 {
		return base{}, fmt.Errorf("field %q: number of components %d < 1", name, components)
	}
	for i, s := range sources {
		if s == nil {
			return base{}, fmt.Errorf("field %q: source field %d is nil", name, i)
		}
	}
	return base{name: name, components: components, sources: sources}, nil
}
