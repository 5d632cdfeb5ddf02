package field

import (
	"fmt"

	"github.com/notargets/DGField/mesh"
)

// ValueCache holds the last value of one field within one Cache. Values are
// valid only while the owning Cache stays at the location they were computed for.
type ValueCache struct {
	Values []float64

	// State is private to the field that owns this value cache and lives as
	// long as it does; e.g. the find-element-xi cache of a compose field
	State any

	field       Field
	counter     uint64 // owning cache counter at which Values are valid, 0 = invalid
	derivatives []*DerivativeValueCache
	extraCache  *Cache
}

func (vc *ValueCache) Field() Field { return vc.field }

// ExtraCache returns the nested evaluation context owned by this value
// cache, creating it on first use. The owning field sets its location
// independently of the outer cache before evaluating sources in it.
func (vc *ValueCache) ExtraCache() *Cache {
	if vc.extraCache == nil {
		vc.extraCache = NewCache()
	}
	return vc.extraCache
}

// HasExtraCache reports whether the nested context has been created
func (vc *ValueCache) HasExtraCache() bool { return vc.extraCache != nil }

func (vc *ValueCache) derivativeCache(d Derivative) *DerivativeValueCache {
	for _, dvc := range vc.derivatives {
		if dvc.Derivative == d {
			return dvc
		}
	}
	dvc := &DerivativeValueCache{
		Derivative: d,
		Values:     make([]float64, len(vc.Values)*d.TermCount()),
	}
	vc.derivatives = append(vc.derivatives, dvc)
	return dvc
}

// DerivativeValueCache holds one derivative of a field, component major
type DerivativeValueCache struct {
	Derivative Derivative
	Values     []float64
	counter    uint64
}

// TermCount is the number of derivative terms per component
func (dvc *DerivativeValueCache) TermCount() int { return dvc.Derivative.TermCount() }

// Cache is an evaluation context: the current location plus one ValueCache
// per field evaluated there. It must not be shared between goroutines.
type Cache struct {
	location    Location
	counter     uint64
	valueCaches map[Field]*ValueCache
}

func NewCache() *Cache {
	return &Cache{
		counter:     1,
		valueCaches: make(map[Field]*ValueCache),
	}
}

func (c *Cache) Location() Location { return c.location }
func (c *Cache) Time() float64      { return c.location.time }

func (c *Cache) setLocation(l Location) {
	if l == c.location {
		return
	}
	c.location = l
	c.counter++
}

// Invalidate discards every cached value without changing location. Call it
// after changing the definition of a field evaluated in this cache.
func (c *Cache) Invalidate() { c.counter++ }

// SetTime changes the time, keeping the rest of the location
func (c *Cache) SetTime(t float64) {
	l := c.location
	l.time = t
	c.setLocation(l)
}

func (c *Cache) SetMeshLocation(e *mesh.Element, xi []float64) error {
	return c.SetMeshLocationWithParent(e, xi, nil)
}

// SetMeshLocationWithParent sets an element location whose element may be a
// face of top, the element fields are defined on
func (c *Cache) SetMeshLocationWithParent(e *mesh.Element, xi []float64, top *mesh.Element) error {
	if e == nil {
		return fmt.Errorf("mesh location: nil element")
	}
	if len(xi) != e.Dimension() {
		return fmt.Errorf("mesh location: %d xi for %v of dimension %d", len(xi), e, e.Dimension())
	}
	l := Location{
		kind:    LocationElementXi,
		time:    c.location.time,
		element: e,
		top:     top,
	}
	copy(l.xi[:], xi)
	c.setLocation(l)
	return nil
}

func (c *Cache) SetNode(n *mesh.Node) error {
	if n == nil {
		return fmt.Errorf("node location: nil node")
	}
	c.setLocation(Location{kind: LocationNode, time: c.location.time, node: n})
	return nil
}

// ClearLocation leaves only the time
func (c *Cache) ClearLocation() {
	c.setLocation(Location{time: c.location.time})
}

// ValueCache returns the value cache of f in this context, creating it on
// first access. Its values are not necessarily valid.
func (c *Cache) ValueCache(f Field) *ValueCache {
	vc, ok := c.valueCaches[f]
	if !ok {
		vc = &ValueCache{
			Values: make([]float64, f.NumberOfComponents()),
			field:  f,
		}
		c.valueCaches[f] = vc
	}
	return vc
}

// Evaluate returns the value cache of f at the current location, evaluating
// f only if no valid value is cached. Returns nil when f is not defined here.
func (c *Cache) Evaluate(f Field) *ValueCache {
	if f == nil {
		return nil
	}
	vc := c.ValueCache(f)
	if vc.counter == c.counter {
		return vc
	}
	vc.counter = 0
	if !f.Evaluate(c, vc) {
		return nil
	}
	vc.counter = c.counter
	return vc
}

// EvaluateDerivative is Evaluate for derivative d of f. Returns nil when the
// derivative is not available at the current location.
func (c *Cache) EvaluateDerivative(f Field, d Derivative) *DerivativeValueCache {
	if f == nil || !d.Valid() {
		return nil
	}
	vc := c.ValueCache(f)
	dvc := vc.derivativeCache(d)
	if dvc.counter == c.counter {
		return dvc
	}
	dvc.counter = 0
	if !f.EvaluateDerivative(c, vc, d, dvc) {
		return nil
	}
	dvc.counter = c.counter
	return dvc
}
