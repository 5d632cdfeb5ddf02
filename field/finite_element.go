package field

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/notargets/DGField/mesh"
)

const maxElementNodes = 1 << mesh.MaximumXiDimensions

// FiniteElement interpolates per-node values over the elements of one mesh
// with the element's linear Lagrange basis. Node values may be changed while
// other goroutines evaluate; each change bumps Revision.
type FiniteElement struct {
	base
	mesh     *mesh.Mesh
	mu       sync.RWMutex
	values   map[int][]float64 // node id -> components
	revision atomic.Uint64
}

func NewFiniteElement(name string, m *mesh.Mesh, components int) (*FiniteElement, error) {
	if m == nil {
		return nil, fmt.Errorf("field %q: nil mesh", name)
	}
	b, err := newBase(name, components)
	if err != nil {
		return nil, err
	}
	return &FiniteElement{base: b, mesh: m, values: make(map[int][]float64)}, nil
}

func (f *FiniteElement) Mesh() *mesh.Mesh { return f.mesh }
func (f *FiniteElement) Revision() uint64 { return f.revision.Load() }

func (f *FiniteElement) SetNodeValues(n *mesh.Node, values ...float64) error {
	if n == nil || n.Mesh() != f.mesh {
		return fmt.Errorf("field %q: node is not in %v", f.name, f.mesh)
	}
	if len(values) != f.components {
		return fmt.Errorf("field %q: %d values for %d components", f.name, len(values), f.components)
	}
	f.mu.Lock()
	f.values[n.ID()] = append([]float64(nil), values...)
	f.mu.Unlock()
	f.revision.Add(1)
	return nil
}

// NodeValues returns a copy of the values at n
func (f *FiniteElement) NodeValues(n *mesh.Node) ([]float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[n.ID()]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v...), true
}

func (f *FiniteElement) Evaluate(cache *Cache, vc *ValueCache) bool {
	loc := cache.Location()
	switch loc.Kind() {
	case LocationNode:
		if loc.Node().Mesh() != f.mesh {
			return false
		}
		f.mu.RLock()
		defer f.mu.RUnlock()
		v, ok := f.values[loc.Node().ID()]
		if !ok {
			return false
		}
		copy(vc.Values, v)
		return true
	case LocationElementXi:
		return f.interpolate(loc.Element(), loc.Xi(), vc.Values, nil)
	}
	return false
}

// EvaluateDerivative supports first derivatives with respect to element xi
func (f *FiniteElement) EvaluateDerivative(cache *Cache, _ *ValueCache, d Derivative, dvc *DerivativeValueCache) bool {
	loc := cache.Location()
	if loc.Kind() != LocationElementXi || d.Order != 1 || d.Dimension != loc.Element().Dimension() {
		return false
	}
	return f.interpolate(loc.Element(), loc.Xi(), nil, dvc.Values)
}

// interpolate writes values and/or xi derivatives (component major) at xi
func (f *FiniteElement) interpolate(e *mesh.Element, xi []float64, values, derivatives []float64) bool {
	if e.Mesh() != f.mesh {
		return false
	}
	var (
		phi   [maxElementNodes]float64
		dphi  [maxElementNodes * mesh.MaximumXiDimensions]float64
		nodes = e.Nodes()
		n     = e.Dimension()
	)
	if derivatives != nil {
		e.Shape().Basis(xi, phi[:len(nodes)], dphi[:len(nodes)*n])
	} else {
		e.Shape().Basis(xi, phi[:len(nodes)], nil)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var nodal [maxElementNodes][]float64
	for a, node := range nodes {
		v, ok := f.values[node.ID()]
		if !ok {
			return false
		}
		nodal[a] = v
	}
	for k := 0; k < f.components; k++ {
		if values != nil {
			var sum float64
			for a := range nodes {
				sum += phi[a] * nodal[a][k]
			}
			values[k] = sum
		}
		if derivatives != nil {
			for i := 0; i < n; i++ {
				var sum float64
				for a := range nodes {
					sum += dphi[a*n+i] * nodal[a][k]
				}
				derivatives[k*n+i] = sum
			}
		}
	}
	return true
}
