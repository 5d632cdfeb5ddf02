package field

import (
	"fmt"
)

// Add is the weighted sum wa*a + wb*b of two fields with equal component counts
type Add struct {
	base
	wa, wb float64
}

func NewAdd(name string, a, b Field, wa, wb float64) (*Add, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("field %q: nil source field", name)
	}
	if a.NumberOfComponents() != b.NumberOfComponents() {
		return nil, fmt.Errorf("field %q: sources have %d and %d components",
			name, a.NumberOfComponents(), b.NumberOfComponents())
	}
	bs, err := newBase(name, a.NumberOfComponents(), a, b)
	if err != nil {
		return nil, err
	}
	return &Add{base: bs, wa: wa, wb: wb}, nil
}

func (f *Add) Evaluate(cache *Cache, vc *ValueCache) bool {
	a := cache.Evaluate(f.sources[0])
	if a == nil {
		return false
	}
	b := cache.Evaluate(f.sources[1])
	if b == nil {
		return false
	}
	for i := range vc.Values {
		vc.Values[i] = f.wa*a.Values[i] + f.wb*b.Values[i]
	}
	return true
}

func (f *Add) EvaluateDerivative(cache *Cache, _ *ValueCache, d Derivative, dvc *DerivativeValueCache) bool {
	da := cache.EvaluateDerivative(f.sources[0], d)
	if da == nil {
		return false
	}
	db := cache.EvaluateDerivative(f.sources[1], d)
	if db == nil {
		return false
	}
	for i := range dvc.Values {
		dvc.Values[i] = f.wa*da.Values[i] + f.wb*db.Values[i]
	}
	return true
}
