package field

// Constant has the same value at every location
type Constant struct {
	base
	values []float64
}

func NewConstant(name string, values ...float64) (*Constant, error) {
	b, err := newBase(name, len(values))
	if err != nil {
		return nil, err
	}
	return &Constant{base: b, values: append([]float64(nil), values...)}, nil
}

func (c *Constant) Evaluate(_ *Cache, vc *ValueCache) bool {
	copy(vc.Values, c.values)
	return true
}

// EvaluateDerivative is zero on elements
func (c *Constant) EvaluateDerivative(cache *Cache, _ *ValueCache, _ Derivative, dvc *DerivativeValueCache) bool {
	if cache.Location().Kind() != LocationElementXi {
		return false
	}
	for i := range dvc.Values {
		dvc.Values[i] = 0
	}
	return true
}
