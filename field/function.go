package field

// EvaluateFunc writes the values at loc, returning false where undefined
type EvaluateFunc func(loc Location, values []float64) bool

// DerivativeFunc writes derivative d at loc, component major
type DerivativeFunc func(loc Location, d Derivative, values []float64) bool

// Function evaluates a closure of the location. Useful for analytic fields
// and for instrumenting evaluation in tests.
type Function struct {
	base
	eval  EvaluateFunc
	deriv DerivativeFunc
}

// NewFunction returns a field of the given component count. deriv may be
// nil, in which case no derivatives are available.
func NewFunction(name string, components int, eval EvaluateFunc, deriv DerivativeFunc) (*Function, error) {
	b, err := newBase(name, components)
	if err != nil {
		return nil, err
	}
	return &Function{base: b, eval: eval, deriv: deriv}, nil
}

func (f *Function) Evaluate(cache *Cache, vc *ValueCache) bool {
	if f.eval == nil {
		return false
	}
	return f.eval(cache.Location(), vc.Values)
}

func (f *Function) EvaluateDerivative(cache *Cache, _ *ValueCache, d Derivative, dvc *DerivativeValueCache) bool {
	if f.deriv == nil {
		return false
	}
	return f.deriv(cache.Location(), d, dvc.Values)
}
