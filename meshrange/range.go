package meshrange

import (
	"fmt"
)

// Range is an axis-aligned box of field values, one interval per component.
// Ranges handed out by Ranges are shared and must not be modified.
type Range struct {
	Min, Max []float64
}

func newRange(values []float64) Range {
	return Range{
		Min: append([]float64(nil), values...),
		Max: append([]float64(nil), values...),
	}
}

func (r *Range) include(values []float64) {
	for i, v := range values {
		if v < r.Min[i] {
			r.Min[i] = v
		}
		if v > r.Max[i] {
			r.Max[i] = v
		}
	}
}

func (r *Range) union(o Range) {
	r.include(o.Min)
	r.include(o.Max)
}

// Contains reports whether values lie in the box expanded by tolerance
func (r Range) Contains(values []float64, tolerance float64) bool {
	for i, v := range values {
		if v < r.Min[i]-tolerance || v > r.Max[i]+tolerance {
			return false
		}
	}
	return true
}

// DistanceSquared is the squared distance from values to the box expanded
// by tolerance, zero inside. It is a lower bound on the squared distance to
// any field value in the element.
func (r Range) DistanceSquared(values []float64, tolerance float64) float64 {
	var sum float64
	for i, v := range values {
		var d float64
		switch {
		case v < r.Min[i]-tolerance:
			d = r.Min[i] - tolerance - v
		case v > r.Max[i]+tolerance:
			d = v - r.Max[i] - tolerance
		}
		sum += d * d
	}
	return sum
}

func (r Range) String() string {
	return fmt.Sprintf("[%v, %v]", r.Min, r.Max)
}
