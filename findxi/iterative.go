package findxi

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/logging"
	"github.com/notargets/DGField/mesh"
	"github.com/notargets/DGField/metrics"
)

const (
	MaxIterations      = 50
	DefaultXiTolerance = 1e-5

	// SingularCondition is the condition number of the normal equations
	// above which an element is treated as degenerate. cond(JᵀJ) is
	// cond(J)², so Jacobians conditioned worse than about 1e6 are degenerate.
	SingularCondition = 1e12

	// ConsistencySlack multiplies the predicted change of each value
	// component when checking that an over-determined solve really converged
	ConsistencySlack = 2.0

	initialMaxStep = 0.2
)

// IterativeData is the state of one search, shared by the solves over the
// elements it tries. Fields above the blank line are inputs.
type IterativeData struct {
	Field       field.Field
	Cache       *field.Cache
	Values      []float64
	XiTolerance float64
	FindNearest bool
	// StartXi seeds the next solve instead of the element centroid
	StartXi []float64
	Metrics *metrics.Metrics

	// Converged solution
	Element         *mesh.Element
	Xi              [mesh.MaximumXiDimensions]float64
	DistanceSquared float64

	// Closest approach over all solves so far
	NearestElement         *mesh.Element
	NearestXi              [mesh.MaximumXiDimensions]float64
	NearestDistanceSquared float64

	Iterations int // of the last solve

	// working buffers, sized to len(Values)
	f, r, lastR, normal, projected []float64
	jac, lastJac                   []float64
}

// NewIterativeData returns search state for the given target values
func NewIterativeData(f field.Field, cache *field.Cache, values []float64, xiTolerance float64, findNearest bool) *IterativeData {
	if xiTolerance <= 0 {
		xiTolerance = DefaultXiTolerance
	}
	m := len(values)
	return &IterativeData{
		Field:                  f,
		Cache:                  cache,
		Values:                 values,
		XiTolerance:            xiTolerance,
		FindNearest:            findNearest,
		NearestDistanceSquared: math.Inf(1),
		f:                      make([]float64, m),
		r:                      make([]float64, m),
		lastR:                  make([]float64, m),
		normal:                 make([]float64, m),
		projected:              make([]float64, m),
		jac:                    make([]float64, m*mesh.MaximumXiDimensions),
		lastJac:                make([]float64, m*mesh.MaximumXiDimensions),
	}
}

// evaluate loads field values into d.f, the residual into d.r and the m×n
// xi derivatives into d.jac
func (d *IterativeData) evaluate(e *mesh.Element, xi []float64) bool {
	if err := d.Cache.SetMeshLocation(e, xi); err != nil {
		return false
	}
	vc := d.Cache.Evaluate(d.Field)
	if vc == nil {
		return false
	}
	copy(d.f, vc.Values)
	dvc := d.Cache.EvaluateDerivative(d.Field, field.FirstDerivative(len(xi)))
	if dvc == nil {
		return false
	}
	copy(d.jac, dvc.Values)
	floats.SubTo(d.r, d.Values, d.f)
	return true
}

// solve finds step minimising |jac·step - r| through the normal equations
// JᵀJ step = Jᵀr. False when JᵀJ is numerically singular.
func solve(jac, r []float64, m, n int, step []float64) bool {
	J := mat.NewDense(m, n, jac[:m*n])
	var jtj mat.Dense
	jtj.Mul(J.T(), J)
	var jtr mat.VecDense
	jtr.MulVec(J.T(), mat.NewVecDense(m, r))

	var lu mat.LU
	lu.Factorize(&jtj)
	cond := lu.Cond()
	if math.IsInf(cond, 0) || math.IsNaN(cond) || cond > SingularCondition {
		return false
	}
	x := mat.NewVecDense(n, step[:n])
	if err := lu.SolveVecTo(x, false, &jtr); err != nil {
		return false
	}
	for _, s := range step[:n] {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return false
		}
	}
	return true
}

// slideCorrection computes the face-tangential correction at a clamped xi.
// For every face xi lies on, the residual component along the value-space
// face normal is removed and the reduced system solved; the solutions are
// averaged. Returns the number of faces that contributed.
func (d *IterativeData) slideCorrection(e *mesh.Element, xi, correction []float64) int {
	n, m := len(xi), len(d.Values)
	for i := range correction {
		correction[i] = 0
	}
	if !d.evaluate(e, xi) {
		return 0
	}
	shape := e.Shape()
	var (
		step  [mesh.MaximumXiDimensions]float64
		count int
	)
	for face := shape.FindFaceNumberForXi(xi, d.XiTolerance, -1); face >= 0; face = shape.FindFaceNumberForXi(xi, d.XiTolerance, face) {
		if !shape.FaceOutwardNormal(face, d.jac[:m*n], m, d.normal) {
			continue
		}
		floats.AddScaledTo(d.projected, d.r, -floats.Dot(d.r, d.normal), d.normal)
		if !solve(d.jac, d.projected, m, n, step[:n]) {
			continue
		}
		// running average
		for i := 0; i < n; i++ {
			correction[i] += (step[i] - correction[i]) / float64(count+1)
		}
		count++
	}
	return count
}

// consistent checks, for value counts above the element dimension, that the
// last step accounts for the remaining residual of every component
func (d *IterativeData) consistent(dxi []float64) bool {
	n, m := len(dxi), len(d.Values)
	if m <= n {
		return true
	}
	for k := 0; k < m; k++ {
		row := d.lastJac[k*n : (k+1)*n]
		predicted := math.Abs(floats.Dot(row, dxi))
		slack := d.XiTolerance * floats.Norm(row, 1)
		if math.Abs(d.lastR[k]) > ConsistencySlack*predicted+slack {
			return false
		}
	}
	return true
}

func (d *IterativeData) distanceSquared(e *mesh.Element, xi []float64) (float64, bool) {
	if err := d.Cache.SetMeshLocation(e, xi); err != nil {
		return 0, false
	}
	vc := d.Cache.Evaluate(d.Field)
	if vc == nil {
		return 0, false
	}
	dist := floats.Distance(vc.Values, d.Values, 2)
	return dist * dist, true
}

// IterativeElementConditional runs the Gauss-Newton iteration on element e.
// It returns true and sets data.Element and data.Xi when the field reaches
// data.Values inside e. In nearest mode the closest approach is recorded in
// data whatever the outcome.
func IterativeElementConditional(e *mesh.Element, data *IterativeData) bool {
	n, m := e.Dimension(), len(data.Values)
	met := metrics.Or(data.Metrics)
	met.SolverInvocations.Inc()
	if n < 1 || n > m {
		return false
	}

	shape := e.Shape()
	var xiBuf, lastBuf, dxiBuf, corrBuf [mesh.MaximumXiDimensions]float64
	xi, lastXi, dxi, correction := xiBuf[:n], lastBuf[:n], dxiBuf[:n], corrBuf[:n]
	if len(data.StartXi) == n {
		copy(xi, data.StartXi)
		shape.LimitXi(xi)
	} else {
		shape.Centroid(xi)
	}

	var (
		converged  bool
		reason     = "max-iterations"
		maxStep    = initialMaxStep
		iterations int
	)
	for iterations < MaxIterations {
		iterations++
		if !data.evaluate(e, xi) {
			reason = "undefined"
			break
		}
		copy(lastXi, xi)
		copy(data.lastR, data.r)
		copy(data.lastJac, data.jac[:m*n])
		if !solve(data.jac, data.r, m, n, dxi) {
			reason = "singular"
			break
		}

		small := true
		for _, s := range dxi {
			if math.Abs(s) > data.XiTolerance {
				small = false
				break
			}
		}
		if data.FindNearest {
			switch iterations {
			case 7:
				maxStep *= 0.5
			case 22:
				maxStep *= 0.25
			}
			if norm := floats.Norm(dxi, 2); norm > maxStep {
				floats.Scale(maxStep/norm, dxi)
			}
		}
		floats.Add(xi, dxi)
		limited := shape.LimitXi(xi)
		if small {
			if data.consistent(dxi) {
				converged = true
				reason = "converged"
			} else {
				reason = "inconsistent"
			}
			break
		}
		if limited && n > 1 {
			if data.slideCorrection(e, xi, correction) > 0 {
				floats.Add(xi, correction)
				shape.LimitXi(xi)
			}
		}
		if iterations > 1 {
			moved := false
			for i := range xi {
				if math.Abs(xi[i]-lastXi[i]) > data.XiTolerance {
					moved = true
					break
				}
			}
			if !moved {
				reason = "stalled"
				break
			}
		}
	}

	data.Iterations = iterations
	met.SolverIterations.Observe(float64(iterations))
	if converged {
		met.SolverConvergences.Inc()
		data.Element = e
		copy(data.Xi[:], xi)
	}
	if data.FindNearest || converged {
		d2, ok := data.distanceSquared(e, xi)
		if ok && converged {
			data.DistanceSquared = d2
		}
		if ok && d2 < data.NearestDistanceSquared {
			data.NearestElement = e
			data.NearestDistanceSquared = d2
			data.NearestXi = [mesh.MaximumXiDimensions]float64{}
			copy(data.NearestXi[:], xi)
		}
	}
	logging.Logger().Debug("element xi solve",
		zap.Int("element", e.ID()),
		zap.String("result", reason),
		zap.Int("iterations", iterations),
		zap.Float64s("xi", xi))
	return converged
}
