// Package findxi inverts a field over a mesh: given target field values it
// finds the element and element xi where the field takes them.
package findxi

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/logging"
	"github.com/notargets/DGField/mesh"
	"github.com/notargets/DGField/meshrange"
	"github.com/notargets/DGField/metrics"
)

var ErrInvalidArgument = errors.New("find element xi: invalid argument")

// Cache remembers where the last search of one caller ended. The next
// search with the same field tries that element first, from that xi.
type Cache struct {
	mu      sync.Mutex
	field   field.Field
	element *mesh.Element
	xi      [mesh.MaximumXiDimensions]float64
}

func NewCache() *Cache { return &Cache{} }

func (c *Cache) remember(f field.Field, e *mesh.Element, xi []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.field, c.element = f, e
	c.xi = [mesh.MaximumXiDimensions]float64{}
	copy(c.xi[:], xi)
}

// Lookup returns the remembered element and xi for f
func (c *Cache) Lookup(f field.Field) (*mesh.Element, []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.element == nil || c.field != f {
		return nil, nil
	}
	xi := c.xi
	return c.element, xi[:c.element.Dimension()]
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.field, c.element = nil, nil
}

// Request is one find element xi call. Either SearchMesh or Element must
// be set; SearchMesh wins when both are.
type Request struct {
	Field field.Field
	// Cache is the evaluation context for trial evaluations
	Cache  *field.Cache
	Values []float64

	SearchMesh mesh.Set
	// Ranges prune the search; must belong to Field and SearchMesh
	Ranges *meshrange.Ranges
	// Registry supplies the ranges of (SearchMesh, Field) when Ranges is nil
	Registry *meshrange.Registry
	// XiCache is optional; see Cache
	XiCache *Cache

	Element *mesh.Element
	StartXi []float64

	FindNearest bool
	XiTolerance float64 // DefaultXiTolerance if zero
	Metrics     *metrics.Metrics
}

type Result struct {
	Element *mesh.Element
	Xi      []float64
	// Found is false when no element contains the values, and in nearest
	// mode only when the field is undefined on every element tried
	Found bool
	// Exact is false for a nearest match
	Exact           bool
	DistanceSquared float64
}

func (req *Request) validate() error {
	if req.Field == nil {
		return fmt.Errorf("%w: nil field", ErrInvalidArgument)
	}
	if req.Cache == nil {
		return fmt.Errorf("%w: nil evaluation cache", ErrInvalidArgument)
	}
	if len(req.Values) != req.Field.NumberOfComponents() {
		return fmt.Errorf("%w: %d values for field %q with %d components",
			ErrInvalidArgument, len(req.Values), req.Field.Name(), req.Field.NumberOfComponents())
	}
	var dim int
	switch {
	case req.SearchMesh != nil:
		dim = req.SearchMesh.Dimension()
		if r := req.Ranges; r != nil && (r.Field() != req.Field || r.Set() != req.SearchMesh) {
			return fmt.Errorf("%w: ranges of field %q are not for this field and search mesh",
				ErrInvalidArgument, r.Field().Name())
		}
	case req.Element != nil:
		dim = req.Element.Dimension()
		if req.StartXi != nil && len(req.StartXi) != dim {
			return fmt.Errorf("%w: %d start xi for element of dimension %d", ErrInvalidArgument, len(req.StartXi), dim)
		}
	default:
		return fmt.Errorf("%w: neither search mesh nor element", ErrInvalidArgument)
	}
	if dim > len(req.Values) {
		return fmt.Errorf("%w: element dimension %d exceeds %d values", ErrInvalidArgument, dim, len(req.Values))
	}
	return nil
}

// FindElementXi locates req.Values. Not finding them is a normal result,
// errors are reserved for invalid requests and range evaluation failures.
func FindElementXi(req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if req.SearchMesh != nil && req.Ranges == nil && req.Registry != nil {
		r, err := req.Registry.Get(req.SearchMesh, req.Field)
		if err != nil {
			return Result{}, fmt.Errorf("find element xi: %w", err)
		}
		req.Ranges = r
	}
	met := metrics.Or(req.Metrics)
	data := NewIterativeData(req.Field, req.Cache, req.Values, req.XiTolerance, req.FindNearest)
	data.Metrics = met

	if req.SearchMesh == nil {
		data.StartXi = req.StartXi
		IterativeElementConditional(req.Element, data)
	} else if err := search(req, data, met); err != nil {
		return Result{}, err
	}

	var res Result
	switch {
	case data.Element != nil:
		res = Result{Element: data.Element, Found: true, Exact: true}
		res.Xi = append([]float64(nil), data.Xi[:data.Element.Dimension()]...)
		res.DistanceSquared = data.DistanceSquared
	case req.FindNearest && data.NearestElement != nil:
		res = Result{Element: data.NearestElement, Found: true, DistanceSquared: data.NearestDistanceSquared}
		res.Xi = append([]float64(nil), data.NearestXi[:data.NearestElement.Dimension()]...)
	}

	label := metrics.ResultNone
	if res.Found {
		label = metrics.ResultNearest
		if res.Exact {
			label = metrics.ResultExact
		}
		if req.XiCache != nil {
			req.XiCache.remember(req.Field, res.Element, res.Xi)
		}
	}
	met.Searches.WithLabelValues(label).Inc()
	return res, nil
}

// search tries the remembered element, then every element of the search
// mesh in identifier order, skipping those whose range rules them out
func search(req Request, data *IterativeData, met *metrics.Metrics) error {
	var tolerance float64
	if req.Ranges != nil {
		if err := req.Ranges.Evaluate(); err != nil {
			return fmt.Errorf("find element xi: %w", err)
		}
		tolerance = req.Ranges.Tolerance()
	}

	// pruned reports whether e cannot hold the values, or, in nearest mode,
	// cannot be closer than the best so far
	pruned := func(e *mesh.Element) bool {
		if req.Ranges == nil {
			return false
		}
		rg, ok := req.Ranges.ElementRange(e)
		if !ok {
			return false
		}
		if !req.FindNearest {
			return !rg.Contains(req.Values, tolerance)
		}
		return data.NearestElement != nil && rg.DistanceSquared(req.Values, tolerance) >= data.NearestDistanceSquared
	}

	var skipped int
	defer func() { met.ElementsPruned.Add(float64(skipped)) }()

	var first *mesh.Element
	if req.XiCache != nil {
		if e, xi := req.XiCache.Lookup(req.Field); e != nil && req.SearchMesh.ContainsElement(e) {
			first = e
			if !pruned(e) {
				data.StartXi = xi
				converged := IterativeElementConditional(e, data)
				data.StartXi = nil
				if converged {
					return nil
				}
			}
		}
	}

	it := req.SearchMesh.CreateElementIterator()
	for e := it.Next(); e != nil; e = it.Next() {
		if e == first {
			continue
		}
		if pruned(e) {
			skipped++
			continue
		}
		if IterativeElementConditional(e, data) {
			break
		}
	}
	logging.Logger().Debug("find element xi",
		zap.String("field", req.Field.Name()),
		zap.Float64s("values", req.Values),
		zap.Bool("nearest", req.FindNearest),
		zap.Bool("found", data.Element != nil),
		zap.Int("pruned", skipped))
	return nil
}
