// Package meshrange caches, per mesh (or mesh group) and field, the range of
// field values over every element. Inverse searches use the ranges to skip
// elements that cannot contain a target value.
package meshrange

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/logging"
	"github.com/notargets/DGField/mesh"
	"github.com/notargets/DGField/metrics"
	"github.com/notargets/DGField/partitions"
)

type State int32

const (
	Unevaluated State = iota
	Evaluating
	Evaluated
)

func (s State) String() string {
	switch s {
	case Unevaluated:
		return "unevaluated"
	case Evaluating:
		return "evaluating"
	case Evaluated:
		return "evaluated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ToleranceFraction of the largest total range span is the pruning slack
const ToleranceFraction = 0.01

const DefaultDivisions = 2

type Options struct {
	// Divisions per xi direction of the sample lattice in each element
	Divisions int
	// Workers evaluating partitions concurrently, default GOMAXPROCS
	Workers int
	// Partitioning of the element list between workers. RoundRobin spreads
	// runs of costly geometries (e.g. hexes numbered before tets).
	Partitioning partitions.PartitionStrategy
	Metrics      *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Divisions < 1 {
		o.Divisions = DefaultDivisions
	}
	if o.Workers < 1 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	o.Metrics = metrics.Or(o.Metrics)
	return o
}

// Ranges is the field range cache of one (set, field) pair. It is shared by
// goroutines: one of them evaluates while the others wait, lookups take a
// read lock, mesh change notifications a write lock.
type Ranges struct {
	set   mesh.Set
	field field.Field
	opts  Options

	evalMu sync.Mutex // held for the whole of an evaluation

	mu        sync.RWMutex
	state     State
	ranges    map[*mesh.Element]Range
	total     Range
	tolerance float64
	revision  uint64
	pending   []mesh.Change // arrived while evaluating
	stale     bool          // invalidated while evaluating

	cancel func()
}

// New creates an unevaluated range cache subscribed to changes of set
func New(set mesh.Set, f field.Field, opts Options) (*Ranges, error) {
	if set == nil || f == nil {
		return nil, fmt.Errorf("mesh field ranges: nil set or field")
	}
	r := &Ranges{
		set:    set,
		field:  f,
		opts:   opts.withDefaults(),
		ranges: make(map[*mesh.Element]Range),
	}
	r.cancel = set.Subscribe(r.onChange)
	return r, nil
}

func (r *Ranges) Set() mesh.Set      { return r.set }
func (r *Ranges) Field() field.Field { return r.field }

// Close stops listening to the set
func (r *Ranges) Close() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// fieldRevision covers the source fields too
func (r *Ranges) fieldRevision() uint64 { return field.RevisionOf(r.field) }

// effectiveState reports Unevaluated once the field definition changed; caller holds mu
func (r *Ranges) effectiveState() State {
	if r.state == Evaluated && r.revision != r.fieldRevision() {
		return Unevaluated
	}
	return r.state
}

func (r *Ranges) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.effectiveState()
}

// IsValid reports whether the ranges are evaluated and current
func (r *Ranges) IsValid() bool { return r.State() == Evaluated }

// Invalidate marks the ranges for re-evaluation
func (r *Ranges) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidate("explicit")
}

func (r *Ranges) invalidate(cause string) {
	if r.state == Evaluating {
		r.stale = true
	} else {
		r.state = Unevaluated
	}
	r.opts.Metrics.RangeInvalidations.WithLabelValues(cause).Inc()
}

func (r *Ranges) onChange(c mesh.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Evaluating {
		r.pending = append(r.pending, c)
		return
	}
	r.apply(c)
}

// apply updates the ranges for a set change; caller holds mu for writing
func (r *Ranges) apply(c mesh.Change) {
	switch c.Kind {
	case mesh.ElementDestroyed:
		// Only that element; the total range stays a valid bound
		delete(r.ranges, c.Element)
	case mesh.ElementCreated:
		r.invalidate("created")
	case mesh.MeshCleared:
		r.ranges = make(map[*mesh.Element]Range)
		r.invalidate("cleared")
	}
	fields := []zap.Field{
		zap.String("field", r.field.Name()),
		zap.Stringer("mesh", r.set.Mesh().ID),
		zap.Stringer("change", c.Kind),
	}
	if c.Element != nil {
		fields = append(fields, zap.Int("element", c.Element.ID()))
	}
	logging.Logger().Debug("mesh field ranges changed", fields...)
}

// ElementRange returns the range of element e, or false if the ranges are
// not valid, e is unknown or the field is undefined somewhere in e
func (r *Ranges) ElementRange(e *mesh.Element) (Range, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.effectiveState() != Evaluated {
		return Range{}, false
	}
	rg, ok := r.ranges[e]
	return rg, ok
}

// TotalRange is the union of all element ranges at the last evaluation
func (r *Ranges) TotalRange() (Range, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.effectiveState() != Evaluated || r.total.Min == nil {
		return Range{}, false
	}
	return r.total, true
}

// Tolerance is ToleranceFraction of the largest component span of the total range
func (r *Ranges) Tolerance() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tolerance
}

// Evaluate computes the range of every element if the ranges are not valid.
// Concurrent callers wait for a single evaluation.
func (r *Ranges) Evaluate() error {
	if r.IsValid() {
		return nil
	}
	r.evalMu.Lock()
	defer r.evalMu.Unlock()
	if r.IsValid() {
		return nil
	}

	r.mu.Lock()
	r.state = Evaluating
	r.pending = nil
	r.stale = false
	r.mu.Unlock()

	start := time.Now()
	revision := r.fieldRevision()
	var elements []*mesh.Element
	it := r.set.CreateElementIterator()
	for e := it.Next(); e != nil; e = it.Next() {
		elements = append(elements, e)
	}
	ranges, err := r.compute(elements)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = Unevaluated
		r.pending = nil
		return err
	}
	r.ranges = ranges
	r.total = Range{}
	for _, rg := range ranges {
		if r.total.Min == nil {
			r.total = newRange(rg.Min)
		}
		r.total.union(rg)
	}
	r.tolerance = 0
	if r.total.Min != nil {
		spans := make([]float64, len(r.total.Min))
		floats.SubTo(spans, r.total.Max, r.total.Min)
		r.tolerance = ToleranceFraction * floats.Max(spans)
	}
	r.revision = revision
	r.state = Evaluated
	for _, c := range r.pending {
		r.apply(c)
	}
	r.pending = nil
	if r.stale {
		r.state = Unevaluated
	}

	elapsed := time.Since(start)
	r.opts.Metrics.RangeEvaluations.Inc()
	r.opts.Metrics.RangeEvaluationTime.Observe(elapsed.Seconds())
	logging.Logger().Debug("mesh field ranges evaluated",
		zap.String("field", r.field.Name()),
		zap.Stringer("mesh", r.set.Mesh().ID),
		zap.Int("elements", len(elements)),
		zap.Int("ranges", len(ranges)),
		zap.Float64("tolerance", r.tolerance),
		zap.Duration("elapsed", elapsed))
	return nil
}

// compute evaluates element ranges over block partitions, one evaluation
// cache per worker
func (r *Ranges) compute(elements []*mesh.Element) (map[*mesh.Element]Range, error) {
	pb := &partitions.PartitionBuilder{
		Elements:            partitions.ElementListOf(elements),
		TargetPartitionSize: int(math.Ceil(float64(len(elements)) / float64(r.opts.Workers))),
		MaxPartitions:       r.opts.Workers,
		Strategy:            r.opts.Partitioning,
	}
	if pb.TargetPartitionSize < 1 {
		pb.TargetPartitionSize = 1
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		return nil, fmt.Errorf("mesh field ranges: %w", err)
	}
	stats := layout.PartitionStatistics()
	logging.Logger().Debug("mesh field range partitions",
		zap.String("field", r.field.Name()),
		zap.Stringer("strategy", pb.Strategy),
		zap.Int("partitions", layout.NumPartitions),
		zap.Int("min", stats.MinElements),
		zap.Int("max", stats.MaxElements),
		zap.Float64("imbalance", stats.Imbalance))

	results := make([]map[*mesh.Element]Range, layout.NumPartitions)
	var g errgroup.Group
	for _, p := range layout.Partitions {
		g.Go(func() error {
			cache := field.NewCache()
			out := make(map[*mesh.Element]Range, p.NumElements)
			for _, group := range p.TypeGroups {
				shape, err := mesh.ShapeFor(group.Geometry)
				if err != nil {
					return err
				}
				points := shape.SamplePoints(r.opts.Divisions)
				for _, local := range group.LocalIDs {
					e := elements[p.Elements[local]]
					rg, ok, err := r.elementRange(cache, e, points)
					if err != nil {
						return err
					}
					if ok {
						out[e] = rg
					}
				}
			}
			results[p.ID] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranges := make(map[*mesh.Element]Range, len(elements))
	for _, res := range results {
		for e, rg := range res {
			ranges[e] = rg
		}
	}
	return ranges, nil
}

// elementRange samples f over e; false if f is undefined at any sample
func (r *Ranges) elementRange(cache *field.Cache, e *mesh.Element, points [][]float64) (Range, bool, error) {
	var rg Range
	for i, xi := range points {
		if err := cache.SetMeshLocation(e, xi); err != nil {
			return Range{}, false, fmt.Errorf("mesh field ranges: %w", err)
		}
		vc := cache.Evaluate(r.field)
		if vc == nil {
			return Range{}, false, nil
		}
		if i == 0 {
			rg = newRange(vc.Values)
		} else {
			rg.include(vc.Values)
		}
	}
	return rg, len(points) > 0, nil
}
