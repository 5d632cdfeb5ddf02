package mesh

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrInvalidElement is wrapped by every element construction failure
var ErrInvalidElement = errors.New("invalid element")

type ChangeKind uint8

const (
	ElementCreated ChangeKind = iota
	ElementDestroyed
	MeshCleared
)

func (k ChangeKind) String() string {
	switch k {
	case ElementCreated:
		return "created"
	case ElementDestroyed:
		return "destroyed"
	case MeshCleared:
		return "cleared"
	}
	return fmt.Sprintf("ChangeKind(%d)", uint8(k))
}

// Change describes one mutation of a mesh or group. Element is nil for MeshCleared.
type Change struct {
	Kind    ChangeKind
	Element *Element
}

// Set is the element collection searched by find-element-xi: a whole
// mesh or a group of its elements
type Set interface {
	Mesh() *Mesh
	Dimension() int
	Size() int
	ContainsElement(e *Element) bool
	CreateElementIterator() *ElementIterator
	// Subscribe registers fn for changes to the set's elements. Notifications
	// are delivered synchronously on the mutating goroutine.
	Subscribe(fn func(Change)) (cancel func())
}

type Node struct {
	id   int
	mesh *Mesh
}

func (n *Node) ID() int     { return n.id }
func (n *Node) Mesh() *Mesh { return n.mesh }

type Element struct {
	id    int
	shape *Shape
	nodes []*Node
	mesh  *Mesh
}

func (e *Element) ID() int            { return e.id }
func (e *Element) Shape() *Shape      { return e.shape }
func (e *Element) Dimension() int     { return e.shape.dimension }
func (e *Element) Nodes() []*Node     { return e.nodes }
func (e *Element) Mesh() *Mesh        { return e.mesh }
func (e *Element) String() string     { return fmt.Sprintf("%v#%d", e.shape.geometry, e.id) }
func (e *Element) NumberOfNodes() int { return len(e.nodes) }

// observers is a registry of change callbacks shared by Mesh and Group
type observers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Change)
}

func (o *observers) subscribe(fn func(Change)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(Change))
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.fns, id)
		o.mu.Unlock()
	}
}

func (o *observers) notify(c Change) {
	o.mu.Lock()
	ids := make([]int, 0, len(o.fns))
	for id := range o.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.fns[id])
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Mesh holds the elements of one dimension and the nodes they reference
type Mesh struct {
	ID        uuid.UUID
	dimension int

	mu            sync.RWMutex
	nextElementID int
	nextNodeID    int
	elements      []*Element // ordered by id
	byID          map[int]*Element
	nodes         map[int]*Node

	observers observers
}

func NewMesh(dimension int) (*Mesh, error) {
	if dimension < 1 || dimension > MaximumXiDimensions {
		return nil, fmt.Errorf("mesh dimension %d outside [1,%d]", dimension, MaximumXiDimensions)
	}
	return &Mesh{
		ID:        uuid.New(),
		dimension: dimension,
		byID:      make(map[int]*Element),
		nodes:     make(map[int]*Node),
	}, nil
}

func (m *Mesh) Mesh() *Mesh    { return m }
func (m *Mesh) Dimension() int { return m.dimension }
func (m *Mesh) String() string { return fmt.Sprintf("mesh%dd[%s]", m.dimension, m.ID) }

func (m *Mesh) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.elements)
}

// CreateNode adds a new node; identifiers are never reused
func (m *Mesh) CreateNode() *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := &Node{id: m.nextNodeID, mesh: m}
	m.nextNodeID++
	m.nodes[n.id] = n
	return n
}

// CreateNodes adds count nodes and returns them in creation order
func (m *Mesh) CreateNodes(count int) []*Node {
	nodes := make([]*Node, count)
	for i := range nodes {
		nodes[i] = m.CreateNode()
	}
	return nodes
}

// CreateElement adds an element of geometry g whose local nodes, in shape
// vertex order, are nodes
func (m *Mesh) CreateElement(g ElementGeometry, nodes []*Node) (*Element, error) {
	shape, err := ShapeFor(g)
	if err != nil {
		return nil, err
	}
	if shape.dimension != m.dimension {
		return nil, fmt.Errorf("%w: %v has dimension %d, mesh has %d",
			ErrInvalidElement, g, shape.dimension, m.dimension)
	}
	if len(nodes) != shape.NumberOfNodes() {
		return nil, fmt.Errorf("%w: %v needs %d nodes, got %d",
			ErrInvalidElement, g, shape.NumberOfNodes(), len(nodes))
	}
	for i, n := range nodes {
		if n == nil || n.mesh != m {
			return nil, fmt.Errorf("%w: node %d does not belong to %v", ErrInvalidElement, i, m)
		}
	}

	m.mu.Lock()
	e := &Element{
		id:    m.nextElementID,
		shape: shape,
		nodes: append([]*Node(nil), nodes...),
		mesh:  m,
	}
	m.nextElementID++
	m.elements = append(m.elements, e)
	m.byID[e.id] = e
	m.mu.Unlock()

	m.observers.notify(Change{Kind: ElementCreated, Element: e})
	return e, nil
}

func (m *Mesh) FindElementByID(id int) *Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

func (m *Mesh) DestroyElement(e *Element) error {
	m.mu.Lock()
	if e == nil || m.byID[e.id] != e {
		m.mu.Unlock()
		return fmt.Errorf("%w: element not in %v", ErrInvalidElement, m)
	}
	delete(m.byID, e.id)
	i := sort.Search(len(m.elements), func(i int) bool { return m.elements[i].id >= e.id })
	m.elements = append(m.elements[:i], m.elements[i+1:]...)
	m.mu.Unlock()

	m.observers.notify(Change{Kind: ElementDestroyed, Element: e})
	return nil
}

// Clear destroys every element. Nodes are kept.
func (m *Mesh) Clear() {
	m.mu.Lock()
	m.elements = nil
	m.byID = make(map[int]*Element)
	m.mu.Unlock()

	m.observers.notify(Change{Kind: MeshCleared})
}

func (m *Mesh) ContainsElement(e *Element) bool {
	if e == nil || e.mesh != m {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[e.id] == e
}

// CreateElementIterator iterates a snapshot of the elements in identifier order
func (m *Mesh) CreateElementIterator() *ElementIterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &ElementIterator{elements: append([]*Element(nil), m.elements...)}
}

func (m *Mesh) Subscribe(fn func(Change)) (cancel func()) {
	return m.observers.subscribe(fn)
}

type ElementIterator struct {
	elements []*Element
	pos      int
}

// Next returns the next element or nil when exhausted
func (it *ElementIterator) Next() *Element {
	if it.pos >= len(it.elements) {
		return nil
	}
	e := it.elements[it.pos]
	it.pos++
	return e
}

