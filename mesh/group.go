package mesh

import (
	"fmt"
	"sort"
	"sync"
)

// Group is a subset of the elements of one mesh. Destroying an element in
// the mesh removes it from the group and is forwarded to group subscribers.
type Group struct {
	Name string
	mesh *Mesh

	mu      sync.RWMutex
	members map[int]*Element

	observers observers
	cancel    func()
}

func NewGroup(name string, m *Mesh) *Group {
	g := &Group{
		Name:    name,
		mesh:    m,
		members: make(map[int]*Element),
	}
	g.cancel = m.Subscribe(g.onMeshChange)
	return g
}

func (g *Group) onMeshChange(c Change) {
	switch c.Kind {
	case ElementDestroyed:
		g.mu.Lock()
		_, ok := g.members[c.Element.id]
		delete(g.members, c.Element.id)
		g.mu.Unlock()
		if ok {
			g.observers.notify(c)
		}
	case MeshCleared:
		g.mu.Lock()
		g.members = make(map[int]*Element)
		g.mu.Unlock()
		g.observers.notify(c)
	}
}

// Close detaches the group from its mesh
func (g *Group) Close() {
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

func (g *Group) Mesh() *Mesh    { return g.mesh }
func (g *Group) Dimension() int { return g.mesh.dimension }
func (g *Group) String() string { return fmt.Sprintf("group %q of %v", g.Name, g.mesh) }

func (g *Group) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

func (g *Group) AddElement(e *Element) error {
	if !g.mesh.ContainsElement(e) {
		return fmt.Errorf("%w: element not in %v", ErrInvalidElement, g.mesh)
	}
	g.mu.Lock()
	_, ok := g.members[e.id]
	g.members[e.id] = e
	g.mu.Unlock()
	if !ok {
		g.observers.notify(Change{Kind: ElementCreated, Element: e})
	}
	return nil
}

func (g *Group) RemoveElement(e *Element) error {
	g.mu.Lock()
	if e == nil || g.members[e.id] != e {
		g.mu.Unlock()
		return fmt.Errorf("%w: element not in %v", ErrInvalidElement, g)
	}
	delete(g.members, e.id)
	g.mu.Unlock()
	g.observers.notify(Change{Kind: ElementDestroyed, Element: e})
	return nil
}

func (g *Group) ContainsElement(e *Element) bool {
	if e == nil {
		return false
	}
	g.mu.RLock()
	member := g.members[e.id] == e
	g.mu.RUnlock()
	return member && g.mesh.ContainsElement(e)
}

func (g *Group) CreateElementIterator() *ElementIterator {
	g.mu.RLock()
	elements := make([]*Element, 0, len(g.members))
	for _, e := range g.members {
		elements = append(elements, e)
	}
	g.mu.RUnlock()
	sort.Slice(elements, func(i, j int) bool { return elements[i].id < elements[j].id })
	return &ElementIterator{elements: elements}
}

func (g *Group) Subscribe(fn func(Change)) (cancel func()) {
	return g.observers.subscribe(fn)
}
