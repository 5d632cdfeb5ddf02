package field

import (
	"fmt"

	"github.com/notargets/DGField/mesh"
)

type LocationKind uint8

const (
	// LocationTime has only a time
	LocationTime LocationKind = iota
	LocationNode
	LocationElementXi
)

// Location is where a Cache evaluates fields. It is a value type; the
// element and node are references, xi is stored inline.
type Location struct {
	kind    LocationKind
	time    float64
	node    *mesh.Node
	element *mesh.Element
	top     *mesh.Element
	xi      [mesh.MaximumXiDimensions]float64
}

func (l Location) Kind() LocationKind             { return l.kind }
func (l Location) Time() float64                  { return l.time }
func (l Location) Node() *mesh.Node               { return l.node }
func (l Location) Element() *mesh.Element         { return l.element }
func (l Location) TopLevelElement() *mesh.Element { return l.top }

// Xi returns the element xi; its length is the element dimension
func (l Location) Xi() []float64 {
	if l.element == nil {
		return nil
	}
	xi := l.xi
	return xi[:l.element.Dimension()]
}

func (l Location) String() string {
	switch l.kind {
	case LocationNode:
		return fmt.Sprintf("node %d t=%g", l.node.ID(), l.time)
	case LocationElementXi:
		return fmt.Sprintf("%v xi=%v t=%g", l.element, l.Xi(), l.time)
	}
	return fmt.Sprintf("t=%g", l.time)
}
