package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildStrip(t *testing.T, count int) (*Mesh, []*Element) {
	m, err := NewMesh(2)
	require.NoError(t, err)
	nodes := m.CreateNodes(2 * (count + 1))
	elements := make([]*Element, count)
	for i := 0; i < count; i++ {
		elements[i], err = m.CreateElement(Rectangle, []*Node{
			nodes[2*i], nodes[2*i+2], nodes[2*i+1], nodes[2*i+3],
		})
		require.NoError(t, err)
	}
	return m, elements
}

func TestCreateElementValidation(t *testing.T) {
	m, err := NewMesh(2)
	require.NoError(t, err)
	nodes := m.CreateNodes(4)

	_, err = m.CreateElement(Hex, nodes)
	assert.ErrorIs(t, err, ErrInvalidElement)
	_, err = m.CreateElement(Rectangle, nodes[:3])
	assert.ErrorIs(t, err, ErrInvalidElement)

	other, _ := NewMesh(2)
	_, err = m.CreateElement(Rectangle, other.CreateNodes(4))
	assert.ErrorIs(t, err, ErrInvalidElement)

	_, err = NewMesh(4)
	assert.Error(t, err)
}

func TestMeshIterationAndDestroy(t *testing.T) {
	m, elements := buildStrip(t, 4)
	var changes []Change
	cancel := m.Subscribe(func(c Change) { changes = append(changes, c) })
	defer cancel()

	require.NoError(t, m.DestroyElement(elements[1]))
	assert.False(t, m.ContainsElement(elements[1]))
	assert.Error(t, m.DestroyElement(elements[1]))
	assert.Equal(t, 3, m.Size())

	var ids []int
	it := m.CreateElementIterator()
	for e := it.Next(); e != nil; e = it.Next() {
		ids = append(ids, e.ID())
	}
	assert.Equal(t, []int{0, 2, 3}, ids)

	// Identifiers are not reused
	e, err := m.CreateElement(Rectangle, elements[0].Nodes())
	require.NoError(t, err)
	assert.Equal(t, 4, e.ID())

	require.Len(t, changes, 2)
	assert.Equal(t, ElementDestroyed, changes[0].Kind)
	assert.Same(t, elements[1], changes[0].Element)
	assert.Equal(t, ElementCreated, changes[1].Kind)

	m.Clear()
	assert.Equal(t, 0, m.Size())
	assert.Equal(t, MeshCleared, changes[2].Kind)
}

func TestGroup(t *testing.T) {
	m, elements := buildStrip(t, 3)
	g := NewGroup("right", m)
	defer g.Close()

	var changes []Change
	g.Subscribe(func(c Change) { changes = append(changes, c) })

	require.NoError(t, g.AddElement(elements[2]))
	require.NoError(t, g.AddElement(elements[0]))
	assert.Equal(t, 2, g.Size())
	assert.True(t, g.ContainsElement(elements[0]))
	assert.False(t, g.ContainsElement(elements[1]))

	it := g.CreateElementIterator()
	assert.Same(t, elements[0], it.Next())
	assert.Same(t, elements[2], it.Next())
	assert.Nil(t, it.Next())

	// Destroying a member in the mesh is forwarded; non-members are not
	require.NoError(t, m.DestroyElement(elements[1]))
	require.NoError(t, m.DestroyElement(elements[2]))
	assert.Equal(t, 1, g.Size())
	require.Len(t, changes, 3)
	assert.Equal(t, ElementDestroyed, changes[2].Kind)
	assert.Same(t, elements[2], changes[2].Element)

	assert.Error(t, g.RemoveElement(elements[2]))
	other, _ := buildStrip(t, 1)
	assert.Error(t, g.AddElement(other.FindElementByID(0)))
}
