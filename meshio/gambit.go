package meshio

import (
	"fmt"

	"github.com/notargets/gocfd/DG3D/mesh/readers"

	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/mesh"
)

// ReadGambitTets reads the tetrahedra of a mesh file (Gambit neutral, or
// any format the gocfd readers recognise) into a 3-D mesh with a coordinate
// field. Other element types in the file are skipped.
func ReadGambitTets(path string) (*mesh.Mesh, *field.FiniteElement, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read mesh %s: %w", path, err)
	}

	m, err := mesh.NewMesh(3)
	if err != nil {
		return nil, nil, err
	}
	coords, err := field.NewFiniteElement(CoordinatesName, m, 3)
	if err != nil {
		return nil, nil, err
	}
	nodes := m.CreateNodes(len(msh.Vertices))
	for i, v := range msh.Vertices {
		if err = coords.SetNodeValues(nodes[i], v[0], v[1], v[2]); err != nil {
			return nil, nil, err
		}
	}

	var numTets int
	for k, verts := range msh.EtoV {
		if len(verts) != 4 {
			continue
		}
		elementNodes := make([]*mesh.Node, 4)
		for a, v := range verts {
			if v < 0 || v >= len(nodes) {
				return nil, nil, fmt.Errorf("mesh %s: element %d references vertex %d of %d",
					path, k, v, len(nodes))
			}
			elementNodes[a] = nodes[v]
		}
		if _, err = m.CreateElement(mesh.Tet, elementNodes); err != nil {
			return nil, nil, err
		}
		numTets++
	}
	if numTets == 0 {
		return nil, nil, fmt.Errorf("mesh file %s does not have any tets", path)
	}
	return m, coords, nil
}
