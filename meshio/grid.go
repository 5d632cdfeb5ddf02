// Package meshio builds meshes together with their coordinate field.
package meshio

import (
	"fmt"
	"math"

	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/mesh"
)

// CoordinatesName is the name of coordinate fields built here
const CoordinatesName = "coordinates"

// Grid2D builds nx by ny rectangles covering [0,nx]×[0,ny]. Element (i,j)
// has identifier j*nx+i. Interior nodes are displaced deterministically by
// up to distortion/4 in each direction; distortion in [0,1) keeps every
// element convex.
func Grid2D(nx, ny int, distortion float64) (*mesh.Mesh, *field.FiniteElement, error) {
	if nx < 1 || ny < 1 {
		return nil, nil, fmt.Errorf("grid %dx%d: need at least one element per direction", nx, ny)
	}
	if distortion < 0 || distortion >= 1 {
		return nil, nil, fmt.Errorf("grid distortion %g outside [0,1)", distortion)
	}
	m, err := mesh.NewMesh(2)
	if err != nil {
		return nil, nil, err
	}
	coords, err := field.NewFiniteElement(CoordinatesName, m, 2)
	if err != nil {
		return nil, nil, err
	}

	nodes := m.CreateNodes((nx + 1) * (ny + 1))
	node := func(i, j int) *mesh.Node { return nodes[j*(nx+1)+i] }
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			x, y := float64(i), float64(j)
			if i > 0 && i < nx && j > 0 && j < ny {
				x += 0.25 * distortion * math.Sin(2.1*x+1.3*y)
				y += 0.25 * distortion * math.Cos(1.7*x-0.9*y)
			}
			if err = coords.SetNodeValues(node(i, j), x, y); err != nil {
				return nil, nil, err
			}
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			_, err = m.CreateElement(mesh.Rectangle, []*mesh.Node{
				node(i, j), node(i+1, j), node(i, j+1), node(i+1, j+1),
			})
			if err != nil {
				return nil, nil, err
			}
		}
	}
	return m, coords, nil
}
