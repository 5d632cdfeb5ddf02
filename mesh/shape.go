package mesh

import (
	"fmt"
	"math"
	"sort"
)

// MaximumXiDimensions bounds the parametric dimension of any element
const MaximumXiDimensions = 3

type ElementGeometry uint8

const (
	Line ElementGeometry = iota
	Tri
	Rectangle
	Tet
	Hex
)

func (g ElementGeometry) String() string {
	switch g {
	case Line:
		return "Line"
	case Tri:
		return "Tri"
	case Rectangle:
		return "Rectangle"
	case Tet:
		return "Tet"
	case Hex:
		return "Hex"
	}
	return fmt.Sprintf("ElementGeometry(%d)", uint8(g))
}

// face is the outward half-space a·xi <= c bounding the reference domain
type face struct {
	a [MaximumXiDimensions]float64 // unit outward normal in xi space
	c float64
}

// Shape describes the reference domain of an element: the unit cube [0,1]^n
// for Line, Rectangle and Hex, the unit simplex xi_i >= 0, Σxi <= 1 for Tri
// and Tet. Shapes are immutable and shared by all elements of a geometry.
type Shape struct {
	geometry  ElementGeometry
	dimension int
	simplex   bool
	faces     []face
	// Vertex coordinates in xi space, in local node order
	vertices [][MaximumXiDimensions]float64
}

var shapes = func() map[ElementGeometry]*Shape {
	m := make(map[ElementGeometry]*Shape)
	m[Line] = newCubeShape(Line, 1)
	m[Rectangle] = newCubeShape(Rectangle, 2)
	m[Hex] = newCubeShape(Hex, 3)
	m[Tri] = newSimplexShape(Tri, 2)
	m[Tet] = newSimplexShape(Tet, 3)
	return m
}()

// ShapeFor returns the shared shape for a geometry
func ShapeFor(g ElementGeometry) (*Shape, error) {
	s, ok := shapes[g]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported geometry %v", ErrInvalidElement, g)
	}
	return s, nil
}

func newCubeShape(g ElementGeometry, dim int) *Shape {
	s := &Shape{geometry: g, dimension: dim}
	// Faces 2i: xi_i = 0, 2i+1: xi_i = 1
	for i := 0; i < dim; i++ {
		var lo, hi face
		lo.a[i] = -1
		hi.a[i] = 1
		hi.c = 1
		s.faces = append(s.faces, lo, hi)
	}
	// xi1 varies fastest
	for v := 0; v < 1<<dim; v++ {
		var xi [MaximumXiDimensions]float64
		for i := 0; i < dim; i++ {
			if v&(1<<i) != 0 {
				xi[i] = 1
			}
		}
		s.vertices = append(s.vertices, xi)
	}
	return s
}

func newSimplexShape(g ElementGeometry, dim int) *Shape {
	s := &Shape{geometry: g, dimension: dim, simplex: true}
	// Faces i: xi_i = 0, face dim: Σxi = 1
	for i := 0; i < dim; i++ {
		var f face
		f.a[i] = -1
		s.faces = append(s.faces, f)
	}
	var diag face
	for i := 0; i < dim; i++ {
		diag.a[i] = 1 / math.Sqrt(float64(dim))
	}
	diag.c = 1 / math.Sqrt(float64(dim))
	s.faces = append(s.faces, diag)

	s.vertices = append(s.vertices, [MaximumXiDimensions]float64{})
	for i := 0; i < dim; i++ {
		var xi [MaximumXiDimensions]float64
		xi[i] = 1
		s.vertices = append(s.vertices, xi)
	}
	return s
}

func (s *Shape) Geometry() ElementGeometry { return s.geometry }
func (s *Shape) Dimension() int            { return s.dimension }
func (s *Shape) IsSimplex() bool           { return s.simplex }
func (s *Shape) NumberOfFaces() int        { return len(s.faces) }
func (s *Shape) NumberOfNodes() int        { return len(s.vertices) }

// Vertex returns the xi coordinates of local node i
func (s *Shape) Vertex(i int) []float64 {
	v := s.vertices[i]
	return v[:s.dimension]
}

// Centroid writes the centroid of the reference domain into xi
func (s *Shape) Centroid(xi []float64) {
	c := 0.5
	if s.simplex {
		c = 1 / float64(s.dimension+1)
	}
	for i := 0; i < s.dimension; i++ {
		xi[i] = c
	}
}

// Contains reports whether xi lies in the domain expanded by tolerance
func (s *Shape) Contains(xi []float64, tolerance float64) bool {
	for _, f := range s.faces {
		if s.faceDistance(f, xi) > tolerance {
			return false
		}
	}
	return true
}

func (s *Shape) faceDistance(f face, xi []float64) float64 {
	d := -f.c
	for i := 0; i < s.dimension; i++ {
		d += f.a[i] * xi[i]
	}
	return d
}

// LimitXi moves xi onto the nearest point of the reference domain.
// Returns true if any component was changed.
func (s *Shape) LimitXi(xi []float64) (limited bool) {
	n := s.dimension
	for i := 0; i < n; i++ {
		if xi[i] < 0 {
			xi[i] = 0
			limited = true
		} else if !s.simplex && xi[i] > 1 {
			xi[i] = 1
			limited = true
		}
	}
	if !s.simplex {
		return
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += xi[i]
	}
	if sum <= 1 {
		return
	}
	// Euclidean projection onto {xi >= 0, Σxi = 1}
	var u [MaximumXiDimensions]float64
	copy(u[:n], xi[:n])
	sorted := u[:n]
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	var (
		cum   float64
		theta float64
	)
	for j := 0; j < n; j++ {
		cum += sorted[j]
		t := (cum - 1) / float64(j+1)
		if sorted[j]-t > 0 {
			theta = t
		}
	}
	for i := 0; i < n; i++ {
		xi[i] = math.Max(xi[i]-theta, 0)
	}
	return true
}

// FindFaceNumberForXi returns the lowest numbered face greater than
// previousFace on which xi lies within tolerance, or -1. Start with
// previousFace = -1 and feed back the result to enumerate every face
// meeting at an edge or corner.
func (s *Shape) FindFaceNumberForXi(xi []float64, tolerance float64, previousFace int) int {
	for f := previousFace + 1; f < len(s.faces); f++ {
		if math.Abs(s.faceDistance(s.faces[f], xi)) <= tolerance {
			return f
		}
	}
	return -1
}

// FaceOutwardNormal maps the outward normal of a face into value space.
// derivatives is the m×n matrix ∂f_k/∂xi_i stored row major. The face
// tangents are mapped through the derivatives and the mapped xi normal is
// orthogonalised against them, then normalised into normal (length m).
// Returns false when the mapping collapses the normal.
func (s *Shape) FaceOutwardNormal(faceNumber int, derivatives []float64, m int, normal []float64) bool {
	if faceNumber < 0 || faceNumber >= len(s.faces) || len(normal) < m {
		return false
	}
	n := s.dimension
	f := s.faces[faceNumber]

	// xi-space tangents: coordinate directions with the normal removed
	var tangents [MaximumXiDimensions][MaximumXiDimensions]float64
	nt := 0
	for j := 0; j < n && nt < n-1; j++ {
		var t [MaximumXiDimensions]float64
		t[j] = 1
		dot := f.a[j]
		for i := 0; i < n; i++ {
			t[i] -= dot * f.a[i]
		}
		for p := 0; p < nt; p++ {
			d := dot3(t, tangents[p], n)
			for i := 0; i < n; i++ {
				t[i] -= d * tangents[p][i]
			}
		}
		if norm := math.Sqrt(dot3(t, t, n)); norm > 1e-8 {
			for i := 0; i < n; i++ {
				t[i] /= norm
			}
			tangents[nt] = t
			nt++
		}
	}

	mapped := func(dir [MaximumXiDimensions]float64, out []float64) {
		for k := 0; k < m; k++ {
			var sum float64
			for i := 0; i < n; i++ {
				sum += derivatives[k*n+i] * dir[i]
			}
			out[k] = sum
		}
	}

	mapped(f.a, normal)
	var scale float64
	for k := 0; k < m; k++ {
		scale += normal[k] * normal[k]
	}
	scale = math.Sqrt(scale)
	if scale == 0 {
		return false
	}

	// Gram-Schmidt over the mapped tangents, then remove them from the normal
	basis := make([][]float64, 0, MaximumXiDimensions)
	for p := 0; p < nt; p++ {
		v := make([]float64, m)
		mapped(tangents[p], v)
		for _, b := range basis {
			d := dotN(v, b)
			for k := range v {
				v[k] -= d * b[k]
			}
		}
		if norm := math.Sqrt(dotN(v, v)); norm > 1e-12*scale {
			for k := range v {
				v[k] /= norm
			}
			basis = append(basis, v)
		}
	}
	for _, b := range basis {
		d := dotN(normal[:m], b)
		for k := 0; k < m; k++ {
			normal[k] -= d * b[k]
		}
	}
	norm := math.Sqrt(dotN(normal[:m], normal[:m]))
	if norm <= 1e-12*scale {
		return false
	}
	for k := 0; k < m; k++ {
		normal[k] /= norm
	}
	return true
}

func dot3(a, b [MaximumXiDimensions]float64, n int) (sum float64) {
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return
}

func dotN(a, b []float64) (sum float64) {
	for i := range a {
		sum += a[i] * b[i]
	}
	return
}

// Basis evaluates the linear Lagrange basis at xi. phi has NumberOfNodes
// entries; dphi, if non-nil, receives ∂phi_a/∂xi_i at dphi[a*n+i].
func (s *Shape) Basis(xi []float64, phi, dphi []float64) {
	n := s.dimension
	if s.simplex {
		phi[0] = 1
		for i := 0; i < n; i++ {
			phi[0] -= xi[i]
			phi[i+1] = xi[i]
		}
		if dphi != nil {
			for a := 0; a <= n; a++ {
				for i := 0; i < n; i++ {
					switch {
					case a == 0:
						dphi[i] = -1
					case a == i+1:
						dphi[a*n+i] = 1
					default:
						dphi[a*n+i] = 0
					}
				}
			}
		}
		return
	}
	for a, v := range s.vertices {
		p := 1.0
		for i := 0; i < n; i++ {
			p *= linear(v[i], xi[i])
		}
		phi[a] = p
		if dphi == nil {
			continue
		}
		for i := 0; i < n; i++ {
			d := 1.0
			for j := 0; j < n; j++ {
				if j == i {
					d *= 2*v[j] - 1
				} else {
					d *= linear(v[j], xi[j])
				}
			}
			dphi[a*n+i] = d
		}
	}
}

// linear is the 1-D hat function for the node at end (0 or 1)
func linear(end, x float64) float64 {
	if end == 0 {
		return 1 - x
	}
	return x
}

// SamplePoints returns a lattice of xi points with divisions intervals per
// direction, including every vertex
func (s *Shape) SamplePoints(divisions int) [][]float64 {
	if divisions < 1 {
		divisions = 1
	}
	n := s.dimension
	var (
		points [][]float64
		idx    [MaximumXiDimensions]int
	)
	for {
		xi := make([]float64, n)
		var sum int
		for i := 0; i < n; i++ {
			xi[i] = float64(idx[i]) / float64(divisions)
			sum += idx[i]
		}
		if !s.simplex || sum <= divisions {
			points = append(points, xi)
		}
		i := 0
		for ; i < n; i++ {
			idx[i]++
			if idx[i] <= divisions {
				break
			}
			idx[i] = 0
		}
		if i == n {
			return points
		}
	}
}
