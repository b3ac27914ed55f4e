// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"encoding/json"
	"math"
)

// Vec3 is a 3-vector in fractional or cartesian space.
type Vec3 [3]float64

// Mat3 is a 3x3 matrix stored row-major.
type Mat3 [3][3]float64

// Lattice is a periodic cell whose rows are the lattice vectors in Å.
type Lattice struct {
	Matrix Mat3
}

// NewLattice returns a lattice with the given row vectors.
func NewLattice(m Mat3) Lattice {
	return Lattice{Matrix: m}
}

// Abc returns the lengths of the three lattice vectors.
func (l Lattice) Abc() Vec3 {
	return Vec3{norm(l.Matrix[0]), norm(l.Matrix[1]), norm(l.Matrix[2])}
}

// Angles returns alpha, beta and gamma in degrees.
func (l Lattice) Angles() Vec3 {
	m := l.Matrix
	return Vec3{
		angle(m[1], m[2]),
		angle(m[0], m[2]),
		angle(m[0], m[1]),
	}
}

// Volume returns the cell volume in Å^3.
func (l Lattice) Volume() float64 {
	return math.Abs(det(l.Matrix))
}

// Cartesian converts fractional coordinates to cartesian.
func (l Lattice) Cartesian(frac Vec3) Vec3 {
	var out Vec3
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			out[j] += frac[i] * l.Matrix[i][j]
		}
	}
	return out
}

// Fractional converts cartesian coordinates to fractional.
func (l Lattice) Fractional(cart Vec3) Vec3 {
	inv := inverse(l.Matrix)
	var out Vec3
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			out[j] += cart[i] * inv[i][j]
		}
	}
	return out
}

// Metric returns the metric tensor G with G[i][j] = a_i . a_j.
func (l Lattice) Metric() Mat3 {
	var g Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			g[i][j] = dot(l.Matrix[i], l.Matrix[j])
		}
	}
	return g
}

// PlaneSpacings returns the distance between adjacent lattice planes
// spanned by each pair of vectors; index k is the spacing along a_k.
func (l Lattice) PlaneSpacings() Vec3 {
	v := l.Volume()
	m := l.Matrix
	return Vec3{
		v / norm(cross(m[1], m[2])),
		v / norm(cross(m[0], m[2])),
		v / norm(cross(m[0], m[1])),
	}
}

type latticeJSON struct {
	Matrix Mat3    `json:"matrix"`
	A      float64 `json:"a"`
	B      float64 `json:"b"`
	C      float64 `json:"c"`
	Alpha  float64 `json:"alpha"`
	Beta   float64 `json:"beta"`
	Gamma  float64 `json:"gamma"`
	Volume float64 `json:"volume"`
}

// MarshalJSON writes the matrix together with the derived parameters so
// stored documents can be queried on them.
func (l Lattice) MarshalJSON() ([]byte, error) {
	abc := l.Abc()
	ang := l.Angles()
	return json.Marshal(latticeJSON{
		Matrix: l.Matrix,
		A:      abc[0], B: abc[1], C: abc[2],
		Alpha: ang[0], Beta: ang[1], Gamma: ang[2],
		Volume: l.Volume(),
	})
}

// UnmarshalJSON reads the matrix; derived parameters are recomputed.
func (l *Lattice) UnmarshalJSON(data []byte) error {
	var lj latticeJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return err
	}
	l.Matrix = lj.Matrix
	return nil
}

func dot(a, b Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm(a Vec3) float64 {
	return math.Sqrt(dot(a, a))
}

func sub(a, b Vec3) Vec3 {
	return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func angle(a, b Vec3) float64 {
	c := dot(a, b) / (norm(a) * norm(b))
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi
}

func det(m Mat3) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

func inverse(m Mat3) Mat3 {
	d := det(m)
	var inv Mat3
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / d
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / d
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / d
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / d
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / d
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / d
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / d
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / d
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / d
	return inv
}
