// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"math"
	"sort"
)

// maxReductionSteps bounds the Selling reduction loop.
const maxReductionSteps = 1000

// delaunayBasis returns the unimodular integer matrix M whose rows give a
// Delaunay-reduced basis in terms of l's vectors: L' = M L. The lattice
// is returned unchanged (M = I) if reduction fails to settle.
func delaunayBasis(l Lattice) [3][3]int {
	identity := [3][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	tol := 1e-5 * math.Pow(l.Volume(), 2.0/3)

	// Superbase b0..b3 with b3 = -(b0+b1+b2), each tracked as integer
	// coefficients over the input vectors.
	b := [4]Vec3{l.Matrix[0], l.Matrix[1], l.Matrix[2]}
	c := [4][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {-1, -1, -1}}
	for k := 0; k < 3; k++ {
		b[3][k] = -(b[0][k] + b[1][k] + b[2][k])
	}

	settled := false
	for step := 0; step < maxReductionSteps && !settled; step++ {
		settled = true
	pairs:
		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				if dot(b[i], b[j]) <= tol {
					continue
				}
				for k := 0; k < 4; k++ {
					if k == i || k == j {
						continue
					}
					for m := 0; m < 3; m++ {
						b[k][m] += b[i][m]
						c[k][m] += c[i][m]
					}
				}
				for m := 0; m < 3; m++ {
					b[i][m], c[i][m] = -b[i][m], -c[i][m]
				}
				settled = false
				break pairs
			}
		}
	}
	if !settled {
		return identity
	}

	type candidate struct {
		v Vec3
		c [3]int
	}
	cands := []candidate{{b[0], c[0]}, {b[1], c[1]}, {b[2], c[2]}, {b[3], c[3]}}
	for _, p := range [][2]int{{0, 1}, {1, 2}, {2, 0}} {
		var sum candidate
		for m := 0; m < 3; m++ {
			sum.v[m] = b[p[0]][m] + b[p[1]][m]
			sum.c[m] = c[p[0]][m] + c[p[1]][m]
		}
		cands = append(cands, sum)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return norm(cands[i].v) < norm(cands[j].v)-tol
	})

	var m [3][3]int
	var picked []Vec3
	for _, cand := range cands {
		switch len(picked) {
		case 0:
		case 1:
			if norm(cross(picked[0], cand.v)) <= tol {
				continue
			}
		case 2:
			if math.Abs(dot(cross(picked[0], picked[1]), cand.v)) <= tol {
				continue
			}
		}
		m[len(picked)] = cand.c
		picked = append(picked, cand.v)
		if len(picked) == 3 {
			break
		}
	}
	if len(picked) < 3 {
		return identity
	}
	switch idet(m) {
	case 1:
		return m
	case -1:
		for k := 0; k < 3; k++ {
			m[2][k] = -m[2][k]
		}
		return m
	}
	return identity
}

// reduced returns s expressed in the basis L' = M L. Fractional
// coordinates transform as x' = M^-T x.
func (s *Structure) reduced(m [3][3]int) *Structure {
	var lm Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				lm[i][j] += float64(m[i][k]) * s.Lattice.Matrix[k][j]
			}
		}
	}
	invT := itranspose(iinverse(m))

	out := s.Copy()
	out.Lattice = NewLattice(lm)
	for i := range out.Sites {
		out.Sites[i].ABC = wrap(applyRotation(invT, s.Sites[i].ABC))
	}
	return out
}

// toInputBasis maps an operation found in the basis L' = M L back to the
// input basis: R = M^T R' M^-T and t = M^T t'.
func toInputBasis(op Operation, m [3][3]int) Operation {
	mt := itranspose(m)
	return Operation{
		Rotation:    imul(imul(mt, op.Rotation), itranspose(iinverse(m))),
		Translation: wrap(applyRotation(mt, op.Translation)),
	}
}

func wrap(x Vec3) Vec3 {
	for k := range x {
		x[k] -= math.Floor(x[k])
		if x[k] > 1-1e-8 {
			x[k] = 0
		}
	}
	return x
}

func imul(a, b [3][3]int) [3][3]int {
	var out [3][3]int
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

func itranspose(a [3][3]int) [3][3]int {
	var out [3][3]int
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[j][i]
		}
	}
	return out
}

// iinverse inverts a unimodular matrix.
func iinverse(a [3][3]int) [3][3]int {
	d := idet(a)
	var out [3][3]int
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			// Cofactor of a[j][i].
			r0, r1 := (j+1)%3, (j+2)%3
			c0, c1 := (i+1)%3, (i+2)%3
			out[i][j] = (a[r0][c0]*a[r1][c1] - a[r0][c1]*a[r1][c0]) * d
		}
	}
	return out
}
