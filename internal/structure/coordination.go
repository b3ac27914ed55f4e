// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"math"
)

// DefaultShellTolerance widens the nearest-neighbour distance when
// counting the first coordination shell.
const DefaultShellTolerance = 0.2

// CoordinationNumbers returns, for every site, the number of neighbours
// whose distance lies within (1+tol) times that site's nearest-neighbour
// distance. Periodic images are searched far enough to cover the shell.
func CoordinationNumbers(s *Structure, tol float64) []int {
	n := len(s.Sites)
	out := make([]int, n)
	if n == 0 {
		return out
	}
	spacings := s.Lattice.PlaneSpacings()

	for i := range s.Sites {
		// First pass over the adjacent images gives an upper bound on the
		// nearest distance, which fixes how many images the shell needs.
		upper := math.Inf(1)
		forImages(s, i, Vec3{1, 1, 1}, func(d float64) {
			if d < upper {
				upper = d
			}
		})
		if math.IsInf(upper, 1) {
			continue
		}
		shell := upper * (1 + tol)
		var reach Vec3
		for k := range reach {
			reach[k] = math.Max(1, math.Ceil(shell/spacings[k]))
		}

		nearest := math.Inf(1)
		var dists []float64
		forImages(s, i, reach, func(d float64) {
			dists = append(dists, d)
			if d < nearest {
				nearest = d
			}
		})
		cutoff := nearest * (1 + tol)
		for _, d := range dists {
			if d <= cutoff {
				out[i]++
			}
		}
	}
	return out
}

// forImages calls fn with the distance from site i to every other site and
// periodic image within reach cells, skipping the site itself.
func forImages(s *Structure, i int, reach Vec3, fn func(float64)) {
	origin := s.Sites[i].ABC
	ra, rb, rc := int(reach[0]), int(reach[1]), int(reach[2])
	for j, site := range s.Sites {
		d := sub(site.ABC, origin)
		for k := range d {
			d[k] -= math.Round(d[k])
		}
		for a := -ra; a <= ra; a++ {
			for b := -rb; b <= rb; b++ {
				for c := -rc; c <= rc; c++ {
					if j == i && a == 0 && b == 0 && c == 0 {
						continue
					}
					v := s.Lattice.Cartesian(Vec3{d[0] + float64(a), d[1] + float64(b), d[2] + float64(c)})
					if dist := norm(v); dist > 1e-6 {
						fn(dist)
					}
				}
			}
		}
	}
}
