// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package structure models periodic crystal structures and derives the
// analyses stored in task documents: composition, density, CIF text,
// coordination numbers, symmetry and oxidation states.
package structure

import (
	"errors"
	"fmt"
	"math"
)

// amuPerCubicAngstrom converts amu/Å^3 to g/cm^3.
const amuPerCubicAngstrom = 1.66053906660

// Species is one occupant of a site.
type Species struct {
	Element        string   `json:"element"`
	Occu           float64  `json:"occu"`
	OxidationState *float64 `json:"oxidation_state,omitempty"`
}

// Site is an atom position in a structure.
type Site struct {
	Species []Species `json:"species"`
	ABC     Vec3      `json:"abc"`
	XYZ     Vec3      `json:"xyz"`
	Label   string    `json:"label"`
}

// Element returns the symbol of the site's first species.
func (s Site) Element() string {
	if len(s.Species) == 0 {
		return ""
	}
	return s.Species[0].Element
}

// Structure is a lattice plus the sites it contains.
type Structure struct {
	Lattice Lattice `json:"lattice"`
	Sites   []Site  `json:"sites"`
}

// New builds a structure from element symbols and coordinates. When
// cartesian is false the coordinates are fractional.
func New(lattice Lattice, elements []string, coords []Vec3, cartesian bool) (*Structure, error) {
	if len(elements) != len(coords) {
		return nil, fmt.Errorf("%d species for %d coordinates", len(elements), len(coords))
	}
	if lattice.Volume() < 1e-8 {
		return nil, errors.New("lattice has zero volume")
	}
	s := &Structure{Lattice: lattice, Sites: make([]Site, len(elements))}
	for i, el := range elements {
		if !IsElement(el) {
			return nil, fmt.Errorf("site %d: unknown element %q", i, el)
		}
		frac := coords[i]
		if cartesian {
			frac = lattice.Fractional(coords[i])
		}
		s.Sites[i] = Site{
			Species: []Species{{Element: el, Occu: 1}},
			ABC:     frac,
			XYZ:     lattice.Cartesian(frac),
			Label:   el,
		}
	}
	return s, nil
}

// NumSites returns the number of sites.
func (s *Structure) NumSites() int {
	return len(s.Sites)
}

// Volume returns the cell volume in Å^3.
func (s *Structure) Volume() float64 {
	return s.Lattice.Volume()
}

// Elements returns the element symbol of every site in order.
func (s *Structure) Elements() []string {
	out := make([]string, len(s.Sites))
	for i, site := range s.Sites {
		out[i] = site.Element()
	}
	return out
}

// Composition returns the unit-cell composition.
func (s *Structure) Composition() Composition {
	c := Composition{}
	for _, site := range s.Sites {
		for _, sp := range site.Species {
			c.add(sp.Element, sp.Occu)
		}
	}
	return c
}

// Density returns the mass density in g/cm^3.
func (s *Structure) Density() float64 {
	var mass float64
	for _, site := range s.Sites {
		for _, sp := range site.Species {
			if e, err := LookupElement(sp.Element); err == nil {
				mass += e.Mass * sp.Occu
			}
		}
	}
	return mass * amuPerCubicAngstrom / s.Volume()
}

// Copy returns a deep copy.
func (s *Structure) Copy() *Structure {
	out := &Structure{Lattice: s.Lattice, Sites: make([]Site, len(s.Sites))}
	for i, site := range s.Sites {
		site.Species = append([]Species(nil), site.Species...)
		for j := range site.Species {
			if ox := site.Species[j].OxidationState; ox != nil {
				v := *ox
				site.Species[j].OxidationState = &v
			}
		}
		out.Sites[i] = site
	}
	return out
}

// periodicDistance returns the shortest distance between fractional
// points a and b over the 27 neighbouring images.
func (s *Structure) periodicDistance(a, b Vec3) float64 {
	d := sub(b, a)
	for k := range d {
		d[k] -= math.Round(d[k])
	}
	best := math.Inf(1)
	for i := -1; i <= 1; i++ {
		for j := -1; j <= 1; j++ {
			for k := -1; k <= 1; k++ {
				v := s.Lattice.Cartesian(Vec3{d[0] + float64(i), d[1] + float64(j), d[2] + float64(k)})
				if n := norm(v); n < best {
					best = n
				}
			}
		}
	}
	return best
}
