package molviz

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is the vector type used throughout the scene model.
type Vec3 = mgl64.Vec3

// RGB is a color with channels in [0, 1].
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// RGB8 is a color with 8-bit channels, used for label text.
type RGB8 [3]uint8

// Float converts the 8-bit color to [0, 1] channels.
func (c RGB8) Float() RGB {
	return RGB{R: float64(c[0]) / 255, G: float64(c[1]) / 255, B: float64(c[2]) / 255}
}

// Atom is one decoded atom record.
type Atom struct {
	Serial   int    `json:"serial"`
	Position Vec3   `json:"position"`
	Color    RGB    `json:"color"`
	Element  string `json:"element"`
	Display  RGB8   `json:"display_color"`
}

// Bond holds the two endpoints of a bond, already resolved to atom positions.
type Bond struct {
	Start Vec3 `json:"start"`
	End   Vec3 `json:"end"`
}

// Molecule is the decoder output. Values returned by a PresetLibrary may be
// shared between builds and must be treated as read-only.
type Molecule struct {
	Name  string `json:"name"`
	Atoms []Atom `json:"atoms"`
	Bonds []Bond `json:"bonds"`
}

// BoundingBox returns the axis-aligned bounds of the atom positions.
// ok is false for a molecule without atoms.
func (m *Molecule) BoundingBox() (min, max Vec3, ok bool) {
	if m == nil || len(m.Atoms) == 0 {
		return Vec3{}, Vec3{}, false
	}
	min = Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	max = Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, a := range m.Atoms {
		for i := 0; i < 3; i++ {
			min[i] = math.Min(min[i], a.Position[i])
			max[i] = math.Max(max[i], a.Position[i])
		}
	}
	return min, max, true
}

// Center is the bounding box center of the atoms, or the origin when empty.
func (m *Molecule) Center() Vec3 {
	min, max, ok := m.BoundingBox()
	if !ok {
		return Vec3{}
	}
	return min.Add(max).Mul(0.5)
}

// Recentered returns a copy translated so that Center() is the origin.
// Bond endpoints move by the same offset.
func (m *Molecule) Recentered() *Molecule {
	offset := m.Center()
	out := &Molecule{
		Name:  m.Name,
		Atoms: make([]Atom, len(m.Atoms)),
		Bonds: make([]Bond, len(m.Bonds)),
	}
	for i, a := range m.Atoms {
		a.Position = a.Position.Sub(offset)
		out.Atoms[i] = a
	}
	for i, b := range m.Bonds {
		out.Bonds[i] = Bond{Start: b.Start.Sub(offset), End: b.End.Sub(offset)}
	}
	return out
}
