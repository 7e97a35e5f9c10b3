package molviz

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// AtomPositionScale magnifies decoded coordinates into scene units.
	AtomPositionScale = 75.0
	// AtomSizeScale is the size of an atom primitive in scene units.
	AtomSizeScale = 25.0
	// BondThickness is the cross-section of a bond primitive.
	BondThickness = 5.0
)

// Primitive is one positioned shape. Scale is per-axis; for bonds Z is the
// length axis and Orientation rotates +Z onto the bond direction.
type Primitive struct {
	Kind        PrimitiveKind `json:"kind"`
	Position    Vec3          `json:"position"`
	Scale       Vec3          `json:"scale"`
	Orientation mgl64.Quat    `json:"orientation"`
	Material    Material      `json:"material"`
}

// Label is the element symbol drawn next to an atom.
type Label struct {
	Text     string `json:"text"`
	Color    RGB8   `json:"color"`
	Position Vec3   `json:"position"`
}

// SceneGraph is everything visible for one molecule in one style. It is
// built whole and never modified afterwards.
type SceneGraph struct {
	Token  uint64      `json:"token"`
	Name   string      `json:"name"`
	Style  RenderStyle `json:"style"`
	Atoms  []Primitive `json:"atoms"`
	Bonds  []Primitive `json:"bonds"`
	Labels []Label     `json:"labels"`
}

// Len is the total number of primitives and labels.
func (g *SceneGraph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Atoms) + len(g.Bonds) + len(g.Labels)
}

// BuildScene recenters mol and creates one primitive and one label per atom
// plus one primitive per bond. mol is not modified.
func BuildScene(mol *Molecule, style RenderStyle) (*SceneGraph, error) {
	if !style.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStyle, int(style))
	}
	if mol == nil {
		return nil, fmt.Errorf("%w: nil molecule", ErrDecode)
	}

	centered := mol.Recentered()
	g := &SceneGraph{
		Name:   mol.Name,
		Style:  style,
		Atoms:  make([]Primitive, 0, len(centered.Atoms)),
		Bonds:  make([]Primitive, 0, len(centered.Bonds)),
		Labels: make([]Label, 0, len(centered.Atoms)),
	}

	for _, a := range centered.Atoms {
		kind, mat, err := atomAppearance(style, a.Color)
		if err != nil {
			return nil, err
		}
		pos := a.Position.Mul(AtomPositionScale)
		g.Atoms = append(g.Atoms, Primitive{
			Kind:        kind,
			Position:    pos,
			Scale:       Vec3{AtomSizeScale, AtomSizeScale, AtomSizeScale},
			Orientation: mgl64.QuatIdent(),
			Material:    mat,
		})
		g.Labels = append(g.Labels, Label{Text: a.Element, Color: a.Display, Position: pos})
	}

	for _, b := range centered.Bonds {
		g.Bonds = append(g.Bonds, bondPrimitive(b.Start.Mul(AtomPositionScale), b.End.Mul(AtomPositionScale)))
	}

	return g, nil
}

func bondPrimitive(start, end Vec3) Primitive {
	dir := end.Sub(start)
	length := dir.Len()
	orient := mgl64.QuatIdent()
	if length > 0 {
		orient = mgl64.QuatBetweenVectors(Vec3{0, 0, 1}, dir.Mul(1/length))
	}
	return Primitive{
		Kind:        PrimitiveBox,
		Position:    start.Add(end).Mul(0.5),
		Scale:       Vec3{BondThickness, BondThickness, length},
		Orientation: orient,
		Material:    bondMaterial(),
	}
}

// BondEndpoints recovers the two ends of a bond primitive.
func BondEndpoints(p Primitive) (Vec3, Vec3) {
	half := p.Orientation.Rotate(Vec3{0, 0, p.Scale.Z() / 2})
	return p.Position.Sub(half), p.Position.Add(half)
}
