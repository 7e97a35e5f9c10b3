package molviz

import (
	"fmt"
	"strings"
)

// RenderStyle is the closed set of atom rendering styles.
type RenderStyle int

const (
	StyleSpheres RenderStyle = iota
	StyleWireframe
	StylePoints
	StyleDepth
	StyleNormal
	StylePhysical
)

// DefaultStyle is what new sessions start with.
const DefaultStyle = StyleSpheres

var styleNames = [...]string{
	StyleSpheres:   "spheres",
	StyleWireframe: "wireframe",
	StylePoints:    "points",
	StyleDepth:     "depth",
	StyleNormal:    "normal",
	StylePhysical:  "physical",
}

// AllStyles lists every style in declaration order.
func AllStyles() []RenderStyle {
	return []RenderStyle{StyleSpheres, StyleWireframe, StylePoints, StyleDepth, StyleNormal, StylePhysical}
}

func (s RenderStyle) Valid() bool {
	return s >= StyleSpheres && s <= StylePhysical
}

func (s RenderStyle) String() string {
	if !s.Valid() {
		return fmt.Sprintf("RenderStyle(%d)", int(s))
	}
	return styleNames[s]
}

// ParseRenderStyle matches a style name case-insensitively.
func ParseRenderStyle(name string) (RenderStyle, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, sn := range styleNames {
		if sn == n {
			return RenderStyle(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStyle, name)
}

func (s RenderStyle) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStyle, int(s))
	}
	return []byte(s.String()), nil
}

func (s *RenderStyle) UnmarshalText(text []byte) error {
	v, err := ParseRenderStyle(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// PrimitiveKind is the shape of a scene primitive.
type PrimitiveKind int

const (
	PrimitiveSphere PrimitiveKind = iota
	PrimitivePoint
	PrimitiveBox
)

var primitiveNames = [...]string{
	PrimitiveSphere: "sphere",
	PrimitivePoint:  "point",
	PrimitiveBox:    "box",
}

func (k PrimitiveKind) String() string {
	if k < PrimitiveSphere || k > PrimitiveBox {
		return fmt.Sprintf("PrimitiveKind(%d)", int(k))
	}
	return primitiveNames[k]
}

func (k PrimitiveKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PrimitiveKind) UnmarshalText(text []byte) error {
	for i, n := range primitiveNames {
		if n == string(text) {
			*k = PrimitiveKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown primitive kind %q", text)
}

// Shading selects how a renderer fills a primitive.
type Shading string

const (
	ShadingPhong     Shading = "phong"
	ShadingWireframe Shading = "wireframe"
	ShadingPoints    Shading = "points"
	ShadingDepth     Shading = "depth"
	ShadingNormal    Shading = "normal"
	ShadingPhysical  Shading = "physical"
)

// Material describes the surface of a primitive. Color is meaningful only
// when UsesColor is set.
type Material struct {
	Shading      Shading `json:"shading"`
	Color        RGB     `json:"color"`
	UsesColor    bool    `json:"uses_color"`
	PointSize    float64 `json:"point_size,omitempty"`
	Metalness    float64 `json:"metalness,omitempty"`
	Roughness    float64 `json:"roughness,omitempty"`
	Reflectivity float64 `json:"reflectivity,omitempty"`
	Clearcoat    float64 `json:"clearcoat,omitempty"`
}

const (
	pointSize         = 10
	physicalMetalness = 0.25
	physicalRoughness = 0.1
	physicalReflect   = 0.5
	physicalClearcoat = 1.0
)

// atomAppearance is the style table. Every style has exactly one entry.
func atomAppearance(style RenderStyle, color RGB) (PrimitiveKind, Material, error) {
	switch style {
	case StyleSpheres:
		return PrimitiveSphere, Material{Shading: ShadingPhong, Color: color, UsesColor: true}, nil
	case StyleWireframe:
		return PrimitiveSphere, Material{Shading: ShadingWireframe, Color: color, UsesColor: true}, nil
	case StylePoints:
		return PrimitivePoint, Material{Shading: ShadingPoints, Color: color, UsesColor: true, PointSize: pointSize}, nil
	case StyleDepth:
		return PrimitiveSphere, Material{Shading: ShadingDepth}, nil
	case StyleNormal:
		return PrimitiveSphere, Material{Shading: ShadingNormal}, nil
	case StylePhysical:
		return PrimitiveSphere, Material{
			Shading:      ShadingPhysical,
			Color:        color,
			UsesColor:    true,
			Metalness:    physicalMetalness,
			Roughness:    physicalRoughness,
			Reflectivity: physicalReflect,
			Clearcoat:    physicalClearcoat,
		}, nil
	}
	return 0, Material{}, fmt.Errorf("%w: %d", ErrUnknownStyle, int(style))
}

// bondMaterial is the same for every style.
func bondMaterial() Material {
	return Material{Shading: ShadingPhong, Color: RGB{R: 1, G: 1, B: 1}, UsesColor: true}
}
