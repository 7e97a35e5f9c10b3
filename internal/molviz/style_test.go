package molviz

import (
	"encoding/json"
	"testing"
)

func TestParseRenderStyle(t *testing.T) {
	tests := []struct {
		in   string
		want RenderStyle
	}{
		{"spheres", StyleSpheres},
		{"Wireframe", StyleWireframe},
		{" POINTS ", StylePoints},
		{"depth", StyleDepth},
		{"normal", StyleNormal},
		{"physical", StylePhysical},
	}
	for _, tt := range tests {
		got, err := ParseRenderStyle(tt.in)
		if err != nil {
			t.Fatalf("ParseRenderStyle(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseRenderStyle(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseRenderStyle("toon"); err == nil {
		t.Error("expected error for unknown style")
	}
}

func TestRenderStyle_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Style RenderStyle `json:"style"`
	}{StylePhysical})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"style":"physical"}` {
		t.Errorf("unexpected JSON %s", data)
	}

	var back struct {
		Style RenderStyle `json:"style"`
	}
	if err := json.Unmarshal([]byte(`{"style":"depth"}`), &back); err != nil {
		t.Fatal(err)
	}
	if back.Style != StyleDepth {
		t.Errorf("expected depth, got %v", back.Style)
	}

	if _, err := json.Marshal(RenderStyle(42)); err == nil {
		t.Error("expected error marshalling an invalid style")
	}
}

func TestAtomAppearance_Table(t *testing.T) {
	red := RGB{R: 1}

	tests := []struct {
		style     RenderStyle
		kind      PrimitiveKind
		shading   Shading
		usesColor bool
	}{
		{StyleSpheres, PrimitiveSphere, ShadingPhong, true},
		{StyleWireframe, PrimitiveSphere, ShadingWireframe, true},
		{StylePoints, PrimitivePoint, ShadingPoints, true},
		{StyleDepth, PrimitiveSphere, ShadingDepth, false},
		{StyleNormal, PrimitiveSphere, ShadingNormal, false},
		{StylePhysical, PrimitiveSphere, ShadingPhysical, true},
	}
	if len(tests) != len(AllStyles()) {
		t.Fatalf("table covers %d styles, AllStyles has %d", len(tests), len(AllStyles()))
	}

	for _, tt := range tests {
		t.Run(tt.style.String(), func(t *testing.T) {
			kind, mat, err := atomAppearance(tt.style, red)
			if err != nil {
				t.Fatal(err)
			}
			if kind != tt.kind {
				t.Errorf("kind = %v, want %v", kind, tt.kind)
			}
			if mat.Shading != tt.shading {
				t.Errorf("shading = %v, want %v", mat.Shading, tt.shading)
			}
			if mat.UsesColor != tt.usesColor {
				t.Errorf("uses color = %v, want %v", mat.UsesColor, tt.usesColor)
			}
			if tt.usesColor && mat.Color != red {
				t.Errorf("color = %v, want %v", mat.Color, red)
			}
		})
	}

	_, mat, _ := atomAppearance(StylePoints, red)
	if mat.PointSize != 10 {
		t.Errorf("point size = %v, want 10", mat.PointSize)
	}

	_, mat, _ = atomAppearance(StylePhysical, red)
	if mat.Metalness != 0.25 || mat.Roughness != 0.1 || mat.Reflectivity != 0.5 || mat.Clearcoat != 1.0 {
		t.Errorf("unexpected physical material %+v", mat)
	}

	if _, _, err := atomAppearance(RenderStyle(-1), red); err == nil {
		t.Error("expected error for invalid style")
	}
}
