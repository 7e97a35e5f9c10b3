// Package raster draws molviz frames into images with a painter's-algorithm
// software renderer.
package raster

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/daniacca/molviz/internal/molviz"
	"github.com/fogleman/gg"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/image/font/basicfont"
)

// ErrNoScene is returned when a frame carries no scene to draw.
var ErrNoScene = errors.New("frame has no scene")

// Renderer holds drawing options. The zero value is not usable; use New.
type Renderer struct {
	Background color.Color
	Labels     bool
}

// New returns a renderer with a black background and labels on.
func New() *Renderer {
	return &Renderer{Background: color.Black, Labels: true}
}

// Projection maps world points of one frame onto the image.
type Projection struct {
	modelView mgl64.Mat4
	proj      mgl64.Mat4
	width     float64
	height    float64
	focal     float64
}

// NewProjection prepares the transform for f.
func NewProjection(f molviz.Frame) Projection {
	w, h := float64(f.Viewport.Width), float64(f.Viewport.Height)
	return Projection{
		modelView: f.Camera.View().Mul4(f.Rotation.Matrix()),
		proj:      f.Camera.Projection(),
		width:     w,
		height:    h,
		focal:     h / 2 / math.Tan(mgl64.DegToRad(f.Camera.FOV)/2),
	}
}

// Point projects p to pixel coordinates. depth is the distance along the
// view axis; ok is false for points behind the camera.
func (pr Projection) Point(p molviz.Vec3) (x, y, depth float64, ok bool) {
	view := pr.modelView.Mul4x1(p.Vec4(1))
	depth = -view.Z()
	if depth <= 0 {
		return 0, 0, depth, false
	}
	clip := pr.proj.Mul4x1(view)
	ndc := clip.Vec3().Mul(1 / clip.W())
	x = (ndc.X() + 1) / 2 * pr.width
	y = (1 - ndc.Y()) / 2 * pr.height
	return x, y, depth, true
}

// Size converts a world-space length at depth into pixels.
func (pr Projection) Size(world, depth float64) float64 {
	return world * pr.focal / depth
}

type drawable struct {
	depth float64
	draw  func(dc *gg.Context)
}

// Render draws f into a new image of the frame's viewport size.
func (r *Renderer) Render(f molviz.Frame) (image.Image, error) {
	if f.Scene == nil {
		return nil, ErrNoScene
	}
	if err := f.Viewport.Validate(); err != nil {
		return nil, err
	}

	dc := gg.NewContext(f.Viewport.Width, f.Viewport.Height)
	dc.SetColor(r.Background)
	dc.Clear()

	pr := NewProjection(f)
	items := make([]drawable, 0, len(f.Scene.Atoms)+len(f.Scene.Bonds))

	for _, a := range f.Scene.Atoms {
		x, y, depth, ok := pr.Point(a.Position)
		if !ok {
			continue
		}
		items = append(items, drawable{depth: depth, draw: func(dc *gg.Context) {
			drawAtom(dc, pr, a, x, y, depth, f.Camera)
		}})
	}

	for _, b := range f.Scene.Bonds {
		start, end := molviz.BondEndpoints(b)
		x1, y1, d1, ok1 := pr.Point(start)
		x2, y2, d2, ok2 := pr.Point(end)
		if !ok1 || !ok2 {
			continue
		}
		depth := (d1 + d2) / 2
		width := math.Max(1, pr.Size(b.Scale.X(), depth))
		c := b.Material.Color
		items = append(items, drawable{depth: depth, draw: func(dc *gg.Context) {
			dc.SetLineCapRound()
			dc.SetLineWidth(width)
			dc.SetRGB(c.R*0.55, c.G*0.55, c.B*0.55)
			dc.DrawLine(x1, y1, x2, y2)
			dc.Stroke()
			dc.SetLineWidth(math.Max(1, width*0.6))
			dc.SetRGB(c.R, c.G, c.B)
			dc.DrawLine(x1, y1, x2, y2)
			dc.Stroke()
		}})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].depth > items[j].depth })
	for _, it := range items {
		it.draw(dc)
	}

	if r.Labels {
		dc.SetFontFace(basicfont.Face7x13)
		for _, l := range f.Scene.Labels {
			x, y, _, ok := pr.Point(l.Position)
			if !ok {
				continue
			}
			dc.SetRGB255(int(l.Color[0]), int(l.Color[1]), int(l.Color[2]))
			dc.DrawStringAnchored(l.Text, x, y, 0.5, 0.5)
		}
	}

	return dc.Image(), nil
}

// EncodePNG renders f and encodes it as PNG.
func (r *Renderer) EncodePNG(f molviz.Frame) ([]byte, error) {
	img, err := r.Render(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gg.NewContextForImage(img).EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawAtom(dc *gg.Context, pr Projection, a molviz.Primitive, x, y, depth float64, cam molviz.Camera) {
	m := a.Material
	if a.Kind == molviz.PrimitivePoint {
		size := math.Max(1, m.PointSize*(pr.height/2)/depth)
		dc.SetRGB(m.Color.R, m.Color.G, m.Color.B)
		dc.DrawRectangle(x-size/2, y-size/2, size, size)
		dc.Fill()
		return
	}

	radius := math.Max(1, pr.Size(a.Scale.X(), depth))
	switch m.Shading {
	case molviz.ShadingWireframe:
		dc.SetLineWidth(1)
		dc.SetRGB(m.Color.R, m.Color.G, m.Color.B)
		dc.DrawCircle(x, y, radius)
		dc.DrawEllipse(x, y, radius, radius*0.35)
		dc.DrawEllipse(x, y, radius*0.35, radius)
		dc.Stroke()
	case molviz.ShadingDepth:
		g := 1 - clamp((depth-cam.Near)/(cam.Far-cam.Near))
		dc.SetRGB(g, g, g)
		dc.DrawCircle(x, y, radius)
		dc.Fill()
	case molviz.ShadingNormal:
		grad := gg.NewRadialGradient(x-radius*0.3, y-radius*0.3, 0, x, y, radius)
		grad.AddColorStop(0, color.RGBA{R: 128, G: 128, B: 255, A: 255})
		grad.AddColorStop(0.6, color.RGBA{R: 160, G: 110, B: 230, A: 255})
		grad.AddColorStop(1, color.RGBA{R: 90, G: 200, B: 160, A: 255})
		dc.SetFillStyle(grad)
		dc.DrawCircle(x, y, radius)
		dc.Fill()
	case molviz.ShadingPhysical:
		shadedSphere(dc, x, y, radius, m.Color, 0.15+0.5*m.Metalness)
		spot := radius * (0.12 + 0.2*m.Roughness)
		dc.SetRGBA(1, 1, 1, 0.6*m.Clearcoat+0.3*m.Reflectivity)
		dc.DrawCircle(x-radius*0.35, y-radius*0.35, spot)
		dc.Fill()
	default:
		shadedSphere(dc, x, y, radius, m.Color, 0.25)
	}
}

func shadedSphere(dc *gg.Context, x, y, radius float64, c molviz.RGB, ambient float64) {
	grad := gg.NewRadialGradient(x-radius*0.35, y-radius*0.35, 0, x, y, radius)
	grad.AddColorStop(0, toRGBA(lerp(c, molviz.RGB{R: 1, G: 1, B: 1}, 0.6)))
	grad.AddColorStop(0.5, toRGBA(c))
	grad.AddColorStop(1, toRGBA(molviz.RGB{R: c.R * ambient, G: c.G * ambient, B: c.B * ambient}))
	dc.SetFillStyle(grad)
	dc.DrawCircle(x, y, radius)
	dc.Fill()
}

func lerp(a, b molviz.RGB, t float64) molviz.RGB {
	return molviz.RGB{R: a.R + (b.R-a.R)*t, G: a.G + (b.G-a.G)*t, B: a.B + (b.B-a.B)*t}
}

func toRGBA(c molviz.RGB) color.RGBA {
	return color.RGBA{
		R: uint8(clamp(c.R)*255 + 0.5),
		G: uint8(clamp(c.G)*255 + 0.5),
		B: uint8(clamp(c.B)*255 + 0.5),
		A: 255,
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
