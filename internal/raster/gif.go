package raster

import (
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"time"

	"github.com/daniacca/molviz/internal/molviz"
)

// Turntable renders frames of one scene at evenly spaced loop times, step
// apart, starting from base.
func Turntable(base molviz.Frame, count int, step time.Duration) []molviz.Frame {
	frames := make([]molviz.Frame, 0, count)
	for i := 0; i < count; i++ {
		f := base
		f.Seq = uint64(i + 1)
		f.Elapsed = base.Elapsed + time.Duration(i)*step
		f.Rotation = molviz.RotationAt(f.Elapsed)
		frames = append(frames, f)
	}
	return frames
}

// EncodeGIF renders every frame and writes an endlessly looping GIF. delay is
// per frame, in hundredths of a second.
func (r *Renderer) EncodeGIF(w io.Writer, frames []molviz.Frame, delay int) error {
	anim := &gif.GIF{LoopCount: 0}
	for _, f := range frames {
		img, err := r.Render(f)
		if err != nil {
			return err
		}
		anim.Image = append(anim.Image, toPaletted(img))
		anim.Delay = append(anim.Delay, delay)
	}
	return gif.EncodeAll(w, anim)
}

func toPaletted(img image.Image) *image.Paletted {
	b := img.Bounds()
	pal := image.NewPaletted(b, palette.Plan9)
	draw.FloydSteinberg.Draw(pal, b, img, b.Min)
	return pal
}
