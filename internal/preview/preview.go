// Package preview rasterizes a renderable collection and a position trace
// into a small image for quick visual checks of pipeline output.
package preview

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	"github.com/chai2010/webp"
	"github.com/paulmach/orb"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/woozymasta/geoshard/internal/geo"
)

// supersample renders at a multiple of the output size before scaling down.
const supersample = 2

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("nothing to draw")

// Options controls the output image.
type Options struct {
	Width   int
	Height  int
	Quality float32
	Fill    color.Color
	Stroke  color.Color
	Trace   color.Color
}

// DefaultOptions mirror the map styling of the viewer.
func DefaultOptions() Options {
	return Options{
		Width:   512,
		Height:  512,
		Quality: 85,
		Fill:    color.NRGBA{R: 0x33, G: 0x88, B: 0xff, A: 0x33},
		Stroke:  color.NRGBA{R: 0x33, G: 0x88, B: 0xff, A: 0xff},
		Trace:   color.NRGBA{R: 0xe0, G: 0x30, B: 0x30, A: 0xff},
	}
}

// Render draws all features of c and the trace polyline.
// Collection and trace must share one coordinate reference.
func Render(c *geo.Collection, trace []orb.Point, opts Options) (image.Image, error) {
	bound, ok := extent(c, trace)
	if !ok {
		return nil, ErrEmpty
	}
	def := DefaultOptions()
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = def.Width, def.Height
	}
	if opts.Fill == nil {
		opts.Fill = def.Fill
	}
	if opts.Stroke == nil {
		opts.Stroke = def.Stroke
	}
	if opts.Trace == nil {
		opts.Trace = def.Trace
	}

	w, h := opts.Width*supersample, opts.Height*supersample
	p := newProjector(bound, w, h)

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	fill := vector.NewRasterizer(w, h)
	stroke := vector.NewRasterizer(w, h)
	lineWidth := float32(supersample)

	if c != nil {
		for _, f := range c.Features {
			if f == nil {
				continue
			}
			drawGeometry(f.Geometry, p, fill, stroke, lineWidth)
		}
	}

	fill.Draw(canvas, canvas.Bounds(), image.NewUniform(opts.Fill), image.Point{})
	stroke.Draw(canvas, canvas.Bounds(), image.NewUniform(opts.Stroke), image.Point{})

	if len(trace) > 0 {
		tr := vector.NewRasterizer(w, h)
		strokeLine(tr, p, trace, lineWidth*2)
		last := p.project(trace[len(trace)-1])
		square(tr, last, lineWidth*4)
		tr.Draw(canvas, canvas.Bounds(), image.NewUniform(opts.Trace), image.Point{})
	}

	out := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), canvas, canvas.Bounds(), draw.Over, nil)

	return out, nil
}

// Encode writes img as lossy WebP.
func Encode(w io.Writer, img image.Image, quality float32) error {
	if quality <= 0 {
		quality = DefaultOptions().Quality
	}
	return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: quality})
}

func extent(c *geo.Collection, trace []orb.Point) (orb.Bound, bool) {
	var (
		bound orb.Bound
		ok    bool
	)
	if c != nil && len(c.Features) > 0 {
		bound, ok = c.Bound(), true
	}
	for _, pt := range trace {
		if !ok {
			bound, ok = pt.Bound(), true
			continue
		}
		bound = bound.Extend(pt)
	}

	return bound, ok
}

type projector struct {
	bound  orb.Bound
	scale  float64
	offX   float64
	offY   float64
	height float64
}

// newProjector fits bound into w x h keeping the aspect ratio, with a small margin.
func newProjector(bound orb.Bound, w, h int) projector {
	const margin = 0.05

	dx := bound.Max[0] - bound.Min[0]
	dy := bound.Max[1] - bound.Min[1]
	if dx == 0 {
		dx = 1
	}
	if dy == 0 {
		dy = 1
	}

	usableW := float64(w) * (1 - 2*margin)
	usableH := float64(h) * (1 - 2*margin)
	scale := math.Min(usableW/dx, usableH/dy)

	return projector{
		bound:  bound,
		scale:  scale,
		offX:   (float64(w) - dx*scale) / 2,
		offY:   (float64(h) - dy*scale) / 2,
		height: float64(h),
	}
}

// project maps a coordinate to pixel space with y pointing down.
func (p projector) project(pt orb.Point) [2]float32 {
	x := p.offX + (pt[0]-p.bound.Min[0])*p.scale
	y := p.height - (p.offY + (pt[1]-p.bound.Min[1])*p.scale)
	return [2]float32{float32(x), float32(y)}
}

func drawGeometry(g orb.Geometry, p projector, fill, stroke *vector.Rasterizer, width float32) {
	switch g := g.(type) {
	case orb.Point:
		square(stroke, p.project(g), width*2)
	case orb.MultiPoint:
		for _, pt := range g {
			square(stroke, p.project(pt), width*2)
		}
	case orb.LineString:
		strokeLine(stroke, p, g, width)
	case orb.MultiLineString:
		for _, ls := range g {
			strokeLine(stroke, p, ls, width)
		}
	case orb.Ring:
		fillRing(fill, p, g)
		strokeLine(stroke, p, orb.LineString(g), width)
	case orb.Polygon:
		for _, r := range g {
			fillRing(fill, p, r)
			strokeLine(stroke, p, orb.LineString(r), width)
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			drawGeometry(poly, p, fill, stroke, width)
		}
	case orb.Collection:
		for _, part := range g {
			drawGeometry(part, p, fill, stroke, width)
		}
	}
}

func fillRing(z *vector.Rasterizer, p projector, r orb.Ring) {
	if len(r) < 3 {
		return
	}
	start := p.project(r[0])
	z.MoveTo(start[0], start[1])
	for _, pt := range r[1:] {
		q := p.project(pt)
		z.LineTo(q[0], q[1])
	}
	z.ClosePath()
}

// strokeLine draws each segment as a filled quad of the given width.
func strokeLine(z *vector.Rasterizer, p projector, ls orb.LineString, width float32) {
	half := width / 2
	for i := 1; i < len(ls); i++ {
		a, b := p.project(ls[i-1]), p.project(ls[i])
		dx, dy := b[0]-a[0], b[1]-a[1]
		length := float32(math.Hypot(float64(dx), float64(dy)))
		if length == 0 {
			continue
		}
		nx, ny := -dy/length*half, dx/length*half

		z.MoveTo(a[0]+nx, a[1]+ny)
		z.LineTo(b[0]+nx, b[1]+ny)
		z.LineTo(b[0]-nx, b[1]-ny)
		z.LineTo(a[0]-nx, a[1]-ny)
		z.ClosePath()
	}
}

func square(z *vector.Rasterizer, c [2]float32, size float32) {
	half := size / 2
	z.MoveTo(c[0]-half, c[1]-half)
	z.LineTo(c[0]+half, c[1]-half)
	z.LineTo(c[0]+half, c[1]+half)
	z.LineTo(c[0]-half, c[1]+half)
	z.ClosePath()
}
