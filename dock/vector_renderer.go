package dock

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer draws a detection snapshot as vector graphics.
// Canvas units are millimetres; one scan metre is one canvas metre.
type VectorRenderer struct {
	Snapshot    Snapshot
	Template    *TemplateModel
	Threshold   float64
	Padding     float64           // metres
	GridSpacing float64           // metres
	Resolution  canvas.Resolution // PNG output only
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(snap Snapshot, tmpl *TemplateModel, threshold float64) *VectorRenderer {
	return &VectorRenderer{
		Snapshot:    snap,
		Template:    tmpl,
		Threshold:   threshold,
		Padding:     0.5,
		GridSpacing: 1.0,
		Resolution:  canvas.DPMM(0.2), // 200 px per metre, matching ScanRenderer
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

const mmPerMetre = 1000.0

// RenderToSVG writes the snapshot as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	width, height := r.size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the snapshot as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	width, height := r.size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) size() (float64, float64) {
	b := sceneBounds(r.Snapshot, r.Template, r.Padding)
	return (b.Right() - b.Left()) * mmPerMetre, (b.Top() - b.Bottom()) * mmPerMetre
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, width, height float64) {
	b := sceneBounds(r.Snapshot, r.Template, r.Padding)
	// Canvas y grows upward like the sensor frame, so only an offset is needed.
	toCanvas := func(p Point) (float64, float64) {
		return (p.X - b.Left()) * mmPerMetre, (p.Y - b.Bottom()) * mmPerMetre
	}

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	if r.GridSpacing > 0 {
		gridStyle := strokeStyle(colorGrid, 5)
		for x := math.Ceil(b.Left()/r.GridSpacing) * r.GridSpacing; x <= b.Right(); x += r.GridSpacing {
			renderer.RenderPath(polylinePath([]Point{{X: x, Y: b.Bottom()}, {X: x, Y: b.Top()}}, false, toCanvas), gridStyle, canvas.Identity)
		}
		for y := math.Ceil(b.Bottom()/r.GridSpacing) * r.GridSpacing; y <= b.Top(); y += r.GridSpacing {
			renderer.RenderPath(polylinePath([]Point{{X: b.Left(), Y: y}, {X: b.Right(), Y: y}}, false, toCanvas), gridStyle, canvas.Identity)
		}
	}

	scanStyle := fillStyle(colorScan)
	for _, p := range r.Snapshot.Points {
		x, y := toCanvas(p)
		renderer.RenderPath(canvas.Circle(8), scanStyle, canvas.Identity.Translate(x, y))
	}

	sx, sy := toCanvas(Point{})
	renderer.RenderPath(canvas.Circle(30), fillStyle(colorSensor), canvas.Identity.Translate(sx, sy))

	if best := r.Snapshot.Best; !best.IsSentinel() && r.Template != nil {
		pose := best.Matrix()
		footprint := polylinePath(TransformPoints(r.Template.Footprint(), pose), true, toCanvas)
		renderer.RenderPath(footprint, strokeStyle(fixtureColor(r.Snapshot, r.Threshold), 15), canvas.Identity)
		profile := polylinePath(TransformPoints(r.Template.Profile(), pose), false, toCanvas)
		renderer.RenderPath(profile, strokeStyle(colorScan, 10), canvas.Identity)
	}

	if g := r.Snapshot.Goal; g != nil {
		gx, gy := toCanvas(Point{X: g.X, Y: g.Y})
		renderer.RenderPath(canvas.Circle(25), fillStyle(colorGoal), canvas.Identity.Translate(gx, gy))
		tip := Point{X: g.X + 0.15*math.Cos(g.Heading), Y: g.Y + 0.15*math.Sin(g.Heading)}
		renderer.RenderPath(polylinePath([]Point{{X: g.X, Y: g.Y}, tip}, false, toCanvas), strokeStyle(colorGoal, 10), canvas.Identity)
	}
}

func polylinePath(pts []Point, closed bool, toCanvas func(Point) (float64, float64)) *canvas.Path {
	cp := &canvas.Path{}
	for i, p := range pts {
		x, y := toCanvas(p)
		if i == 0 {
			cp.MoveTo(x, y)
		} else {
			cp.LineTo(x, y)
		}
	}
	if closed {
		cp.Close()
	}
	return cp
}

func fillStyle(c color.RGBA) canvas.Style {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: c}
	style.Stroke = canvas.Paint{Color: canvas.Transparent}
	return style
}

func strokeStyle(c color.RGBA, width float64) canvas.Style {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: canvas.Transparent}
	style.Stroke = canvas.Paint{Color: c}
	style.StrokeWidth = width
	return style
}
