package dock

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	colorBackground = color.RGBA{255, 255, 255, 255}
	colorGrid       = color.RGBA{225, 225, 225, 255}
	colorScan       = color.RGBA{40, 40, 40, 255}
	colorSensor     = color.RGBA{30, 90, 200, 255}
	colorFixture    = color.RGBA{0, 170, 0, 255}
	colorRejected   = color.RGBA{220, 120, 0, 255}
	colorGoal       = color.RGBA{0, 150, 0, 180}
	colorText       = color.RGBA{0, 0, 0, 255}
)

// sceneBounds returns the sensor-frame extent of everything a snapshot draws,
// padded by pad metres.
func sceneBounds(snap Snapshot, tmpl *TemplateModel, pad float64) orb.Bound {
	mp := orb.MultiPoint{{0, 0}}
	for _, p := range snap.Points {
		mp = append(mp, toOrb(p))
	}
	if !snap.Best.IsSentinel() && tmpl != nil {
		for _, p := range TransformPoints(tmpl.Footprint(), snap.Best.Matrix()) {
			mp = append(mp, toOrb(p))
		}
	}
	if snap.Goal != nil {
		mp = append(mp, orb.Point{snap.Goal.X, snap.Goal.Y})
	}
	return mp.Bound().Pad(pad)
}

// fixtureColor picks green for a detection at or above threshold
func fixtureColor(snap Snapshot, threshold float64) color.RGBA {
	if snap.Best.Score >= threshold {
		return colorFixture
	}
	return colorRejected
}

// caption is the one-line summary drawn on both renderings
func caption(snap Snapshot) string {
	if snap.Best.IsSentinel() {
		return fmt.Sprintf("%s: %d points, no candidate", snap.Frame, len(snap.Points))
	}
	b := snap.Best
	return fmt.Sprintf("%s: score %.1f at (%.2f, %.2f) %.0f deg",
		snap.Frame, b.Score, b.X, b.Y, b.Heading*180/math.Pi)
}

// ScanRenderer draws a detection snapshot as a raster image, sensor frame, +x right.
type ScanRenderer struct {
	Snapshot       Snapshot
	Template       *TemplateModel
	Threshold      float64
	PixelsPerMetre float64
	Padding        float64 // metres
	GridSpacing    float64 // metres
}

// NewScanRenderer creates a raster renderer with default settings
func NewScanRenderer(snap Snapshot, tmpl *TemplateModel, threshold float64) *ScanRenderer {
	return &ScanRenderer{
		Snapshot:       snap,
		Template:       tmpl,
		Threshold:      threshold,
		PixelsPerMetre: 200,
		Padding:        0.5,
		GridSpacing:    1.0,
	}
}

// Render draws the snapshot
func (r *ScanRenderer) Render() *image.RGBA {
	b := sceneBounds(r.Snapshot, r.Template, r.Padding)
	width := int(math.Ceil((b.Right() - b.Left()) * r.PixelsPerMetre))
	height := int(math.Ceil((b.Top() - b.Bottom()) * r.PixelsPerMetre))
	width, height = max(width, 1), max(height, 1)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range len(img.Pix) / 4 {
		img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] =
			colorBackground.R, colorBackground.G, colorBackground.B, colorBackground.A
	}

	// Image y grows downward.
	toPixel := func(p Point) (int, int) {
		return int(math.Round((p.X - b.Left()) * r.PixelsPerMetre)),
			int(math.Round((b.Top() - p.Y) * r.PixelsPerMetre))
	}

	if r.GridSpacing > 0 {
		for x := math.Ceil(b.Left()/r.GridSpacing) * r.GridSpacing; x <= b.Right(); x += r.GridSpacing {
			x0, y0 := toPixel(Point{X: x, Y: b.Top()})
			x1, y1 := toPixel(Point{X: x, Y: b.Bottom()})
			drawLine(img, x0, y0, x1, y1, colorGrid)
		}
		for y := math.Ceil(b.Bottom()/r.GridSpacing) * r.GridSpacing; y <= b.Top(); y += r.GridSpacing {
			x0, y0 := toPixel(Point{X: b.Left(), Y: y})
			x1, y1 := toPixel(Point{X: b.Right(), Y: y})
			drawLine(img, x0, y0, x1, y1, colorGrid)
		}
	}

	for _, p := range r.Snapshot.Points {
		x, y := toPixel(p)
		drawSquare(img, x, y, 3, colorScan)
	}

	sx, sy := toPixel(Point{})
	drawCircle(img, sx, sy, 6, colorSensor)

	if best := r.Snapshot.Best; !best.IsSentinel() && r.Template != nil {
		c := fixtureColor(r.Snapshot, r.Threshold)
		pose := best.Matrix()
		drawPolyline(img, TransformPoints(r.Template.Footprint(), pose), true, toPixel, c)
		drawPolyline(img, TransformPoints(r.Template.Profile(), pose), false, toPixel, colorScan)
	}

	if g := r.Snapshot.Goal; g != nil {
		gx, gy := toPixel(Point{X: g.X, Y: g.Y})
		drawCircle(img, gx, gy, 5, colorGoal)
		tip := Point{X: g.X + 0.15*math.Cos(g.Heading), Y: g.Y + 0.15*math.Sin(g.Heading)}
		tx, ty := toPixel(tip)
		drawLine(img, gx, gy, tx, ty, colorGoal)
	}

	drawText(img, 8, 16, caption(r.Snapshot), colorText)
	return img
}

// SavePNG renders and writes the image to path
func (r *ScanRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return png.Encode(f, r.Render())
}

func drawPolyline(img *image.RGBA, pts []Point, closed bool, toPixel func(Point) (int, int), c color.RGBA) {
	for i := 0; i+1 < len(pts); i++ {
		x0, y0 := toPixel(pts[i])
		x1, y1 := toPixel(pts[i+1])
		drawLine(img, x0, y0, x1, y1, c)
	}
	if closed && len(pts) > 2 {
		x0, y0 := toPixel(pts[len(pts)-1])
		x1, y1 := toPixel(pts[0])
		drawLine(img, x0, y0, x1, y1, c)
	}
}

// drawLine draws a 1px line using Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	bounds := img.Bounds()
	for {
		if image.Pt(x0, y0).In(bounds) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	bounds := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius && image.Pt(cx+dx, cy+dy).In(bounds) {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	bounds := img.Bounds()
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			if image.Pt(cx+dx, cy+dy).In(bounds) {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
