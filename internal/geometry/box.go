package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	ErrInvalidPolygon    = errors.New("polygon has no vertices")
)

// decimals matches the precision the detection service client reports boxes with
const decimals = 5

// Rect is the rect-origin box encoding used for faces and people (pixels)
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Vertex is a single polygon corner in pixels
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is the vertex box encoding used for vehicles. Vertices are not
// guaranteed to be in any particular order.
type Polygon []Vertex

// Box is a bounding box in fractional coordinates, each edge in [0,1]
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// RectToFraction converts a rect-origin pixel box into a fractional box
func RectToFraction(r Rect, width, height int) (Box, error) {
	if err := checkDimensions(width, height); err != nil {
		return Box{}, err
	}

	w, h := float64(width), float64(height)
	return newBox(r.X/w, r.Y/h, (r.X+r.Width)/w, (r.Y+r.Height)/h), nil
}

// VerticesToFraction converts a vertex polygon into the smallest axis-aligned
// fractional box containing every vertex
func VerticesToFraction(p Polygon, width, height int) (Box, error) {
	if err := checkDimensions(width, height); err != nil {
		return Box{}, err
	}
	if len(p) == 0 {
		return Box{}, ErrInvalidPolygon
	}

	minX, minY := p[0].X, p[0].Y
	maxX, maxY := p[0].X, p[0].Y
	for _, v := range p[1:] {
		minX = math.Min(minX, v.X)
		minY = math.Min(minY, v.Y)
		maxX = math.Max(maxX, v.X)
		maxY = math.Max(maxY, v.Y)
	}

	w, h := float64(width), float64(height)
	return newBox(minX/w, minY/h, maxX/w, maxY/h), nil
}

// ToPixels converts the box back to absolute pixel coordinates
func (b Box) ToPixels(width, height int) image.Rectangle {
	return image.Rect(
		int(math.Round(b.Left*float64(width))),
		int(math.Round(b.Top*float64(height))),
		int(math.Round(b.Right*float64(width))),
		int(math.Round(b.Bottom*float64(height))),
	)
}

// Valid reports whether the box is inside [0,1] with ordered edges
func (b Box) Valid() bool {
	return b.Left >= 0 && b.Top >= 0 && b.Right <= 1 && b.Bottom <= 1 &&
		b.Left <= b.Right && b.Top <= b.Bottom
}

func (b Box) String() string {
	return fmt.Sprintf("(%.5f, %.5f, %.5f, %.5f)", b.Left, b.Top, b.Right, b.Bottom)
}

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return nil
}

// newBox clamps and orders the edges. Boxes past the image edge are clamped,
// not rejected.
func newBox(left, top, right, bottom float64) Box {
	left, right = clamp(left), clamp(right)
	top, bottom = clamp(top), clamp(bottom)
	if left > right {
		left, right = right, left
	}
	if top > bottom {
		top, bottom = bottom, top
	}
	return Box{
		Left:   round(left),
		Top:    round(top),
		Right:  round(right),
		Bottom: round(bottom),
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round(v float64) float64 {
	p := math.Pow(10, decimals)
	return math.Round(v*p) / p
}
