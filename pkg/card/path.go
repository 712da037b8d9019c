package card

import (
	"math"

	"github.com/fogleman/gg"
)

// pather is the subset of *gg.Context used to trace shapes.
type pather interface {
	NewSubPath()
	MoveTo(x, y float64)
	LineTo(x, y float64)
	DrawArc(x, y, r, angle1, angle2 float64)
	ClosePath()
}

// roundedRect traces r with arc-joined corners, clockwise from the top edge:
// top-right, bottom-right, bottom-left, top-left.
func roundedRect(p pather, r Rect, radius float64) {
	radius = clampRadius(r, radius)
	x0, y0 := r.X, r.Y
	x1, y1 := r.X+r.W, r.Y+r.H

	p.NewSubPath()
	p.MoveTo(x0+radius, y0)
	p.LineTo(x1-radius, y0)
	p.DrawArc(x1-radius, y0+radius, radius, gg.Radians(270), gg.Radians(360))
	p.LineTo(x1, y1-radius)
	p.DrawArc(x1-radius, y1-radius, radius, 0, gg.Radians(90))
	p.LineTo(x0+radius, y1)
	p.DrawArc(x0+radius, y1-radius, radius, gg.Radians(90), gg.Radians(180))
	p.LineTo(x0, y0+radius)
	p.DrawArc(x0+radius, y0+radius, radius, gg.Radians(180), gg.Radians(270))
	p.ClosePath()
}

// clampRadius keeps radius within [0, min(w, h)/2].
func clampRadius(r Rect, radius float64) float64 {
	limit := math.Max(math.Min(r.W, r.H)/2, 0)
	return math.Min(math.Max(radius, 0), limit)
}
