// Package camera projects ring coordinates onto a 2-D circle for viewers.
package camera

import "math"

// Point is a 2-D screen coordinate.
type Point struct {
	X, Y float64
}

// RingView maps a ring of any length onto a circle on screen.
// Position 0 sits at angle Rotation; positions increase counter-clockwise
// in world terms (clockwise on a y-down screen).
type RingView struct {
	CenterX, CenterY float64
	Radius           float64
	Rotation         float64 // Radians

	// Radius constraints
	MinRadius, MaxRadius float64
}

// New creates a view centered in the viewport with the ring filling 80% of
// the shorter side.
func New(viewportW, viewportH float64) *RingView {
	v := &RingView{MinRadius: 10}
	v.Resize(viewportW, viewportH)
	return v
}

// Project converts a ring position to screen coordinates.
func (v *RingView) Project(pos, ringLength float64) Point {
	theta := v.angle(pos, ringLength)
	return Point{
		X: v.CenterX + v.Radius*math.Cos(theta),
		Y: v.CenterY + v.Radius*math.Sin(theta),
	}
}

// ProjectAll converts every position, reusing dst when it has capacity.
func (v *RingView) ProjectAll(dst []Point, positions []float64, ringLength float64) []Point {
	dst = dst[:0]
	for _, p := range positions {
		dst = append(dst, v.Project(p, ringLength))
	}
	return dst
}

// Resize recenters the view for a new viewport and rescales the radius.
func (v *RingView) Resize(viewportW, viewportH float64) {
	v.CenterX = viewportW / 2
	v.CenterY = viewportH / 2
	v.MaxRadius = math.Min(viewportW, viewportH) / 2
	v.Radius = clamp(0.4*math.Min(viewportW, viewportH), v.MinRadius, v.MaxRadius)
}

// Rotate turns the ring by dtheta radians.
func (v *RingView) Rotate(dtheta float64) {
	v.Rotation = mod(v.Rotation+dtheta, 2*math.Pi)
}

// SetRadius sets the radius, clamped to [MinRadius, MaxRadius].
func (v *RingView) SetRadius(r float64) {
	v.Radius = clamp(r, v.MinRadius, v.MaxRadius)
}

func (v *RingView) angle(pos, ringLength float64) float64 {
	if ringLength <= 0 {
		return v.Rotation
	}
	return v.Rotation + 2*math.Pi*mod(pos, ringLength)/ringLength
}

// mod returns x mod m in [0, m).
func mod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	if r >= m {
		r = 0
	}
	return r
}

func clamp(x, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
