package cellgrid

// Box is an axis-aligned bounding box in the x/y plane. cellgrid is
// documented 2D-only: coordinates carry a z component throughout the
// particle data model, but find_cell_id pins the z bin to 0 and Box never
// carries a z extent (spec.md §9, second Open Question, resolved in favor
// of "document 2D-only").
type Box struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Contains reports whether (x, y) lies within the box, inclusive.
func (b Box) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Intersects reports whether b and o overlap, including edge-touching.
func (b Box) Intersects(o Box) bool {
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX &&
		b.MinY <= o.MaxY && b.MaxY >= o.MinY
}
