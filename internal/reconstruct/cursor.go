package reconstruct

// DefaultEdgeTolerance is the leftover row width, in samples, too narrow to
// hold another real tile. It matches the minimum tile size.
const DefaultEdgeTolerance = 5

// Cursor tracks the next open canvas slot in raster order.
type Cursor struct {
	X, Y int

	width     int
	tolerance int
}

// NewCursor returns a cursor at (0, 0) for a canvas of the given width.
func NewCursor(canvasWidth, tolerance int) *Cursor {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Cursor{width: canvasWidth, tolerance: tolerance}
}

// Limit returns the x position at which the cursor wraps to the next row.
// Canvases no wider than the tolerance wrap at their full width.
func (c *Cursor) Limit() int {
	if limit := c.width - c.tolerance; limit > 0 {
		return limit
	}
	return c.width
}

// Advance moves the cursor past a placed tile of size w x h. When the row is
// full the cursor returns to x = 0 and moves down by h, the height of the tile
// just placed. It reports whether the cursor wrapped.
func (c *Cursor) Advance(w, h int) bool {
	c.X += w
	if c.X >= c.Limit() {
		c.X = 0
		c.Y += h
		return true
	}
	return false
}
