package logic

// Cursor is the long-poll offset: the identifier of the next inbound item
// that has not been processed yet. It never decreases.
type Cursor struct {
	next int64
}

// NewCursor returns a cursor positioned at start. Negative values clamp to 0.
func NewCursor(start int64) *Cursor {
	if start < 0 {
		start = 0
	}
	return &Cursor{next: start}
}

// Offset returns the identifier to request items from.
func (c *Cursor) Offset() int64 {
	return c.next
}

// Advance moves the cursor past id if id has not been seen yet.
// It returns false, leaving the cursor untouched, for already seen ids.
func (c *Cursor) Advance(id int64) bool {
	if id < c.next {
		return false
	}
	c.next = id + 1
	return true
}
