package scraper

import "fmt"

// Cursor is the pagination position plus the exhausted flag.
//
// States: Active(p) -> Active(p+1) on a non-empty listing,
// Active(p) -> Exhausted on an empty listing, Exhausted -> Active(p) only
// through Reset.
type Cursor struct {
	next      int
	exhausted bool
}

// NewCursor returns a cursor positioned at page.
func NewCursor(page int) (Cursor, error) {
	var c Cursor
	if err := c.Reset(page); err != nil {
		return Cursor{}, err
	}
	return c, nil
}

// NextPage is the page the next advance will fetch.
func (c Cursor) NextPage() int {
	return c.next
}

// Exhausted reports whether the last listing fetched was empty.
func (c Cursor) Exhausted() bool {
	return c.exhausted
}

// Reset moves the cursor to page and clears the exhausted flag.
// Pages below 1 are rejected without touching the cursor.
func (c *Cursor) Reset(page int) error {
	if page < 1 {
		return fmt.Errorf("%w (got %d)", ErrPageOutOfRange, page)
	}
	c.next = page
	c.exhausted = false
	return nil
}

// take returns the page to fetch and moves past it. The move is
// unconditional: a failed fetch still consumes the page.
func (c *Cursor) take() int {
	page := c.next
	c.next++
	return page
}

func (c *Cursor) exhaust() {
	c.exhausted = true
}
