package workspace

// RevisionClock is the per-workspace monotonically increasing mutation counter.
type RevisionClock struct {
	current int64
}

// Current returns the highest revision handed out so far.
func (c *RevisionClock) Current() int64 {
	return c.current
}

// Next advances the clock and returns the new revision.
func (c *RevisionClock) Next() int64 {
	c.current++
	return c.current
}
