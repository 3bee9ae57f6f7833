package reportvault

// Cursor iterates over the records of a Result.
type Cursor interface {
	// Next advances the cursor, returning false once no records are left.
	Next() bool

	// Record returns the record the cursor currently points to.
	Record() MatchedRecord

	// Offset returns the position of the current record within the result.
	Offset() int64
}

type resultCursor struct {
	records []MatchedRecord
	next    int
}

func (c *resultCursor) Next() bool {
	if c.next >= len(c.records) {
		return false
	}
	c.next++
	return true
}

func (c *resultCursor) Record() MatchedRecord {
	// Assumes Next() has been called (as it should)
	return c.records[c.next-1]
}

func (c *resultCursor) Offset() int64 {
	return int64(c.next - 1)
}
