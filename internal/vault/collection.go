package vault

// Collection is the in-memory record set of one vault view. Records keep
// their pointer identity across mutations that do not touch them.
type Collection struct {
	records []*Password
	version uint64
}

// NewCollection creates a collection holding the given records in order
func NewCollection(records []*Password) *Collection {
	c := &Collection{}
	c.Reset(records)
	return c
}

// Reset replaces the whole set, e.g. after a fresh List from the store
func (c *Collection) Reset(records []*Password) {
	c.records = make([]*Password, 0, len(records))
	for _, p := range records {
		if p != nil {
			c.records = append(c.records, p)
		}
	}
	c.version++
}

// All returns the records in order. The slice is a copy; the records are not.
func (c *Collection) All() []*Password {
	out := make([]*Password, len(c.records))
	copy(out, c.records)
	return out
}

// Len returns the number of records
func (c *Collection) Len() int {
	return len(c.records)
}

// Version increases on every mutation
func (c *Collection) Version() uint64 {
	return c.version
}

// Get looks up a record by id
func (c *Collection) Get(id string) (*Password, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return c.records[i], true
}

// Add appends a newly created record
func (c *Collection) Add(p *Password) {
	c.records = append(c.records, p)
	c.version++
}

// Replace swaps the record with the same id in place. It returns false and
// leaves the set untouched when no such record exists.
func (c *Collection) Replace(p *Password) bool {
	i := c.indexOf(p.ID)
	if i < 0 {
		return false
	}
	c.records[i] = p
	c.version++
	return true
}

// Remove drops the record with the given id
func (c *Collection) Remove(id string) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.records = append(c.records[:i:i], c.records[i+1:]...)
	c.version++
	return true
}

func (c *Collection) indexOf(id string) int {
	for i, p := range c.records {
		if p.ID == id {
			return i
		}
	}
	return -1
}
