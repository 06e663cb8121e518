package telemetry

// Sample is an accepted reading as broadcast to the frontend channel.
type Sample struct {
	ID   int64   `json:"id"`
	Wert float64 `json:"wert"`
	Zeit float64 `json:"zeit"`
}

// Cache holds the most recent accepted sample. It is not safe for
// concurrent use; the hub serializes access.
type Cache struct {
	latest Sample
	ok     bool
}

// Store replaces the cached sample.
func (c *Cache) Store(s Sample) {
	c.latest = s
	c.ok = true
}

// Latest returns the cached sample and whether one exists.
func (c *Cache) Latest() (Sample, bool) {
	return c.latest, c.ok
}
