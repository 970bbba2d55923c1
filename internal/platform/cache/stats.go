package cache

// Stats is a snapshot of a store's counters.
type Stats struct {
	Name      string   `json:"name"`
	Strategy  Strategy `json:"strategy"`
	Hits      int64    `json:"hits"`
	Misses    int64    `json:"misses"`
	Sets      int64    `json:"sets"`
	Deletes   int64    `json:"deletes"`
	Evictions int64    `json:"evictions"`
	Size      int      `json:"size"`
	Capacity  int      `json:"capacity"`
	HitRate   float64  `json:"hitRate"`
}

type counters struct {
	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64
}

func (c counters) snapshot(name string, size, capacity int, strategy Strategy) Stats {
	s := Stats{
		Name:      name,
		Strategy:  strategy,
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Deletes:   c.deletes,
		Evictions: c.evictions,
		Size:      size,
		Capacity:  capacity,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
