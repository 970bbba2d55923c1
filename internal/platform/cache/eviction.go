package cache

import "time"

// evictOne removes a single victim chosen by the store strategy and returns
// its key. Caller must hold the lock.
func (s *Store) evictOne(now time.Time) string {
	var victim *entry

	switch s.strategy {
	case StrategyFrequency:
		victim = leastFrequent(s.entries)
	case StrategyExpiryFirst:
		victim = earliestExpired(s.entries, now)
		if victim == nil {
			victim = leastRecent(s.entries)
		}
	default:
		victim = leastRecent(s.entries)
	}

	if victim == nil {
		return ""
	}
	delete(s.entries, victim.key)
	s.stats.evictions++
	return victim.key
}

func leastRecent(entries map[string]*entry) *entry {
	var victim *entry
	for _, e := range entries {
		if victim == nil || e.lastAccessed.Before(victim.lastAccessed) ||
			(e.lastAccessed.Equal(victim.lastAccessed) && e.key < victim.key) {
			victim = e
		}
	}
	return victim
}

// leastFrequent breaks access-count ties by the oldest creation time.
func leastFrequent(entries map[string]*entry) *entry {
	var victim *entry
	for _, e := range entries {
		if victim == nil || e.accessCount < victim.accessCount {
			victim = e
			continue
		}
		if e.accessCount != victim.accessCount {
			continue
		}
		if e.createdAt.Before(victim.createdAt) ||
			(e.createdAt.Equal(victim.createdAt) && e.key < victim.key) {
			victim = e
		}
	}
	return victim
}

func earliestExpired(entries map[string]*entry, now time.Time) *entry {
	var victim *entry
	var victimDeadline time.Time
	for _, e := range entries {
		if !e.expired(now) {
			continue
		}
		deadline := e.createdAt.Add(e.ttl)
		if victim == nil || deadline.Before(victimDeadline) {
			victim, victimDeadline = e, deadline
		}
	}
	return victim
}
