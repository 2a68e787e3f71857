package voidcheck

import (
	"sort"
	"sync"
)

// Snapshot is the immutable result of one aggregation: one Identity per user,
// kept in the order users were first discovered.
type Snapshot struct {
	order []string
	byID  map[string]Identity
}

// Len returns the number of distinct valid reactors.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Get returns the identity recorded for userID.
func (s *Snapshot) Get(userID string) (Identity, bool) {
	if s == nil {
		return Identity{}, false
	}
	id, ok := s.byID[userID]
	return id, ok
}

// Identities returns every identity in discovery order.
func (s *Snapshot) Identities() []Identity {
	if s == nil {
		return nil
	}
	out := make([]Identity, 0, len(s.order))
	for _, userID := range s.order {
		out = append(out, s.byID[userID])
	}
	return out
}

// collector is the working state shared by the tasks of one aggregation run.
// A user is claimed once, at discovery, which fixes its position in the order.
type collector struct {
	mu      sync.Mutex
	claimed map[string]int
	records map[string]Identity
}

func newCollector() *collector {
	return &collector{
		claimed: map[string]int{},
		records: map[string]Identity{},
	}
}

// claim registers userID and reports whether this call discovered it.
func (c *collector) claim(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.claimed[userID]; ok {
		return false
	}
	c.claimed[userID] = len(c.claimed)
	return true
}

func (c *collector) discovered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claimed)
}

func (c *collector) put(identity Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[identity.UserID] = identity
}

// snapshot freezes the collected identities. Call only after every task has finished.
func (c *collector) snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	order := make([]string, 0, len(c.records))
	byID := make(map[string]Identity, len(c.records))
	for userID, identity := range c.records {
		order = append(order, userID)
		byID[userID] = identity
	}
	sort.Slice(order, func(i, j int) bool {
		return c.claimed[order[i]] < c.claimed[order[j]]
	})
	return &Snapshot{order: order, byID: byID}
}
