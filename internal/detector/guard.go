package detector

import (
	"sync"
	"time"
)

// Guard is a named single-flight exclusion: at most one holder at a time,
// overlapping attempts are dropped rather than queued. An optional cooldown
// additionally rejects re-acquisition within the window after the last
// successful acquire, bounding spam-induced work.
type Guard struct {
	name     string
	cooldown time.Duration

	mu           sync.Mutex
	held         bool
	lastAcquired time.Time
}

// NewGuard creates a guard. A zero cooldown disables the cooldown check.
func NewGuard(name string, cooldown time.Duration) *Guard {
	return &Guard{name: name, cooldown: cooldown}
}

// TryAcquire takes the guard if it is free and outside the cooldown window.
// It never blocks.
func (g *Guard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held {
		return false
	}
	if g.cooldown > 0 && !g.lastAcquired.IsZero() && time.Since(g.lastAcquired) < g.cooldown {
		return false
	}
	g.held = true
	g.lastAcquired = time.Now()
	return true
}

// Release frees the guard. Releasing an unheld guard is a no-op.
func (g *Guard) Release() {
	g.mu.Lock()
	g.held = false
	g.mu.Unlock()
}

// Name returns the guard's name.
func (g *Guard) Name() string {
	return g.name
}
