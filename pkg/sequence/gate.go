// Package sequence tracks per-product message ordering. A Gate is seeded from
// a snapshot's sequence number and then admits exactly the next contiguous
// sequence, flagging duplicates and gaps so the caller can resync.
package sequence

import "sync"

// State describes where a gate is in its lifecycle
type State int

// Gate lifecycle states
const (
	StateUnseeded State = iota
	StateSynced
	StateGapDetected
)

// String returns the lowercase state name
func (s State) String() string {
	switch s {
	case StateUnseeded:
		return "unseeded"
	case StateSynced:
		return "synced"
	case StateGapDetected:
		return "gap-detected"
	default:
		return "unknown"
	}
}

// Status is the gate's verdict for a single sequence number
type Status int

// Check verdicts
const (
	// StatusOK admits the message; the gate advanced.
	StatusOK Status = iota
	// StatusAlreadyProcessed marks a duplicate or stale message. Discard it
	// silently.
	StatusAlreadyProcessed
	// StatusSkip marks a gap. The message must not be applied and the book
	// needs a resync.
	StatusSkip
	// StatusUnseeded means no snapshot baseline exists yet.
	StatusUnseeded
)

// Gate tracks the expected next sequence as a snapshot baseline plus the
// count of deltas admitted since. It never advances past a gap on its own;
// once a gap is seen every later message is refused until Reset.
type Gate struct {
	mu     sync.Mutex
	base   int64
	offset int64
	state  State
}

// NewGate returns an unseeded gate
func NewGate() *Gate {
	return &Gate{state: StateUnseeded}
}

// SeedSnapshot installs a new baseline and clears any latched gap
func (g *Gate) SeedSnapshot(sequence int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.base = sequence
	g.offset = 0
	g.state = StateSynced
}

// Check classifies sequence against the expected next value, advancing the
// gate only on StatusOK
func (g *Gate) Check(sequence int64) Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateUnseeded:
		return StatusUnseeded
	case StateGapDetected:
		return StatusSkip
	}

	current := g.base + g.offset
	switch {
	case sequence <= current:
		return StatusAlreadyProcessed
	case sequence == current+1:
		g.offset++
		return StatusOK
	default:
		g.state = StateGapDetected
		return StatusSkip
	}
}

// Expected returns the sequence the gate will admit next. Meaningless while
// unseeded.
func (g *Gate) Expected() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.base + g.offset + 1
}

// Base returns the snapshot baseline
func (g *Gate) Base() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.base
}

// Offset returns the number of deltas admitted since the baseline
func (g *Gate) Offset() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.offset
}

// State returns the current lifecycle state
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Reset returns the gate to unseeded, forgetting the baseline
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.base = 0
	g.offset = 0
	g.state = StateUnseeded
}
