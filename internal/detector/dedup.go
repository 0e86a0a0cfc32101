package detector

import "sync"

// Deduper tracks symbols that already alerted so a market hovering around
// the threshold cannot storm the channel. It is owned and injected by the
// detector, never package state. A symbol stays suppressed while it keeps
// scoring above threshold; once it cools off it is evicted and may alert
// again on a genuinely fresh surge.
type Deduper struct {
	mu      sync.Mutex
	alerted map[string]bool
}

// NewDeduper creates an empty deduplicator
func NewDeduper() *Deduper {
	return &Deduper{alerted: make(map[string]bool)}
}

// Marked reports whether the symbol already alerted this epoch
func (d *Deduper) Marked(symbol string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alerted[symbol]
}

// Mark records that the symbol alerted
func (d *Deduper) Mark(symbol string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerted[symbol] = true
}

// Reconcile evicts every marked symbol that is no longer hot. Called at
// the end of each detection cycle with the set of symbols that still score
// above threshold.
func (d *Deduper) Reconcile(stillHot map[string]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for symbol := range d.alerted {
		if !stillHot[symbol] {
			delete(d.alerted, symbol)
		}
	}
}

// Reset clears all state
func (d *Deduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerted = make(map[string]bool)
}

// Size returns the number of currently suppressed symbols
func (d *Deduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.alerted)
}
