package application

import (
	"sync"
	"time"
)

const defaultDiagnosticsSize = 10

// DiagnosticEntry is one note recorded by a pipeline stage.
type DiagnosticEntry struct {
	At      time.Time `json:"at"`
	CycleID string    `json:"cycle_id"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

// DiagnosticsSink receives stage notes. Implementations must be safe for
// concurrent use.
type DiagnosticsSink interface {
	Record(entry DiagnosticEntry)
}

// Diagnostics keeps the most recent entries in a fixed-size ring.
type Diagnostics struct {
	mu      sync.Mutex
	entries []DiagnosticEntry
	next    int
	full    bool
}

// NewDiagnostics constructs a ring; size <= 0 uses the default.
func NewDiagnostics(size int) *Diagnostics {
	if size <= 0 {
		size = defaultDiagnosticsSize
	}
	return &Diagnostics{entries: make([]DiagnosticEntry, size)}
}

// Record appends an entry, overwriting the oldest once full.
func (d *Diagnostics) Record(entry DiagnosticEntry) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[d.next] = entry
	d.next = (d.next + 1) % len(d.entries)
	if d.next == 0 {
		d.full = true
	}
}

// Entries returns the retained entries, oldest first.
func (d *Diagnostics) Entries() []DiagnosticEntry {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.full {
		out := make([]DiagnosticEntry, d.next)
		copy(out, d.entries[:d.next])
		return out
	}
	out := make([]DiagnosticEntry, 0, len(d.entries))
	out = append(out, d.entries[d.next:]...)
	out = append(out, d.entries[:d.next]...)
	return out
}
