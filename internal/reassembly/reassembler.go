// Package reassembly buffers multi-part Command responses keyed by
// sequence and assembles them into a single payload once every part has
// arrived, tolerating UDP reordering.
package reassembly

import (
	"time"

	"github.com/kongor-project/bercon/internal/codec"
)

// entryTTL is how long an incomplete entry is retained before it is swept;
// the scheduler resends an unanswered command under its original sequence
// and, with its default policy, abandons it well before then.
const entryTTL = 10 * time.Second

type entry struct {
	total     uint8
	parts     [][]byte
	have      int
	touchedAt time.Time
}

// Reassembler holds in-progress multi-part Command responses.
// Not safe for concurrent use; callers must serialize access (the session
// actor goroutine owns it exclusively).
type Reassembler struct {
	entries map[byte]*entry
}

// New creates an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{entries: make(map[byte]*entry)}
}

// Add ingests a CommandPart. When it completes the entry for its sequence,
// the assembled payload is returned with ok=true and the entry is removed.
func (r *Reassembler) Add(part *codec.CommandPart, now time.Time) (payload []byte, ok bool) {
	e, exists := r.entries[part.Seq]
	if exists && e.total != part.Total {
		// Protocol violation: a different total for an already-seen
		// sequence. Drop the stored entry and ignore the incoming part;
		// later parts for this sequence start a fresh entry.
		delete(r.entries, part.Seq)
		return nil, false
	}
	if !exists {
		e = &entry{
			total: part.Total,
			parts: make([][]byte, part.Total),
		}
		r.entries[part.Seq] = e
	}

	if int(part.Index) >= len(e.parts) {
		// Out-of-range index for the declared total; ignore.
		return nil, false
	}

	if e.parts[part.Index] == nil {
		e.parts[part.Index] = part.Data
		e.have++
	}
	e.touchedAt = now

	if e.have < int(e.total) {
		return nil, false
	}

	total := 0
	for _, p := range e.parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range e.parts {
		out = append(out, p...)
	}

	delete(r.entries, part.Seq)
	return out, true
}

// DropSeq discards any in-progress entry for seq, e.g. when the Scheduler
// reclaims that sequence for a new in-flight command.
func (r *Reassembler) DropSeq(seq byte) {
	delete(r.entries, seq)
}

// Reset discards all in-progress entries, e.g. across a reconnect.
func (r *Reassembler) Reset() {
	r.entries = make(map[byte]*entry)
}

// GC removes entries that have not completed within entryTTL.
func (r *Reassembler) GC(now time.Time) {
	for seq, e := range r.entries {
		if now.Sub(e.touchedAt) > entryTTL {
			delete(r.entries, seq)
		}
	}
}

// Pending reports how many sequences currently have an incomplete entry.
func (r *Reassembler) Pending() int {
	return len(r.entries)
}
