package agreement

import (
	"fmt"
	"strings"

	"gitlab.com/dirsrv-org/replmgr/internal/replica"
)

// changeCounter tallies changes sent toward the consumer since startup,
// split by originating replica identity. Replayed changes were actually
// sent; skipped ones were filtered or already known to the consumer.
type changeCounter struct {
	rid      replica.ID
	replayed uint64
	skipped  uint64
}

// IncChangeCount bumps the per-origin counter for one change, creating the
// counter on first sight of the origin.
func (a *Agreement) IncChangeCount(rid replica.ID, skipped bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var c *changeCounter
	for _, existing := range a.counters {
		if existing.rid == rid {
			c = existing
			break
		}
	}
	if c == nil {
		c = &changeCounter{rid: rid}
		a.counters = append(a.counters, c)
	}
	if skipped {
		c.skipped++
	} else {
		c.replayed++
	}
}

// ChangeCounts returns the replayed and skipped totals across all origins.
func (a *Agreement) ChangeCounts() (replayed, skipped uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.counters {
		replayed += c.replayed
		skipped += c.skipped
	}
	return replayed, skipped
}

// changeCountSummary renders the per-origin tallies in their reporting
// form, one "rid:replayed/skipped" clause per origin. Callers hold mu.
func (a *Agreement) changeCountSummary() string {
	if len(a.counters) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range a.counters {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d:%d/%d", c.rid, c.replayed, c.skipped)
	}
	return b.String()
}
