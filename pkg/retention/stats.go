package retention

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats contains statistics from a retention sweep.
type Stats struct {
	StartTime time.Time // When the sweep started
	EndTime   time.Time // When the sweep ended
	DryRun    bool      // Nothing was removed; counts are what would have been

	Checked    uint64 // Blobs evaluated against a rule
	Removed    uint64 // Blobs removed because a rule expired them
	Orphans    uint64 // Blobs removed for having no owners
	Untracked  uint64 // Backend objects removed for having no index row
	Failed     uint64 // Removals that failed and were skipped
	FreedBytes uint64 // Bytes released by all removals
}

// Duration returns the total sweep duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Total returns how many blobs and objects the sweep removed.
func (s *Stats) Total() uint64 {
	return s.Removed + s.Orphans + s.Untracked
}

// Summary returns a human-readable summary of the sweep.
func (s *Stats) Summary() string {
	summary := fmt.Sprintf("checked=%d removed=%d orphans=%d untracked=%d failed=%d freed=%s duration=%s",
		s.Checked, s.Removed, s.Orphans, s.Untracked, s.Failed,
		humanize.Bytes(s.FreedBytes), s.Duration().Round(time.Millisecond))
	if s.DryRun {
		summary += " (dry run)"
	}
	return summary
}
