package schedule

import "time"

// Interval is a booking window on one resource.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return !i.Start.IsZero() && i.End.After(i.Start)
}

// ConflictsWith reports whether i overlaps existing once existing is widened by
// buffer on both sides: s1 < e2+b && e1 > s2-b. Back-to-back windows closer than
// the buffer conflict.
func (i Interval) ConflictsWith(existing Interval, buffer time.Duration) bool {
	return i.Start.Before(existing.End.Add(buffer)) && i.End.After(existing.Start.Add(-buffer))
}

// SearchBounds returns the store predicate equivalent to ConflictsWith: an
// existing window conflicts iff its end is after endAfter and its start is
// before startBefore.
func (i Interval) SearchBounds(buffer time.Duration) (endAfter, startBefore time.Time) {
	return i.Start.Add(-buffer), i.End.Add(buffer)
}

// HasConflict reports whether candidate conflicts with any of the existing windows.
func HasConflict(candidate Interval, existing []Interval, buffer time.Duration) bool {
	for _, e := range existing {
		if candidate.ConflictsWith(e, buffer) {
			return true
		}
	}
	return false
}
