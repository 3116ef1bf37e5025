package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2026-03-01 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func window(from, to string) Interval {
	return Interval{Start: at(from), End: at(to)}
}

func TestConflictsWith_BufferedOverlap(t *testing.T) {
	existing := window("11:30", "12:30")

	// Buffered existing window is [10:30, 13:30].
	assert.True(t, window("10:00", "11:00").ConflictsWith(existing, time.Hour))
	assert.False(t, window("08:00", "09:00").ConflictsWith(existing, time.Hour))
}

func TestConflictsWith_Edges(t *testing.T) {
	existing := window("11:30", "12:30")

	cases := []struct {
		name      string
		candidate Interval
		buffer    time.Duration
		want      bool
	}{
		{"ends exactly at buffered start", window("09:30", "10:30"), time.Hour, false},
		{"starts exactly at buffered end", window("13:30", "14:30"), time.Hour, false},
		{"one minute into buffer", window("09:31", "10:31"), time.Hour, true},
		{"back to back without buffer", window("12:30", "13:30"), 0, false},
		{"back to back with buffer", window("12:30", "13:30"), time.Hour, true},
		{"contains existing", window("08:00", "18:00"), 0, true},
		{"inside existing", window("11:45", "12:00"), 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.candidate.ConflictsWith(existing, c.buffer))
		})
	}
}

func TestConflictsWith_Symmetric(t *testing.T) {
	a := window("10:00", "11:00")
	b := window("11:30", "12:30")
	assert.Equal(t, a.ConflictsWith(b, time.Hour), b.ConflictsWith(a, time.Hour))
	assert.Equal(t, a.ConflictsWith(b, 15*time.Minute), b.ConflictsWith(a, 15*time.Minute))
}

func TestHasConflict(t *testing.T) {
	existing := []Interval{window("08:00", "09:00"), window("15:00", "16:00")}

	assert.False(t, HasConflict(window("11:00", "12:00"), existing, time.Hour))
	assert.True(t, HasConflict(window("12:00", "14:30"), existing, time.Hour))
	assert.False(t, HasConflict(window("12:00", "14:30"), nil, time.Hour))
}

func TestSearchBoundsMatchesConflictsWith(t *testing.T) {
	candidate := window("10:00", "11:00")
	endAfter, startBefore := candidate.SearchBounds(time.Hour)

	for _, existing := range []Interval{
		window("11:30", "12:30"),
		window("12:00", "13:00"),
		window("06:00", "08:59"),
		window("06:00", "09:01"),
	} {
		bySQL := existing.End.After(endAfter) && existing.Start.Before(startBefore)
		assert.Equal(t, candidate.ConflictsWith(existing, time.Hour), bySQL, "%v", existing)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, window("10:00", "11:00").Valid())
	assert.False(t, window("11:00", "11:00").Valid())
	assert.False(t, window("11:00", "10:00").Valid())
	assert.False(t, Interval{}.Valid())
}
