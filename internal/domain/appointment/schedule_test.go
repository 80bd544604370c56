package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustWindow(t *testing.T, date time.Time, clock string, duration int) Window {
	t.Helper()
	w, err := NewWindow(date, clock, duration)
	require.NoError(t, err)
	return w
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		clock string
		want  int
	}{
		{"00:00", 0},
		{"09:00", 540},
		{"9:05", 545},
		{"12:30", 750},
		{"23:59", 1439},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.clock)
		require.NoError(t, err, tc.clock)
		assert.Equal(t, tc.want, got, tc.clock)
	}

	for _, bad := range []string{"", "9", "24:00", "12:60", "-1:00", "ab:cd", "09:1x"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClockTime, bad)
	}
}

func TestFormatClock12(t *testing.T) {
	assert.Equal(t, "12:00 AM", FormatClock12(0))
	assert.Equal(t, "9:00 AM", FormatClock12(540))
	assert.Equal(t, "12:00 PM", FormatClock12(720))
	assert.Equal(t, "1:05 PM", FormatClock12(785))
	assert.Equal(t, "11:45 PM", FormatClock12(1425))
}

func TestNewWindowRejectsBadInput(t *testing.T) {
	_, err := NewWindow(day(2025, time.March, 1), "25:00", 30)
	assert.ErrorIs(t, err, ErrInvalidClockTime)

	_, err = NewWindow(day(2025, time.March, 1), "09:00", -1)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestWindowOverlaps(t *testing.T) {
	d := day(2025, time.March, 1)
	base := mustWindow(t, d, "09:00", 30)

	overlapping := mustWindow(t, d, "09:15", 30)
	assert.True(t, base.Overlaps(overlapping))
	assert.True(t, overlapping.Overlaps(base), "overlap must be symmetric")

	contained := mustWindow(t, d, "09:10", 10)
	assert.True(t, base.Overlaps(contained))
	assert.True(t, contained.Overlaps(base))

	disjoint := mustWindow(t, d, "11:00", 30)
	assert.False(t, base.Overlaps(disjoint))
	assert.False(t, disjoint.Overlaps(base))
}

func TestWindowOverlapsIsHalfOpen(t *testing.T) {
	d := day(2025, time.March, 1)
	first := mustWindow(t, d, "09:00", 30)
	backToBack := mustWindow(t, d, "09:30", 30)

	assert.False(t, first.Overlaps(backToBack))
	assert.False(t, backToBack.Overlaps(first))
}

func TestWindowOverlapsAcrossMidnight(t *testing.T) {
	late := mustWindow(t, day(2025, time.March, 1), "23:45", 30)

	earlyNextDay := mustWindow(t, day(2025, time.March, 2), "00:00", 15)
	assert.True(t, late.Overlaps(earlyNextDay))
	assert.True(t, earlyNextDay.Overlaps(late))

	// The late window ends at 00:15 the next day; a slot starting right
	// then is back to back, not a conflict.
	afterNextDay := mustWindow(t, day(2025, time.March, 2), "00:15", 15)
	assert.False(t, late.Overlaps(afterNextDay))

	// Same clock times a full day apart never conflict.
	sameClockNextDay := mustWindow(t, day(2025, time.March, 2), "23:45", 30)
	assert.False(t, late.Overlaps(sameClockNextDay))
}

func TestClockRange(t *testing.T) {
	w := mustWindow(t, day(2025, time.March, 1), "09:00", 30)
	assert.Equal(t, "9:00 AM to 9:30 AM", w.ClockRange())

	wrap := mustWindow(t, day(2025, time.March, 1), "23:45", 30)
	assert.Equal(t, "11:45 PM to 12:15 AM", wrap.ClockRange())
}
