package appointment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 1440

// Window is a booked span of clinic time: a calendar date, a start minute
// within that date, and a duration. A window may run past midnight, in which
// case it spills into the following calendar date.
type Window struct {
	Date         time.Time
	StartMinute  int
	DurationMins int
}

// NewWindow parses a 24-hour "HH:MM" clock string into a Window.
func NewWindow(date time.Time, clock string, durationMins int) (Window, error) {
	start, err := ParseClock(clock)
	if err != nil {
		return Window{}, err
	}
	if durationMins < 0 {
		return Window{}, ErrInvalidDuration
	}
	return Window{Date: date, StartMinute: start, DurationMins: durationMins}, nil
}

// absStart positions the window on a single absolute-minute axis
// (days since the Unix epoch × 1440 + minute of day), so windows on
// different calendar dates compare correctly across midnight.
func (w Window) absStart() int64 {
	return (w.Date.Unix()/86400)*minutesPerDay + int64(w.StartMinute)
}

func (w Window) absEnd() int64 {
	return w.absStart() + int64(w.DurationMins)
}

// Overlaps reports whether the two windows conflict. Intervals are half-open:
// a window ending exactly when another starts does not conflict, so
// back-to-back bookings are allowed.
func (w Window) Overlaps(other Window) bool {
	return w.absStart() < other.absEnd() && other.absStart() < w.absEnd()
}

// ClockRange renders the window for conflict messages, e.g.
// "9:00 AM to 9:30 AM". An end past midnight wraps to the next day's clock.
func (w Window) ClockRange() string {
	end := (w.StartMinute + w.DurationMins) % minutesPerDay
	return FormatClock12(w.StartMinute) + " to " + FormatClock12(end)
}

// ParseClock converts a 24-hour "HH:MM" string to a minute-of-day offset.
func ParseClock(clock string) (int, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, clock)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, clock)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, clock)
	}
	return h*60 + m, nil
}

// FormatClock12 renders a minute-of-day offset on a 12-hour clock,
// the form receptionists see in conflict messages.
func FormatClock12(minute int) string {
	h := minute / 60
	m := minute % 60

	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, suffix)
}
