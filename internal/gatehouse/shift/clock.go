// Package shift maps instants onto the site's rotating 24-hour duty shifts.
//
// A shift starts every day at a fixed local time of day and is named after one
// of four rotations that repeat every four days, counted from an epoch date.
package shift

import (
	"fmt"
	"strings"
	"time"
)

// Rotation is the number of named shifts in one cycle.
const Rotation = 4

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (d TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute) }

func (d TimeOfDay) minutes() int { return d.Hour*60 + d.Minute }

// Window is one concrete shift: [Start, End).
type Window struct {
	Name  string
	Index int       // position in the rotation, 0..Rotation-1
	Date  time.Time // local midnight of the day the shift started
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// For returns the shift window containing t. The epoch's location defines
// local time, and only the epoch's calendar date matters for the rotation.
// It reads no clock and has no side effects.
//
// Instants earlier than the boundary time of day belong to the shift that
// started the previous day. Instants before the epoch continue the rotation
// backwards (floored modulo), so the cycle has no seam at the epoch.
func For(t, epoch time.Time, boundary TimeOfDay, names [Rotation]string) Window {
	loc := epoch.Location()
	local := t.In(loc)

	y, m, d := local.Date()
	if local.Hour()*60+local.Minute() < boundary.minutes() {
		d--
	}

	// time.Date normalizes day underflow and keeps the wall clock in loc.
	start := time.Date(y, m, d, boundary.Hour, boundary.Minute, 0, 0, loc)
	end := time.Date(y, m, d+1, boundary.Hour, boundary.Minute, 0, 0, loc)
	date := time.Date(y, m, d, 0, 0, 0, 0, loc)

	idx := floorMod(daysBetween(epoch.In(loc), date), Rotation)

	return Window{
		Name:  names[idx],
		Index: idx,
		Date:  date,
		Start: start,
		End:   end,
	}
}

// daysBetween counts calendar days from a's date to b's date, ignoring the
// time of day and any DST change in between.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

func floorMod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

// Clock binds the rotation parameters of one site.
type Clock struct {
	Epoch    time.Time
	Boundary TimeOfDay
	Names    [Rotation]string
}

// NewClock builds a Clock from configuration values. epochDate is
// "YYYY-MM-DD" interpreted in loc.
func NewClock(epochDate, boundary string, names []string, loc *time.Location) (Clock, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(names) != Rotation {
		return Clock{}, fmt.Errorf("shift names: want %d, got %d", Rotation, len(names))
	}

	b, err := ParseTimeOfDay(boundary)
	if err != nil {
		return Clock{}, err
	}

	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(epochDate), loc)
	if err != nil {
		return Clock{}, fmt.Errorf("parse shift epoch %q: %w", epochDate, err)
	}

	c := Clock{
		Epoch:    time.Date(day.Year(), day.Month(), day.Day(), b.Hour, b.Minute, 0, 0, loc),
		Boundary: b,
	}
	seen := make(map[string]bool, Rotation)
	for i, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" {
			return Clock{}, fmt.Errorf("shift name %d is empty", i)
		}
		if seen[n] {
			return Clock{}, fmt.Errorf("shift name %q repeated", n)
		}
		seen[n] = true
		c.Names[i] = n
	}
	return c, nil
}

// For returns the window containing t.
func (c Clock) For(t time.Time) Window {
	return For(t, c.Epoch, c.Boundary, c.Names)
}

// Location is the site's local time zone.
func (c Clock) Location() *time.Location {
	return c.Epoch.Location()
}

// Valid reports whether name is one of the rotation names.
func (c Clock) Valid(name string) bool {
	for _, n := range c.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Normalize upper-cases and trims a shift name, returning ok=false when it is
// not one of the rotation names.
func (c Clock) Normalize(name string) (string, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	return n, c.Valid(n)
}
