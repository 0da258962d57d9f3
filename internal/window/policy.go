// Package window decides when bulk sends are permitted: a daily time band,
// a Friday cutoff, a weekly rest day, holidays, and the daily send cap.
package window

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOutsideWindow means the current time is outside the allowed window.
	ErrOutsideWindow = errors.New("outside allowed sending window")
	// ErrDailyLimitReached means the daily cap has already been hit.
	ErrDailyLimitReached = errors.New("daily message limit reached")
)

// Calendar reports whether a date is a holiday.
type Calendar interface {
	IsHoliday(t time.Time) bool
}

// NamedCalendar is a Calendar that can also name the holiday.
type NamedCalendar interface {
	Calendar
	Name(t time.Time) (string, bool)
}

// Policy holds the send-window rules. Hours are local to Location.
type Policy struct {
	Location         *time.Location
	StartHour        int
	EndHour          int
	FridayCutoffHour int
	DailyLimit       int
	Calendar         Calendar
}

// DefaultPolicy opens 08:00–20:00, closes Fridays at 14:00 and all of
// Saturday, and caps a day at 200 messages.
func DefaultPolicy(loc *time.Location) Policy {
	if loc == nil {
		loc = time.Local
	}
	return Policy{
		Location:         loc,
		StartHour:        8,
		EndHour:          20,
		FridayCutoffHour: 14,
		DailyLimit:       200,
	}
}

// Within reports whether now falls inside the allowed window. override
// short-circuits every rule.
func (p Policy) Within(now time.Time, override bool) bool {
	if override {
		return true
	}
	local := now
	if p.Location != nil {
		local = now.In(p.Location)
	}
	if p.Calendar != nil && p.Calendar.IsHoliday(local) {
		return false
	}
	hour := local.Hour()
	switch local.Weekday() {
	case time.Saturday:
		return false
	case time.Friday:
		if hour >= p.FridayCutoffHour {
			return false
		}
	}
	return hour >= p.StartHour && hour < p.EndHour
}

// Holiday returns the name of the holiday now falls on, or "" when it is a
// regular day or the calendar cannot name it.
func (p Policy) Holiday(now time.Time) string {
	nc, ok := p.Calendar.(NamedCalendar)
	if !ok {
		return ""
	}
	local := now
	if p.Location != nil {
		local = now.In(p.Location)
	}
	name, _ := nc.Name(local)
	return name
}

// CheckStart is the gate consulted before a run starts. override bypasses
// the time window only; the daily cap applies regardless. A non-positive
// DailyLimit disables the cap.
func (p Policy) CheckStart(now time.Time, dailyCount int, override bool) error {
	if !p.Within(now, override) {
		return ErrOutsideWindow
	}
	if p.DailyLimit > 0 && dailyCount >= p.DailyLimit {
		return fmt.Errorf("%d of %d sent today: %w", dailyCount, p.DailyLimit, ErrDailyLimitReached)
	}
	return nil
}

// Remaining returns how many sends are left today, or -1 when uncapped.
func (p Policy) Remaining(dailyCount int) int {
	if p.DailyLimit <= 0 {
		return -1
	}
	return max(p.DailyLimit-dailyCount, 0)
}

// Validate checks the hour fields.
func (p Policy) Validate() error {
	if p.StartHour < 0 || p.StartHour > 23 {
		return fmt.Errorf("start hour %d out of range", p.StartHour)
	}
	if p.EndHour < 1 || p.EndHour > 24 || p.EndHour <= p.StartHour {
		return fmt.Errorf("end hour %d must be in (start hour, 24]", p.EndHour)
	}
	if p.FridayCutoffHour < 0 || p.FridayCutoffHour > 24 {
		return fmt.Errorf("friday cutoff hour %d out of range", p.FridayCutoffHour)
	}
	return nil
}
