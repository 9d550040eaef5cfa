// Package rotation computes deterministic on-call rotations.
//
// A rotation walks a calendar day by day from an anchor date and hands the
// on-call slot to the next roster member every time a full rotation period
// elapses. All arithmetic is calendar-day based; time-of-day and time zones
// never influence the result.
package rotation

import (
	"fmt"
	"strings"
	"time"

	"github.com/monocle-dev/oncall/internal/types"
)

// Unit is the granularity of a rotation cadence.
type Unit string

const (
	UnitDaily    Unit = "daily"
	UnitWeekly   Unit = "weekly"
	UnitBiweekly Unit = "biweekly"
	UnitMonthly  Unit = "monthly"
)

// DaysPerMonth is the flat month length used by the monthly cadence.
// Monthly rotations are not calendar-month aware; callers depend on the
// exact day count so this approximation must not change.
const DaysPerMonth = 30

const hoursPerDay = 24

// Cadence describes how often on-call responsibility rotates.
type Cadence struct {
	Frequency int  `json:"frequency" yaml:"frequency"`
	Unit      Unit `json:"unit" yaml:"unit"`
}

// ParseUnit normalizes a user supplied unit name.
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	switch u {
	case UnitDaily, UnitWeekly, UnitBiweekly, UnitMonthly:
		return u, nil
	}
	return "", fmt.Errorf("%w: unknown rotation unit %q", types.ErrInvalidInput, s)
}

// Validate reports whether the cadence can produce a rotation period.
func (c Cadence) Validate() error {
	if c.Frequency <= 0 {
		return fmt.Errorf("%w: rotation frequency must be positive, got %d", types.ErrInvalidInput, c.Frequency)
	}
	if _, err := ParseUnit(string(c.Unit)); err != nil {
		return err
	}
	return nil
}

// PeriodDays converts the cadence into a rotation period length in days.
func (c Cadence) PeriodDays() (int, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}

	switch Unit(strings.ToLower(string(c.Unit))) {
	case UnitDaily:
		return c.Frequency, nil
	case UnitWeekly:
		return c.Frequency * 7, nil
	case UnitBiweekly:
		return c.Frequency * 14, nil
	default:
		return c.Frequency * DaysPerMonth, nil
	}
}

// Entry is a single generated (date, member) pair.
type Entry struct {
	Date     time.Time `json:"date" yaml:"date"`
	MemberID uint      `json:"member_id" yaml:"member_id"`
}

// Day truncates t to its calendar date, expressed as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours()) / hoursPerDay
}

// Generate returns one entry per calendar day in [start, end], inclusive.
//
// The member on duty for a day is
// roster[floor(daysSinceStart/periodDays) mod len(roster)]. An empty roster
// fails with types.ErrInvalidRoster; end before start yields an empty
// sequence.
func Generate(roster []uint, start, end time.Time, cadence Cadence) ([]Entry, error) {
	return GenerateWindow(roster, start, start, end, cadence)
}

// GenerateWindow walks the rotation anchored at anchor but only emits the
// days inside [from, to]. Days before the anchor are never emitted.
func GenerateWindow(roster []uint, anchor, from, to time.Time, cadence Cadence) ([]Entry, error) {
	if len(roster) == 0 {
		return nil, types.ErrInvalidRoster
	}

	period, err := cadence.PeriodDays()
	if err != nil {
		return nil, err
	}

	anchor = Day(anchor)
	from = Day(from)
	to = Day(to)

	if from.Before(anchor) {
		from = anchor
	}

	if to.Before(from) {
		return []Entry{}, nil
	}

	entries := make([]Entry, 0, DaysBetween(from, to)+1)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		entries = append(entries, Entry{
			Date:     day,
			MemberID: MemberAt(roster, anchor, day, period),
		})
	}

	return entries, nil
}

// MemberAt returns the roster member on duty for day in a rotation anchored
// at anchor with the given period. It panics on an empty roster or a
// non-positive period; Generate guards both.
func MemberAt(roster []uint, anchor, day time.Time, periodDays int) uint {
	since := DaysBetween(anchor, day)
	slot := since / periodDays
	return roster[slot%len(roster)]
}
