// Package calendar provides civil-date arithmetic for business-day settlement
// calculations (spec §4.A). No time zone is ever attached to a Date.
package calendar

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Date is a civil calendar day with no time-of-day or time zone component.
type Date struct {
	t time.Time // always normalized to UTC midnight
}

// NewDate builds a Date from a year/month/day triple.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Parse parses a "2006-01-02" layout string, the persistence format for Date
// throughout the store, matching the layout the teacher uses uniformly in
// internal/data/postgres (time.Parse(time.DateOnly, ...)).
func Parse(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{t: t}, nil
}

// MustParse is Parse but panics on error; for compiled-in literals only.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the canonical "2006-01-02" form.
func (d Date) String() string { return d.t.Format("2006-01-02") }

// Before reports d < other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// After reports d > other.
func (d Date) After(other Date) bool { return d.t.After(other.t) }

// Equal reports d == other.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// Compare returns -1, 0, or 1 as d is before, equal to, or after other —
// the ordering primitive used everywhere the engine sorts by trade_date or
// ex_date (spec §3.3 invariant 4).
func (d Date) Compare(other Date) int {
	switch {
	case d.t.Before(other.t):
		return -1
	case d.t.After(other.t):
		return 1
	default:
		return 0
	}
}

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Year, Month, Day expose the civil components.
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }

// IsWeekend reports whether d falls on a Saturday or Sunday.
func (d Date) IsWeekend() bool {
	wd := d.t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// LastOfMonth returns the last calendar day of d's month.
func (d Date) LastOfMonth() Date {
	firstOfNext := time.Date(d.t.Year(), d.t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return Date{t: firstOfNext.AddDate(0, 0, -1)}
}

// Today returns the civil date for t, discarding time-of-day and zone. Callers
// at the engine boundary use this once when stamping a report; it is never
// called from inside a pure calculator (spec §6.4 "no report includes wall-clock time").
func Today(t time.Time) Date {
	u := t.UTC()
	return Date{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// FromTime discards time-of-day and zone from t, producing the civil date it
// falls on. Unlike Today, this is a plain conversion used whenever the store
// layer decodes a DATE column back from the driver's time.Time representation.
func FromTime(t time.Time) Date {
	u := t.UTC()
	return Date{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// ToTime returns the UTC midnight time.Time the store driver expects for a
// DATE column parameter.
func (d Date) ToTime() time.Time { return d.t }

// Value implements driver.Valuer so a Date persists as a DATE column.
func (d Date) Value() (driver.Value, error) {
	return d.t, nil
}

// Scan implements sql.Scanner, accepting whatever form the driver returns for
// a DATE column (pgx hands back a time.Time).
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = FromTime(v)
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("calendar: unsupported scan source %T", src)
	}
}

// MarshalJSON renders the canonical "2006-01-02" form, matching the
// store's persistence layout so importer payloads and API responses agree.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted "2006-01-02" string.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Calendar decides which calendar days are business days, and how to roll a
// settlement date forward. The default WeekendCalendar implements spec §9's
// accepted minimal form ("T+2 business days with a minimal weekend-only
// calendar is acceptable"); a full B3 holiday table can be substituted by
// implementing this interface without touching any call site.
type Calendar interface {
	IsBusinessDay(d Date) bool
	NextBusinessDay(d Date) Date
}

// WeekendCalendar treats every non-weekend day as a business day.
type WeekendCalendar struct{}

// IsBusinessDay reports d is not a Saturday or Sunday.
func (WeekendCalendar) IsBusinessDay(d Date) bool { return !d.IsWeekend() }

// NextBusinessDay returns the first business day strictly after d.
func (c WeekendCalendar) NextBusinessDay(d Date) Date {
	next := d.AddDays(1)
	for !c.IsBusinessDay(next) {
		next = next.AddDays(1)
	}
	return next
}

// SettlementDate advances trade date by settlementDays business days using cal,
// the T+N rule §4.A and §6.5's settlement_days knob describe.
func SettlementDate(cal Calendar, trade Date, settlementDays int) Date {
	d := trade
	for i := 0; i < settlementDays; i++ {
		d = cal.NextBusinessDay(d)
	}
	return d
}

// LastBusinessDayOfMonth returns the last business day on or before the last
// calendar day of the month containing d, used for DARF due dates (spec §4.F
// point 7, "due_date = last_business_day(month+1)").
func LastBusinessDayOfMonth(cal Calendar, d Date) Date {
	last := d.LastOfMonth()
	for !cal.IsBusinessDay(last) {
		last = last.AddDays(-1)
	}
	return last
}
