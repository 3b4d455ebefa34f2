// Package dateonly holds calendar dates without a time of day, as stored in
// DATE columns and exchanged as "2006-01-02" in JSON.
package dateonly

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const Layout = "2006-01-02"

// Date is a calendar day at UTC midnight.
type Date struct {
	time.Time
}

// Of truncates t to its calendar day in t's location.
func Of(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Parse accepts "2006-01-02" or a full RFC 3339 timestamp, whose date part is kept.
func Parse(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(Layout, s); err == nil {
		return Date{t}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Of(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(Layout)
}

func (d Date) AddDays(n int) Date {
	return Date{d.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Period names accepted by Resolve.
const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// Range is an inclusive span of days.
type Range struct {
	Period string `json:"period,omitempty"`
	Start  Date   `json:"startDate"`
	End    Date   `json:"endDate"`
}

// Days counts the days in the range, both ends included.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start.Time).Hours()/24) + 1
}

// Resolve maps a named period to a range ending today. Unknown names resolve
// to the current month.
func Resolve(period string, now time.Time) Range {
	today := Of(now)
	y, m, _ := today.Date()
	switch period {
	case PeriodToday:
		return Range{Period: period, Start: today, End: today}
	case PeriodWeek:
		return Range{Period: period, Start: today.AddDays(-7), End: today}
	case PeriodYear:
		return Range{Period: period, Start: Date{time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)}, End: today}
	default:
		return Range{Period: PeriodMonth, Start: Date{time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)}, End: today}
	}
}
