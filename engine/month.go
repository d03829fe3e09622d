package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - Calendar-month period key (this IS a monthly evaluation system)
// =============================================================================

// Month identifies a reference month. It is keyed by its first day and is
// the period granularity for all snapshot and KPI computation.
type Month struct {
	Year  int
	Month time.Month
}

// Constructors

func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts "2006-01" or a full first-of-month date "2006-01-02".
func ParseMonth(s string) (Month, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return Month{}, fmt.Errorf("invalid reference month %q (use YYYY-MM)", s)
}

// Boundaries

// Start returns the first day of the month at midnight UTC.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the month at midnight UTC.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, -1)
}

// Contains reports whether t falls within the month.
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

// Arithmetic

func (m Month) Next() Month     { return MonthOf(m.Start().AddDate(0, 1, 0)) }
func (m Month) Previous() Month { return MonthOf(m.Start().AddDate(0, -1, 0)) }

func (m Month) Before(other Month) bool {
	return m.Year < other.Year || (m.Year == other.Year && m.Month < other.Month)
}

func (m Month) Equal(other Month) bool {
	return m.Year == other.Year && m.Month == other.Month
}

func (m Month) IsZero() bool { return m.Year == 0 }

// String returns the display form "2006-01".
func (m Month) String() string { return m.Start().Format("2006-01") }

// Key returns the storage form: the first-of-month date "2006-01-02".
func (m Month) Key() string { return m.Start().Format("2006-01-02") }
