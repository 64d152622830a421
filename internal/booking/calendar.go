package booking

import (
	"fmt"
	"time"
)

// Month is a calendar page.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Add moves n months forward (or back for negative n), rolling the year over.
func (m Month) Add(n int) Month {
	idx := int(m.Month) - 1 + n
	year := m.Year + idx/12
	idx %= 12
	if idx < 0 {
		idx += 12
		year--
	}
	return Month{Year: year, Month: time.Month(idx + 1)}
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekday returns the weekday of the first of the month.
func (m Month) FirstWeekday() time.Weekday {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Weekday()
}

// Date returns the YYYY-MM-DD string of a day in the month.
func (m Month) Date(day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", m.Year, int(m.Month), day)
}

func (m Month) String() string {
	return fmt.Sprintf("%s %d", m.Month, m.Year)
}
