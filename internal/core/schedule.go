package core

import (
	"fmt"
	"time"
)

// Month is a calendar month, the granularity at which occurrences are unique.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the calendar month containing d.
func MonthOf(d Date) Month {
	return Month{Year: d.Time.Year(), Month: d.Time.Month()}
}

func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

func (m Month) After(o Month) bool {
	return o.Before(m)
}

// DaysIn returns the length of the month, honoring leap years.
func (m Month) DaysIn() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (m Month) FirstDay() Date {
	return NewDate(m.Year, int(m.Month), 1)
}

func (m Month) Contains(d Date) bool {
	return MonthOf(d) == m
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// ScheduledDate returns the occurrence date of a rule with the given day
// descriptor inside month m. The requested day (1 for variable dates) is
// clamped to the last day of the month, so day 31 lands on Feb 28, or Feb 29
// in leap years.
func ScheduledDate(day DaySpec, m Month) Date {
	requested := 1
	if n, ok := day.Fixed(); ok {
		requested = n
	}
	if last := m.DaysIn(); requested > last {
		requested = last
	}
	return NewDate(m.Year, int(m.Month), requested)
}
