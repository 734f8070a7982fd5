// Package dateranges splits a date span into ordered, contiguous periods.
package dateranges

import (
	"errors"
	"fmt"
	"time"
)

// Interval selects the granularity of the generated periods.
type Interval string

const (
	Day    Interval = "day"
	Week   Interval = "week"
	Month  Interval = "month"
	Year   Interval = "year"
	Custom Interval = "custom"
)

var (
	ErrUnknownInterval = errors.New("dateranges: unknown interval")
	ErrBadSpan         = errors.New("dateranges: end precedes start")
	ErrBadLength       = errors.New("dateranges: custom interval needs a positive length in days")
)

// Period is one inclusive [Start, End] calendar-day span.
type Period struct {
	Start time.Time
	End   time.Time
}

// String renders the period as "YYYYMMDD-YYYYMMDD", the form used in saved
// file names.
func (p Period) String() string {
	return p.Start.Format("20060102") + "-" + p.End.Format("20060102")
}

// Contains reports whether t falls inside the period, comparing calendar
// days in UTC.
func (p Period) Contains(t time.Time) bool {
	day := truncate(t)
	return !day.Before(p.Start) && !day.After(p.End)
}

// Generator produces the ordered periods covering [Start, End]. The last
// period is truncated to End when the span does not divide evenly.
type Generator struct {
	Start    time.Time
	End      time.Time
	Interval Interval
	// Length is the period length in days, used only with Custom.
	Length int
}

func truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (g Generator) next(start time.Time) time.Time {
	switch g.Interval {
	case Day:
		return start.AddDate(0, 0, 1)
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	case Year:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, g.Length)
	}
}

// Generate returns the ordered periods. Periods abut without gaps: each
// period ends the day before the next one starts.
func (g Generator) Generate() ([]Period, error) {
	switch g.Interval {
	case Day, Week, Month, Year:
	case Custom:
		if g.Length <= 0 {
			return nil, fmt.Errorf("%w: got %d", ErrBadLength, g.Length)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterval, g.Interval)
	}
	start := truncate(g.Start)
	end := truncate(g.End)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s > %s",
			ErrBadSpan, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	var periods []Period
	for cur := start; !cur.After(end); {
		next := g.next(cur)
		last := next.AddDate(0, 0, -1)
		if last.After(end) {
			last = end
		}
		periods = append(periods, Period{Start: cur, End: last})
		cur = next
	}
	return periods, nil
}
