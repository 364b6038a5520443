package visibility

import (
	"fmt"
	"time"
)

// Period is a dashboard time window.
type Period string

const (
	PeriodToday   Period = "today"
	Period7Days   Period = "7_days"
	Period14Days  Period = "14_days"
	Period30Days  Period = "30_days"
	DefaultPeriod        = Period7Days
)

// ParsePeriod accepts the wire names; an empty string is the default.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return DefaultPeriod, nil
	case PeriodToday, Period7Days, Period14Days, Period30Days:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Days is the length of the window; today is 0.
func (p Period) Days() int {
	switch p {
	case Period7Days:
		return 7
	case Period14Days:
		return 14
	case Period30Days:
		return 30
	default:
		return 0
	}
}

// WindowStart is the inclusive start of the window. "today" starts at the
// local midnight of the latest response, or of now when there is none;
// the others start at local midnight N days before now.
func WindowStart(p Period, now time.Time, latest *time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	if p == PeriodToday {
		if latest != nil {
			return startOfDay(*latest, loc)
		}
		return startOfDay(now, loc)
	}
	return startOfDay(now.In(loc).AddDate(0, 0, -p.Days()), loc)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
