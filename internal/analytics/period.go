// Package analytics aggregates completed-payment records into revenue
// totals, per-party breakdowns and time-bucketed trends.
package analytics

import (
	"fmt"
	"time"
)

// GroupBy selects the trend bucket granularity.
type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

// Valid reports whether g is a known granularity.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByDay, GroupByWeek, GroupByMonth:
		return true
	}
	return false
}

// PeriodStart resolves a named reporting period to its start timestamp
// relative to now. Unrecognized names yield the zero time, meaning no lower
// bound; callers get the full history rather than an error.
func PeriodStart(period string, now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case "today":
		return midnight
	case "week":
		return midnight.AddDate(0, 0, -7)
	case "month":
		return midnight.AddDate(0, -1, 0)
	case "quarter":
		return midnight.AddDate(0, -3, 0)
	case "year":
		return midnight.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
}

// bucketKey formats a timestamp as its trend-series bucket. Keys sort
// lexically in chronological order within a granularity.
func bucketKey(g GroupBy, t time.Time) string {
	t = t.UTC()
	switch g {
	case GroupByWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case GroupByMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}
