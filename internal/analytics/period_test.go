package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, time.March, 15, 14, 30, 0, 0, time.UTC)
	midnight := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		period string
		want   time.Time
	}{
		{"today", midnight},
		{"week", midnight.AddDate(0, 0, -7)},
		{"month", midnight.AddDate(0, -1, 0)},
		{"quarter", midnight.AddDate(0, -3, 0)},
		{"year", midnight.AddDate(-1, 0, 0)},
		{"", time.Time{}},
		{"fortnight", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodStart(tt.period, now))
		})
	}
}

func TestBucketKey(t *testing.T) {
	ts := time.Date(2026, time.January, 2, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, "2026-01-02", bucketKey(GroupByDay, ts))
	assert.Equal(t, "2026-01", bucketKey(GroupByMonth, ts))
	// 2026-01-02 falls in ISO week 1 of 2026.
	assert.Equal(t, "2026-W01", bucketKey(GroupByWeek, ts))

	// ISO week years differ from calendar years at the boundary:
	// 2027-01-01 belongs to ISO week 53 of 2026.
	boundary := time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-W53", bucketKey(GroupByWeek, boundary))
}

func TestGroupByValid(t *testing.T) {
	assert.True(t, GroupByDay.Valid())
	assert.True(t, GroupByWeek.Valid())
	assert.True(t, GroupByMonth.Valid())
	assert.False(t, GroupBy("hour").Valid())
	assert.False(t, GroupBy("").Valid())
}
