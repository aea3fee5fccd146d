package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/cronrelay/internal/schedule"
)

func TestNextRunTimesAfterSuccess(t *testing.T) {
	table := []struct {
		cron  string
		after time.Time
		n     int
		want  []time.Time
	}{
		{
			cron:  "0 0 * * *", // Every day at midnight
			after: time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC),
			n:     3,
			want: []time.Time{
				time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC),
				time.Date(2023, 10, 3, 0, 0, 0, 0, time.UTC),
				time.Date(2023, 10, 4, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			cron:  "*/5 * * * *", // Every 5 minutes
			after: time.Date(1981, 8, 29, 12, 0, 0, 0, time.UTC),
			n:     4,
			want: []time.Time{
				time.Date(1981, 8, 29, 12, 5, 0, 0, time.UTC),
				time.Date(1981, 8, 29, 12, 10, 0, 0, time.UTC),
				time.Date(1981, 8, 29, 12, 15, 0, 0, time.UTC),
				time.Date(1981, 8, 29, 12, 20, 0, 0, time.UTC),
			},
		},
		{
			cron:  "@monthly", // Monthly on the first weekday of the month at 00:00
			after: time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC),
			n:     2,
			want: []time.Time{
				time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			cron:  "0 0 0 1 1 * 2024", // Once, then the year field runs out
			after: time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC),
			n:     3,
			want: []time.Time{
				time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			cron:  "30 */20 * * * *", // Six fields lead with seconds
			after: time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC),
			n:     2,
			want: []time.Time{
				time.Date(2023, 10, 1, 12, 0, 30, 0, time.UTC),
				time.Date(2023, 10, 1, 12, 20, 30, 0, time.UTC),
			},
		},
		{
			cron:  "2024-03-01 08:30:00", // A date fires once
			after: time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC),
			n:     3,
			want: []time.Time{
				time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
			},
		},
		{
			cron:  "0 9 * * 1", // Every Monday at 9 AM
			after: time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC),
			n:     3,
			want: []time.Time{
				time.Date(2023, 10, 2, 9, 0, 0, 0, time.UTC),
				time.Date(2023, 10, 9, 9, 0, 0, 0, time.UTC),
				time.Date(2023, 10, 16, 9, 0, 0, 0, time.UTC),
			},
		},
	}

	for _, tc := range table {
		t.Run(tc.cron, func(t *testing.T) {
			got, err := schedule.NextRunTimesAfter(tc.cron, tc.after, tc.n)
			if err != nil {
				t.Fatalf("NextRunTimesAfter(%q, %v, %d) returned error: %v", tc.cron, tc.after, tc.n, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("NextRunTimesAfter(%q, %v, %d) mismatch (-want +got):\n%s", tc.cron, tc.after, tc.n, diff)
			}
		})
	}
}

func TestNextRunTimesAfterFailure(t *testing.T) {
	after := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	table := []struct {
		name string
		cron string
		n    int
		want error
	}{
		{name: "invalid rule", cron: "invalid cron", n: 3, want: schedule.ErrInvalidRule},
		{name: "past date", cron: "2024-01-01", n: 1, want: schedule.ErrExpired},
		{name: "exhausted cron", cron: "0 0 0 1 1 * 2020", n: 1, want: schedule.ErrExpired},
		{name: "negative count", cron: "0 0 * * *", n: -1},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			got, err := schedule.NextRunTimesAfter(tc.cron, after, tc.n)
			if err == nil {
				t.Fatalf("NextRunTimesAfter(%q, %v, %d) expected error but got result: %v", tc.cron, after, tc.n, got)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("NextRunTimesAfter(%q) error = %v, want %v", tc.cron, err, tc.want)
			}
		})
	}
}
