package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/glizzus/cronrelay/internal/schedule"
)

func TestComputeDelayCron(t *testing.T) {
	base := time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC)

	table := []struct {
		name string
		rule string
		now  time.Time
		want time.Duration
	}{
		{
			name: "far instant is returned exactly",
			rule: "0 0 * * *",
			now:  base,
			want: 12 * time.Hour,
		},
		{
			name: "offset of exactly one minute is kept",
			rule: "* * * * *",
			now:  base,
			want: time.Minute,
		},
		{
			name: "offset under a minute is clamped",
			rule: "* * * * *",
			now:  base.Add(30 * time.Second),
			want: time.Minute,
		},
		{
			name: "instant under a second away is skipped",
			rule: "* * * * *",
			now:  base.Add(59*time.Second + 500*time.Millisecond),
			want: time.Minute + 500*time.Millisecond,
		},
		{
			name: "second granularity is clamped",
			rule: "*/10 * * * * * *",
			now:  base,
			want: time.Minute,
		},
		{
			name: "six fields lead with seconds",
			rule: "0 */5 * * * *",
			now:  time.Date(2030, 1, 1, 0, 0, 30, 0, time.UTC),
			want: 4*time.Minute + 30*time.Second,
		},
		{
			name: "six field seconds rule is clamped",
			rule: "*/10 * * * * *",
			now:  time.Date(2030, 1, 1, 0, 0, 30, 0, time.UTC),
			want: time.Minute,
		},
		{
			name: "macro",
			rule: "@hourly",
			now:  base.Add(15 * time.Minute),
			want: 45 * time.Minute,
		},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			got, err := schedule.ComputeDelay(tc.rule, tc.now)
			if err != nil {
				t.Fatalf("ComputeDelay(%q) returned error: %v", tc.rule, err)
			}
			if got != tc.want {
				t.Errorf("ComputeDelay(%q) = %v; want %v", tc.rule, got, tc.want)
			}
		})
	}
}

func TestComputeDelayNeverBelowOneMinuteForCron(t *testing.T) {
	base := time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)
	for offset := time.Duration(0); offset < 2*time.Minute; offset += 250 * time.Millisecond {
		now := base.Add(offset)
		got, err := schedule.ComputeDelay("* * * * *", now)
		if err != nil {
			t.Fatalf("ComputeDelay at %v returned error: %v", now, err)
		}
		if got < schedule.MinCronDelay {
			t.Fatalf("ComputeDelay at %v = %v; want at least %v", now, got, schedule.MinCronDelay)
		}
	}
}

func TestComputeDelayDate(t *testing.T) {
	now := time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC)

	table := []struct {
		name    string
		rule    string
		want    time.Duration
		wantErr error
	}{
		{name: "future RFC 3339", rule: "2023-10-01T12:05:00Z", want: 5 * time.Minute},
		{name: "future with offset", rule: "2023-10-01T14:00:00+02:00", want: 0},
		{name: "zone-less layout is UTC", rule: "2023-10-02 12:00:00", want: 24 * time.Hour},
		{name: "date only", rule: "2023-10-03", want: 36 * time.Hour},
		{name: "past date", rule: "2023-10-01T11:00:00Z", want: -time.Hour, wantErr: schedule.ErrExpired},
		{name: "formatted date round trips", rule: schedule.FormatDate(now.Add(90 * time.Second)), want: 90 * time.Second},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			got, err := schedule.ComputeDelay(tc.rule, now)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ComputeDelay(%q) error = %v; want %v", tc.rule, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ComputeDelay(%q) = %v; want %v", tc.rule, got, tc.want)
			}
		})
	}
}

func TestComputeDelayFailure(t *testing.T) {
	now := time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC)

	table := []struct {
		rule    string
		wantErr error
	}{
		{rule: "", wantErr: schedule.ErrInvalidRule},
		{rule: "not a rule", wantErr: schedule.ErrInvalidRule},
		{rule: "61 * * * *", wantErr: schedule.ErrInvalidRule},
		{rule: "0 0 0 1 1 * 2020", wantErr: schedule.ErrExpired},
	}

	for _, tc := range table {
		t.Run(tc.rule, func(t *testing.T) {
			_, err := schedule.ComputeDelay(tc.rule, now)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ComputeDelay(%q) error = %v; want %v", tc.rule, err, tc.wantErr)
			}
		})
	}
}

func TestComputeDelayIsPure(t *testing.T) {
	now := time.Date(2030, 5, 17, 8, 30, 12, 0, time.UTC)
	first, err := schedule.ComputeDelay("*/5 * * * *", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := schedule.ComputeDelay("*/5 * * * *", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("ComputeDelay is not deterministic: %v != %v", first, second)
	}
}

func TestIsRecurring(t *testing.T) {
	table := map[string]bool{
		"*/5 * * * *":          true,
		"0 9 * * 1":            true,
		"@daily":               false,
		"2023-10-01T12:05:00Z": false,
		"":                     false,
	}
	for rule, want := range table {
		if got := schedule.IsRecurring(rule); got != want {
			t.Errorf("IsRecurring(%q) = %v; want %v", rule, got, want)
		}
	}
}
