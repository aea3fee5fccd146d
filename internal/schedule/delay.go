package schedule

import (
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/cronexpr"
)

const (
	// MinLeadTime is how far in the future a cron instant must be to be used.
	// Closer instants are skipped so a firing never races the current instant.
	MinLeadTime = time.Second

	// MinCronDelay is the smallest delay a cron rule can produce.
	MinCronDelay = time.Minute
)

var (
	// ErrExpired is returned when a rule has no instant left in the future.
	ErrExpired = errors.New("schedule: rule expired")

	// ErrInvalidRule is returned when a rule is neither a cron expression nor a date.
	ErrInvalidRule = errors.New("schedule: invalid rule")
)

// dateLayouts are tried in order when a rule is not a cron expression.
// Layouts without a zone are interpreted in UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ComputeDelay returns how long to wait after now before a task with the
// given rule is due.
//
// Cron rules resolve to the first instant at least MinLeadTime after now, and
// the resulting delay is never shorter than MinCronDelay. Absolute dates
// resolve to their offset from now; a date in the past returns the negative
// offset together with ErrExpired. Anything else returns ErrInvalidRule.
func ComputeDelay(rule string, now time.Time) (time.Duration, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return 0, ErrInvalidRule
	}

	if expr, ok := parseCron(rule); ok {
		return cronDelay(expr, now)
	}

	at, ok := ParseDate(rule)
	if !ok {
		return 0, ErrInvalidRule
	}
	delay := at.Sub(now)
	if delay < 0 {
		return delay, ErrExpired
	}
	return delay, nil
}

// parseCron accepts 5 fields (minute first), 6 fields (second first) and
// 7 fields (second first, year last). A 6-field rule gets an open year so
// cronexpr does not read its last field as a year.
func parseCron(rule string) (expr *cronexpr.Expression, ok bool) {
	defer func() {
		if recover() != nil {
			expr, ok = nil, false
		}
	}()
	if len(strings.Fields(rule)) == 6 {
		rule += " *"
	}
	expr, err := cronexpr.Parse(rule)
	if err != nil {
		return nil, false
	}
	return expr, true
}

func cronDelay(expr *cronexpr.Expression, now time.Time) (time.Duration, error) {
	next := expr.Next(now)
	for {
		if next.IsZero() {
			return 0, ErrExpired
		}
		if next.Sub(now) >= MinLeadTime {
			break
		}
		next = expr.Next(next)
	}

	delay := next.Sub(now)
	if delay < MinCronDelay {
		delay = MinCronDelay
	}
	return delay, nil
}

// ParseDate parses an absolute timestamp rule.
func ParseDate(rule string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, rule, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders t as an absolute timestamp rule.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// IsRecurring reports whether a rule re-arms after every firing.
func IsRecurring(rule string) bool {
	return strings.Contains(rule, "*")
}
