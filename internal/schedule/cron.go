package schedule

import (
	"fmt"
	"strings"
	"time"
)

// NextRunTimesAfter returns up to n instants at which rule fires after the
// given time, in UTC. A date rule yields its single instant while it is still
// ahead. A cron rule whose year field runs out returns fewer than n instants.
func NextRunTimesAfter(rule string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	rule = strings.TrimSpace(rule)

	if expr, ok := parseCron(rule); ok {
		runs := expr.NextN(after, uint(n))
		if len(runs) == 0 {
			return nil, ErrExpired
		}
		for i := range runs {
			runs[i] = runs[i].UTC()
		}
		return runs, nil
	}

	at, ok := ParseDate(rule)
	if !ok {
		return nil, ErrInvalidRule
	}
	if !at.After(after) {
		return nil, ErrExpired
	}
	return []time.Time{at.UTC()}, nil
}
