// Package pool implements the pool manager (R4): matching VMs to VmPools,
// assigning unused pool members to requesting users, and reclaiming stale
// assignments once their retention window has elapsed.
package pool

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// isoDurationPattern matches an ISO-8601 duration such as "PT1H" or
// "P1DT12H30M"; isoInstantPattern matches an ISO-8601 instant such as
// "2026-01-01T00:00:00Z". No third-party ISO-8601 library appears anywhere
// in the retrieval pack, so retention parsing stays on stdlib regexp/time
// (see DESIGN.md's stdlib justification for internal/pool).
var (
	isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
	isoInstantPattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})$`)
)

// Retention is a parsed VmPool.spec.retention value: either a duration
// relative to an assignment's lastUsed timestamp, or an absolute instant
// after which every assignment in the pool expires regardless of use.
type Retention struct {
	duration time.Duration
	instant  time.Time
	isInstant bool
}

// ParseRetention parses spec.md §4.4's retention grammar.
func ParseRetention(s string) (Retention, error) {
	if isoInstantPattern.MatchString(s) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Retention{}, fmt.Errorf("parse retention instant %q: %w", s, err)
		}
		return Retention{instant: t, isInstant: true}, nil
	}
	if m := isoDurationPattern.FindStringSubmatch(s); m != nil {
		d, err := parseISODuration(m)
		if err != nil {
			return Retention{}, fmt.Errorf("parse retention duration %q: %w", s, err)
		}
		return Retention{duration: d}, nil
	}
	return Retention{}, fmt.Errorf("retention %q is neither an ISO-8601 duration nor instant", s)
}

func parseISODuration(groups []string) (time.Duration, error) {
	years, err := atoiDefault(groups[1])
	if err != nil {
		return 0, err
	}
	months, err := atoiDefault(groups[2])
	if err != nil {
		return 0, err
	}
	days, err := atoiDefault(groups[3])
	if err != nil {
		return 0, err
	}
	hours, err := atoiDefault(groups[4])
	if err != nil {
		return 0, err
	}
	minutes, err := atoiDefault(groups[5])
	if err != nil {
		return 0, err
	}
	var seconds float64
	if groups[6] != "" {
		seconds, err = strconv.ParseFloat(groups[6], 64)
		if err != nil {
			return 0, err
		}
	}
	if years == 0 && months == 0 && days == 0 && hours == 0 && minutes == 0 && seconds == 0 {
		return 0, fmt.Errorf("empty duration")
	}
	total := time.Duration(years)*365*24*time.Hour +
		time.Duration(months)*30*24*time.Hour +
		time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return total, nil
}

func atoiDefault(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// Expired reports whether an assignment last used at lastUsed has expired
// as of now, per spec.md §4.4's liveness rule.
func (r Retention) Expired(lastUsed, now time.Time) bool {
	if r.isInstant {
		return now.After(r.instant)
	}
	return now.After(lastUsed.Add(r.duration))
}
