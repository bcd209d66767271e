package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule is a standard 5-field cron expression:
// minute hour day-of-month month day-of-week.
// Each field accepts *, n, n-m, lists (n,m) and steps (*/n, n-m/s).
// Examples:
//   - "0 * * * *"    - every hour
//   - "*/15 7-21 * * 1-6" - every 15 minutes, 7:00-21:59, Monday to Saturday
type CronSchedule struct {
	raw                                    string
	minutes, hours, days, months, weekdays uint64
}

type cronField struct {
	name     string
	min, max int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCron parses a cron expression.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	var sets [5]uint64
	for i, f := range cronFields {
		set, err := parseCronField(fields[i], f.min, f.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", f.name, err)
		}
		sets[i] = set
	}

	return &CronSchedule{
		raw:      expr,
		minutes:  sets[0],
		hours:    sets[1],
		days:     sets[2],
		months:   sets[3],
		weekdays: sets[4],
	}, nil
}

func parseCronField(field string, min, max int) (uint64, error) {
	var set uint64
	for _, item := range strings.Split(field, ",") {
		rng, step := item, 1
		if i := strings.IndexByte(item, '/'); i >= 0 {
			s, err := strconv.Atoi(item[i+1:])
			if err != nil || s <= 0 {
				return 0, fmt.Errorf("invalid step in %q", item)
			}
			rng, step = item[:i], s
		}

		lo, hi := min, max
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var errA, errB error
			lo, errA = strconv.Atoi(a)
			hi, errB = strconv.Atoi(b)
			if errA != nil || errB != nil {
				return 0, fmt.Errorf("invalid range %q", rng)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", rng)
			}
			lo = v
			if step == 1 {
				hi = v
			}
		}

		if lo < min || hi > max || lo > hi {
			return 0, fmt.Errorf("%q out of range [%d-%d]", item, min, max)
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

// Next returns the first matching minute strictly after t, or the zero time if
// nothing matches within a year.
func (c *CronSchedule) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < 366*24*60; i++ {
		if c.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

func (c *CronSchedule) matches(t time.Time) bool {
	return c.minutes&(1<<uint(t.Minute())) != 0 &&
		c.hours&(1<<uint(t.Hour())) != 0 &&
		c.days&(1<<uint(t.Day())) != 0 &&
		c.months&(1<<uint(t.Month())) != 0 &&
		c.weekdays&(1<<uint(t.Weekday())) != 0
}

// String returns the original expression.
func (c *CronSchedule) String() string {
	return c.raw
}

// ParseSchedule accepts a Go duration ("1h", "@every 30m") or a cron expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every"))); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("schedule interval must be positive, got %s", d)
		}
		return NewIntervalSchedule(d), nil
	}
	if spec == "@hourly" {
		spec = "0 * * * *"
	}
	return ParseCron(spec)
}
