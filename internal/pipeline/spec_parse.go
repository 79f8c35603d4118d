package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Spec is a parsed schedule: either a fixed interval or a cron expression.
//
// Supported forms:
//   - Interval duration: "10m", "2h30m" (optionally prefixed "every:")
//   - Cron (crontab.guru-style): "*/10 * * * *", "@hourly" (optionally prefixed "cron:")
type Spec struct {
	every time.Duration
	sched cron.Schedule
	raw   string
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a schedule string.
func ParseSchedule(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseEvery(strings.TrimSpace(s[len("every:"):]))
	}

	// Heuristic: whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	return parseEvery(s)
}

func parseCron(expr string) (Spec, error) {
	if expr == "" {
		return Spec{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return Spec{sched: sched, raw: expr}, nil
}

func parseEvery(v string) (Spec, error) {
	if v == "" {
		return Spec{}, fmt.Errorf("interval required")
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid schedule %q (use a duration like '10m' or cron like '*/10 * * * *')", v)
	}
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval must be > 0")
	}
	return Spec{every: d, raw: v}, nil
}

// Interval reports whether the schedule is a fixed interval.
func (s Spec) Interval() bool { return s.sched == nil }

// Next returns the next run time strictly after from.
func (s Spec) Next(from time.Time) time.Time {
	if s.sched != nil {
		return s.sched.Next(from)
	}
	return from.Add(s.every)
}

func (s Spec) String() string { return s.raw }
