package relay

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule decides when the next tick runs. cron.Schedule satisfies it.
type Schedule = cron.Schedule

// Spec is a parsed schedule string.
//
// Supported forms:
//   - Interval duration: "10m", "30s"
//   - Interval HH:MM: "00:10" (10 minutes), "01:30"
//   - Cron: "*/5 * * * *", "@hourly", "@every 10m"
//
// Prefixes "cron:" and "interval:" force one interpretation.
type Spec struct {
	Raw      string
	Every    time.Duration // set for intervals
	Cron     string        // set for cron expressions
	Schedule Schedule
}

func (s Spec) String() string {
	if s.Cron != "" {
		return "cron " + s.Cron
	}
	return "every " + s.Every.String()
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule turns a schedule string into a Schedule.
func ParseSchedule(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)

	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(raw, strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(raw, strings.TrimSpace(s[len("interval:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(raw, s)
	default:
		return parseInterval(raw, s)
	}
}

func parseCron(raw, expr string) (Spec, error) {
	if expr == "" {
		return Spec{}, fmt.Errorf("cron expression required")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Raw: raw, Cron: expr, Schedule: sched}, nil
}

func parseInterval(raw, v string) (Spec, error) {
	var (
		d   time.Duration
		err error
	)
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Spec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else if d, err = time.ParseDuration(v); err != nil {
		return Spec{}, fmt.Errorf(
			"invalid schedule %q (use a duration like '10m', HH:MM like '00:10', or cron like '*/10 * * * *')",
			raw,
		)
	}
	if d < time.Second {
		return Spec{}, fmt.Errorf("interval must be at least 1s, got %s", d)
	}
	return Spec{Raw: raw, Every: d, Schedule: cron.Every(d)}, nil
}
