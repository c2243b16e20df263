package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Expressions are evaluated in UTC unless prefixed with CRON_TZ=<zone>.
// Accepts classic five-field crontab lines, six fields with a leading
// seconds column, and descriptors such as @hourly or @every 5m.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type ScheduleError struct {
	Expr string
	Err  error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule %q: %v", e.Expr, e.Err)
}

func (e *ScheduleError) Unwrap() error { return e.Err }

func ParseSchedule(expr string) (cron.Schedule, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, &ScheduleError{Expr: expr, Err: fmt.Errorf("schedule required")}
	}
	// cron evaluates in time.Local unless told otherwise
	if !strings.HasPrefix(s, "TZ=") && !strings.HasPrefix(s, "CRON_TZ=") {
		s = "CRON_TZ=UTC " + s
	}
	sched, err := parser.Parse(s)
	if err != nil {
		return nil, &ScheduleError{Expr: expr, Err: err}
	}
	return sched, nil
}

// NextFire returns the next instant strictly after now, in UTC.
func NextFire(s cron.Schedule, now time.Time) time.Time {
	return s.Next(now.UTC())
}

// WaitDuration is clamped to zero when next is not in the future.
func WaitDuration(now, next time.Time) time.Duration {
	d := next.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
