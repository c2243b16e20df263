package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Action is one unit of scheduled work, a push cycle in practice.
type Action interface {
	Run(ctx context.Context) error
}

type ActionFunc func(ctx context.Context) error

func (f ActionFunc) Run(ctx context.Context) error { return f(ctx) }

// Task binds an action to a parsed cron schedule. It is built once at
// startup and never changed.
type Task struct {
	Name     string
	Expr     string
	Schedule cron.Schedule
	Action   Action
}

// NewTask parses expr; a bad expression is a *ScheduleError.
func NewTask(name, expr string, action Action) (*Task, error) {
	if action == nil {
		return nil, fmt.Errorf("task %q: nil action", name)
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return &Task{Name: name, Expr: expr, Schedule: sched, Action: action}, nil
}

// Next returns the first fire instant strictly after now, in UTC.
func (t *Task) Next(now time.Time) time.Time {
	return NextFire(t.Schedule, now)
}

// Stopper is the cancellation signal observed while waiting.
type Stopper interface {
	Cancelled() bool
	Done() <-chan struct{}
}

type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateFiring
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateFiring:
		return "firing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}
