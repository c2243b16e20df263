// Package scheduler waits for cron fire instants and runs a task at each one.
package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// MaxStep is the longest uninterrupted sleep while waiting for a fire instant.
const MaxStep = time.Second

type Scheduler struct {
	task *Task
	step time.Duration
	now  func() time.Time
	log  zerolog.Logger

	state atomic.Int32
	last  time.Time // previous fire instant; only touched by Run

	// stats (atomic) for observability
	fired  atomic.Uint64
	failed atomic.Uint64
}

type Options struct {
	// Step is the wait granularity, capped at MaxStep.
	Step   time.Duration
	Now    func() time.Time
	Logger zerolog.Logger
}

func New(task *Task, opts Options) *Scheduler {
	if opts.Step <= 0 || opts.Step > MaxStep {
		opts.Step = MaxStep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		task: task,
		step: opts.Step,
		now:  opts.Now,
		log:  opts.Logger.With().Str("task", task.Name).Logger(),
	}
}

// Run blocks until stop is cancelled. Cycles never overlap: the next fire
// instant is computed only after the previous action returned, from the
// current time, so missed instants are skipped rather than replayed.
// Cancellation is observed only while waiting; a running action always
// completes.
func (s *Scheduler) Run(stop Stopper) error {
	for {
		if stop.Cancelled() {
			s.stopped()
			return nil
		}
		s.setState(StateWaiting)

		from := s.now()
		if from.Before(s.last) {
			// clock stepped backwards; never fire the same instant twice
			from = s.last
		}
		next := s.task.Next(from)
		if next.IsZero() {
			s.log.Warn().Str("schedule", s.task.Expr).Msg("schedule has no upcoming fire instant")
			<-stop.Done()
			s.stopped()
			return nil
		}
		s.log.Info().Time("next", next).Msg("next execution scheduled")

		if !s.wait(stop, next) {
			s.stopped()
			return nil
		}
		s.last = next
		s.fire(next)
	}
}

// wait sleeps toward next in steps, re-checking stop after each one.
// It reports false if stop was cancelled first.
func (s *Scheduler) wait(stop Stopper, next time.Time) bool {
	for {
		if stop.Cancelled() {
			return false
		}
		remaining := WaitDuration(s.now(), next)
		if remaining <= 0 {
			return true
		}
		timer := time.NewTimer(min(remaining, s.step))
		select {
		case <-stop.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

func (s *Scheduler) stopped() {
	s.setState(StateStopped)
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) State() State { return State(s.state.Load()) }

func (s *Scheduler) setState(st State) { s.state.Store(int32(st)) }

func (s *Scheduler) Stats() (fired uint64, failed uint64) {
	return s.fired.Load(), s.failed.Load()
}
