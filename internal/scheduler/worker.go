package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// fire runs the task synchronously. Failures are logged and counted but
// never stop the loop.
func (s *Scheduler) fire(at time.Time) {
	s.setState(StateFiring)
	s.fired.Add(1)
	s.log.Info().Time("at", at).Msg("running")

	s.setState(StateRunning)
	start := time.Now()
	err := s.runAction()
	took := time.Since(start)

	if err != nil {
		s.failed.Add(1)
		// the action logs its own failure; keep only a debug trace here
		s.log.Debug().Err(err).Dur("took", took).Msg("task failed")
		return
	}
	s.log.Debug().Dur("took", took).Msg("task finished")
}

func (s *Scheduler) runAction() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
			s.log.Error().Err(err).Bytes("stack", debug.Stack()).Msg("task panicked")
		}
	}()
	return s.task.Action.Run(context.Background())
}
