// Package scheduler implements the cron-like loop (spec §4.13/C13): a
// single-threaded cooperative loop sleeping until the nearest next-fire
// time, capped at 60s, with missed fires collapsing to one. Cron
// expression parsing uses robfig/cron's parser; the library's own runner
// is not used since its semantics don't collapse missed fires the way
// §4.13 requires.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ammtrader/ammtrader/internal/logging"
)

// sleepCap bounds how long the loop ever sleeps in one step, so it stays
// responsive to a shutdown signal or config reload.
const sleepCap = 60 * time.Second

// Handler is one scheduled job; errors are logged, never propagated.
type Handler func(ctx context.Context) error

type job struct {
	name     string
	schedule cron.Schedule
	handler  Handler
	nextFire time.Time
}

// Scheduler holds a list of cron-expression-driven handlers and runs them
// serially in a single cooperative loop.
type Scheduler struct {
	jobs  []*job
	clock func() time.Time
}

// New constructs an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{clock: time.Now}
}

// Register parses a standard cron expression and adds a handler under it.
func (s *Scheduler) Register(name, expr string, handler Handler) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return err
	}
	now := s.clock()
	s.jobs = append(s.jobs, &job{name: name, schedule: schedule, handler: handler, nextFire: schedule.Next(now)})
	return nil
}

// Run blocks until ctx is canceled, firing handlers sequentially at their
// next scheduled time. A slow handler delays subsequent fires but never
// drops them; fires missed during a long handler collapse into one.
func (s *Scheduler) Run(ctx context.Context) {
	log := logging.New("scheduler")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		default:
		}

		next := s.nextDue()
		wait := next.Sub(s.clock())
		if wait < 0 {
			wait = 0
		}
		if wait > sleepCap {
			wait = sleepCap
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("scheduler stopped")
			return
		case <-timer.C:
		}

		s.fireDue(ctx, log)
	}
}

// nextDue returns the earliest nextFire across all jobs.
func (s *Scheduler) nextDue() time.Time {
	if len(s.jobs) == 0 {
		return s.clock().Add(sleepCap)
	}
	earliest := s.jobs[0].nextFire
	for _, j := range s.jobs[1:] {
		if j.nextFire.Before(earliest) {
			earliest = j.nextFire
		}
	}
	return earliest
}

// fireDue runs every job whose nextFire has arrived, advancing its
// schedule exactly once regardless of how many fires were missed while
// asleep (collapsing).
func (s *Scheduler) fireDue(ctx context.Context, log zerolog.Logger) {
	now := s.clock()
	for _, j := range s.jobs {
		if j.nextFire.After(now) {
			continue
		}
		s.fire(ctx, j)
		j.nextFire = j.schedule.Next(now)
	}
}

func (s *Scheduler) fire(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			logging.New("scheduler").Error().Str("job", j.name).Interface("panic", r).Msg("handler panicked")
		}
	}()
	if err := j.handler(ctx); err != nil {
		logging.New("scheduler").Error().Str("job", j.name).Err(err).Msg("handler failed")
	}
}
