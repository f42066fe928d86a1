// Package checkpoint runs a background cron schedule that periodically
// flushes the buffer pool, grounded on the reference engine's
// internal/storage/scheduler.go, which wires robfig/cron/v3 the same way for
// its own generic background jobs.
package checkpoint

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quill-run/minidb/internal/buffer"
	"github.com/quill-run/minidb/internal/logging"
	"github.com/quill-run/minidb/internal/metrics"
)

// Scheduler drives periodic buffer pool checkpoints through a cron
// expression. It never touches frame internals, calling only the Pool's
// public Checkpoint entry point, preserving the single-threaded-core model.
type Scheduler struct {
	cron *cron.Cron
	pool *buffer.Pool
	log  *logging.Logger
	m    *metrics.Metrics
}

// New builds a Scheduler that will run spec (a robfig/cron/v3 schedule, e.g.
// "@every 30s" or a 5-field crontab) against pool.Checkpoint.
func New(pool *buffer.Pool, spec string, log *logging.Logger, m *metrics.Metrics) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(),
		pool: pool,
		log:  log.Component("scheduler"),
		m:    m,
	}
	_, err := s.cron.AddFunc(spec, s.runCheckpoint)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for any in-flight checkpoint to finish and halts the schedule.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runCheckpoint() {
	start := time.Now()
	err := s.pool.Checkpoint()
	dur := time.Since(start)
	if s.m != nil {
		s.m.ObserveCheckpoint(dur)
	}
	s.log.LogCheckpoint(dur, 0, err)
}
