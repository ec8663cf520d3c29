// Package scheduler triggers the daily run.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/TobiSchelling/noticeflow/internal/config"
)

// Job is one scheduled run.
type Job func(ctx context.Context)

// Scheduler runs a Job once a day. A trigger that fires while the previous
// run is still in flight is skipped.
type Scheduler struct {
	cron   *cron.Cron
	id     cron.EntryID
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
}

// Spec converts an "HH:MM" time of day into a cron spec.
func Spec(timeOfDay string) (string, error) {
	t, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return "", fmt.Errorf("invalid schedule time %q: %w", timeOfDay, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// New creates a scheduler for cfg. It does not start it.
func New(cfg config.Schedule, job Job) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	spec, err := Spec(cfg.Time)
	if err != nil {
		return nil, err
	}

	logger := slogLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		job: job,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.id, err = s.cron.AddFunc(spec, func() { s.job(s.ctx) })
	if err != nil {
		return nil, fmt.Errorf("scheduling %q: %w", spec, err)
	}
	return s, nil
}

// Start begins triggering in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "next_run", s.Next())
}

// Stop cancels the in-flight run, if any, and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Next returns the next trigger time.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

// RunNow triggers the job through the same chain as scheduled runs.
func (s *Scheduler) RunNow() {
	s.cron.Entry(s.id).WrappedJob.Run()
}

// slogLogger adapts slog to the cron logger interface.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
