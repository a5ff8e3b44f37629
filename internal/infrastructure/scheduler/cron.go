package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"jobwatcher/internal/ports"
)

// CronScheduler runs the scan pipeline on a cron expression in the
// configured timezone.
type CronScheduler struct {
	spec string
	loc  *time.Location
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// New builds a scheduler from a standard five-field cron expression.
func New(spec string, loc *time.Location) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{spec: spec, loc: loc}
}

// Start registers the job and begins the cron loop.
func (c *CronScheduler) Start(_ context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("scheduler job is nil")
	}
	if c.cron != nil {
		return nil
	}

	runner := cron.New(cron.WithLocation(c.loc))
	if _, err := runner.AddFunc(c.spec, func() { job(time.Now().In(c.loc)) }); err != nil {
		return err
	}
	runner.Start()
	c.cron = runner
	return nil
}

// Stop halts the cron loop and waits for a running job or ctx, whichever
// finishes first.
func (c *CronScheduler) Stop(ctx context.Context) error {
	if c.cron == nil {
		return nil
	}
	done := c.cron.Stop()
	c.cron = nil
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	return nil
}
