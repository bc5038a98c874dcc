// Package jobs runs periodic maintenance tasks on a cron schedule. A job that
// is still running when its next tick arrives is skipped for that tick.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type CronJob interface {
	Schedule() string
	Job
}

type funcJob struct {
	name     string
	schedule string
	fn       func(ctx context.Context) error
}

// NewFuncJob adapts fn into a CronJob.
func NewFuncJob(name, schedule string, fn func(ctx context.Context) error) CronJob {
	return &funcJob{name: name, schedule: schedule, fn: fn}
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Schedule() string              { return j.schedule }
func (j *funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

type Runner struct {
	cron    *cron.Cron
	jobs    map[string]CronJob
	running mapset.Set[string]
	timeout time.Duration
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewRunner registers jobs; each run gets a context bounded by timeout.
func NewRunner(timeout time.Duration, jobs ...CronJob) (*Runner, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	r := &Runner{
		cron:    cron.New(),
		jobs:    make(map[string]CronJob, len(jobs)),
		running: mapset.NewSet[string](),
		timeout: timeout,
	}
	for _, job := range jobs {
		if _, dup := r.jobs[job.Name()]; dup {
			return nil, fmt.Errorf("duplicate job %q", job.Name())
		}
		if err := r.cron.AddFunc(job.Schedule(), func() { r.RunNow(job.Name()) }); err != nil {
			return nil, fmt.Errorf("schedule job %q: %w", job.Name(), err)
		}
		r.jobs[job.Name()] = job
	}
	return r, nil
}

func (r *Runner) Start() {
	logrus.WithField("jobs", len(r.jobs)).Info("jobs: starting scheduler")
	r.cron.Start()
}

// Stop halts the scheduler and waits for running jobs.
func (r *Runner) Stop() {
	logrus.Info("jobs: stopping all tasks")
	r.cron.Stop()
	r.wg.Wait()
}

// RunNow runs the named job synchronously unless it is already running.
// It reports whether the job ran.
func (r *Runner) RunNow(name string) bool {
	job, ok := r.jobs[name]
	if !ok {
		logrus.WithField("job", name).Warn("jobs: unknown job")
		return false
	}

	r.mu.Lock()
	if r.running.Contains(name) {
		r.mu.Unlock()
		logrus.WithField("job", name).Warn("jobs: task is already running")
		return false
	}
	r.running.Add(name)
	r.wg.Add(1)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running.Remove(name)
		r.mu.Unlock()
		r.wg.Done()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	started := time.Now()
	entry := logrus.WithField("job", name)
	if err := job.Run(ctx); err != nil {
		entry.WithError(err).Error("jobs: task failed")
		return true
	}
	entry.WithField("duration_ms", time.Since(started).Milliseconds()).Debug("jobs: task finished")
	return true
}

// Running lists the names of jobs currently executing.
func (r *Runner) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running.ToSlice()
}
