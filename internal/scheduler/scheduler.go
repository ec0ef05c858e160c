// Package scheduler runs the periodic reconciliation jobs. Each job has its
// own ticker; a run still in flight when the next tick fires causes that tick
// to be skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/observability"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

// Job names.
const (
	JobSLAScan    = "sla-scan"
	JobCaseSync   = "case-sync"
	JobHealthPoll = "health-poll"
)

// Run outcomes, also used as metric labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomePanic   = "panic"
	OutcomeSkipped = "skipped"
)

// JobFunc is one run of a job.
type JobFunc func(ctx context.Context) error

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

// Locker takes a cluster-wide lease so only one replica runs a job at a time.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error)
}

// JobStatus is a snapshot of a job's last run.
type JobStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Running      bool          `json:"running"`
	Runs         int           `json:"runs"`
	LastOutcome  string        `json:"last_outcome,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	LastStarted  *time.Time    `json:"last_started,omitempty"`
	LastFinished *time.Time    `json:"last_finished,omitempty"`
}

// Options configures a Scheduler.
type Options struct {
	// Timeout bounds each run. Zero means the job interval.
	Timeout time.Duration
	// Locker is optional; nil disables cross-replica leases.
	Locker  Locker
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

type jobState struct {
	job     Job
	running atomic.Bool

	mu     sync.Mutex
	status JobStatus
}

// Scheduler owns the job goroutines.
type Scheduler struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*jobState
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an idle scheduler.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{opts: opts, logger: logger, jobs: map[string]*jobState{}}
}

// Register adds a job. It must be called before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: job needs a name and a run func")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("scheduler: job %s needs a positive interval", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: cannot register %s after start", job.Name)
	}
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("scheduler: job %s already registered", job.Name)
	}
	s.jobs[job.Name] = &jobState{job: job, status: JobStatus{Name: job.Name, Interval: job.Interval}}
	return nil
}

// Start launches one ticker goroutine per job. Runs end when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for _, state := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, state)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels in-flight runs and waits for the job goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow starts job name in the background under the same overlap guard as
// the ticker. It returns ErrJobRunning if a run is already in flight.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	state, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return apperrors.NewNotFound("job", map[string]any{"name": name})
	}
	if !state.running.CompareAndSwap(false, true) {
		return apperrors.NewJobRunning(name)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer state.running.Store(false)
		s.execute(context.Background(), state)
	}()
	return nil
}

// Status returns a snapshot of every job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	states := make([]*jobState, 0, len(s.jobs))
	for _, st := range s.jobs {
		states = append(states, st)
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		status := st.status
		st.mu.Unlock()
		status.Running = st.running.Load()
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) loop(ctx context.Context, state *jobState) {
	defer s.wg.Done()
	ticker := time.NewTicker(state.job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, state)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, state *jobState) {
	if !state.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous run still in flight, skipping tick", zap.String("job", state.job.Name))
		s.opts.Metrics.RecordJobRun(state.job.Name, OutcomeSkipped, 0)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer state.running.Store(false)
		s.execute(ctx, state)
	}()
}

// execute performs one guarded run. The caller holds the running flag.
func (s *Scheduler) execute(ctx context.Context, state *jobState) {
	name := state.job.Name
	log := s.logger.With(zap.String("job", name))

	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = state.job.Interval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.opts.Locker != nil {
		unlock, ok, err := s.opts.Locker.TryLock(ctx, name, timeout)
		if err != nil {
			// Fall back to the local guard rather than stall the job on a lease outage.
			log.Warn("taking job lease failed, running without it", zap.Error(err))
		} else if !ok {
			log.Debug("job lease held elsewhere, skipping run")
			s.opts.Metrics.RecordJobRun(name, OutcomeSkipped, 0)
			s.record(state, OutcomeSkipped, nil, time.Now(), time.Now())
			return
		} else {
			defer func() {
				if err := unlock(context.Background()); err != nil {
					log.Warn("releasing job lease failed", zap.Error(err))
				}
			}()
		}
	}

	started := time.Now()
	outcome, err := s.invoke(ctx, state.job)
	finished := time.Now()
	s.opts.Metrics.RecordJobRun(name, outcome, finished.Sub(started))
	s.record(state, outcome, err, started, finished)

	switch outcome {
	case OutcomeOK:
		log.Info("job run complete", zap.Duration("duration", finished.Sub(started)))
	case OutcomePanic:
		log.Error("job run panicked", zap.Error(err))
	default:
		log.Error("job run failed", zap.Duration("duration", finished.Sub(started)), zap.Error(err))
	}
}

func (s *Scheduler) invoke(ctx context.Context, job Job) (outcome string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = OutcomePanic
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	if err := job.Run(ctx); err != nil {
		return OutcomeError, err
	}
	return OutcomeOK, nil
}

func (s *Scheduler) record(state *jobState, outcome string, err error, started, finished time.Time) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.status.Runs++
	state.status.LastOutcome = outcome
	state.status.LastError = ""
	if err != nil {
		state.status.LastError = err.Error()
	}
	state.status.LastStarted = &started
	state.status.LastFinished = &finished
}
