package scheduler

import (
	"context"
	"time"

	"github.com/spec-kit/sla-ticket-service/internal/config"
	"github.com/spec-kit/sla-ticket-service/internal/service"
)

// Reconcilers are the service operations the standard jobs drive.
type Reconcilers struct {
	SLA    *service.SLAService
	Cases  *service.SupportCaseService
	Health *service.HealthEventService
}

// RegisterDefaults registers sla-scan, case-sync and health-poll. A nil
// reconciler leaves its job out.
func RegisterDefaults(s *Scheduler, cfg config.SchedulerConfig, r Reconcilers) error {
	var jobs []Job
	if r.SLA != nil {
		jobs = append(jobs, Job{Name: JobSLAScan, Interval: cfg.SLAScanInterval, Run: func(ctx context.Context) error {
			_, err := r.SLA.ScanForViolations(ctx, time.Now())
			return err
		}})
	}
	if r.Cases != nil {
		jobs = append(jobs, Job{Name: JobCaseSync, Interval: cfg.CaseSyncInterval, Run: batchJob(r.Cases.PollAllActiveCases)})
	}
	if r.Health != nil {
		jobs = append(jobs, Job{Name: JobHealthPoll, Interval: cfg.HealthPollInterval, Run: batchJob(r.Health.PollHealthEvents)})
	}
	for _, job := range jobs {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// batchJob fails the run when any item of the pass failed, so the job status
// shows the error while the rest of the batch still completes.
func batchJob(poll func(context.Context) (service.BatchResult, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		result, err := poll(ctx)
		if err != nil {
			return err
		}
		return result.Err()
	}
}
