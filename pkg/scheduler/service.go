// Package scheduler runs training jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/logging"
	"github.com/mimir-aip/iris-mlops/pkg/mlmodel"
	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// maxExecutions bounds the per-job execution history kept in memory
const maxExecutions = 50

// Trainer runs one training job
type Trainer interface {
	Train(ctx context.Context, params models.TrainingParams) (*mlmodel.TrainingResult, error)
}

// Service provides job scheduling operations
type Service struct {
	trainer    Trainer
	cron       *cron.Cron
	logger     *zap.Logger
	mu         sync.Mutex
	jobs       map[string]*models.ScheduledJob
	entries    map[string]cron.EntryID // Maps job ID to cron entry ID
	executions map[string][]*models.JobExecution
}

// NewService creates a new scheduler service. A job that is still training when its
// next tick fires skips that tick.
func NewService(trainer Trainer, logger *zap.Logger) *Service {
	logger = logger.Named("scheduler")
	cronLogger := logging.CronLogger(logger)
	return &Service{
		trainer: trainer,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger:     logger,
		jobs:       make(map[string]*models.ScheduledJob),
		entries:    make(map[string]cron.EntryID),
		executions: make(map[string][]*models.JobExecution),
	}
}

// Start starts the scheduler
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("Job scheduler started", zap.Int("jobs", len(s.List())))
}

// Stop stops the scheduler. The returned context is done once running jobs complete.
func (s *Service) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info("Job scheduler stopped")
	return ctx
}

// Create creates a new scheduled job
func (s *Service) Create(req *models.ScheduledJobCreateRequest) (*models.ScheduledJob, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	job := &models.ScheduledJob{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Schedule:  req.Schedule,
		Params:    req.Params,
		Enabled:   req.Enabled,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if job.Enabled {
		if err := s.scheduleJob(job); err != nil {
			return nil, err
		}
	}
	s.jobs[job.ID] = job
	return job, nil
}

// Get retrieves a job by ID
func (s *Service) Get(id string) (*models.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	copied := *job
	return &copied, nil
}

// List lists all scheduled jobs ordered by creation time
func (s *Service) List() []*models.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*models.ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs
}

// Delete unschedules and forgets a job
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	delete(s.jobs, id)
	delete(s.executions, id)
	return nil
}

// Executions returns the recorded executions of a job, oldest first
func (s *Service) Executions(jobID string) []models.JobExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.JobExecution, 0, len(s.executions[jobID]))
	for _, exec := range s.executions[jobID] {
		out = append(out, *exec)
	}
	return out
}

// RunNow executes a job synchronously, outside its schedule
func (s *Service) RunNow(ctx context.Context, id string) (*models.JobExecution, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return s.executeJob(ctx, job), nil
}

func (s *Service) validateCreateRequest(req *models.ScheduledJobCreateRequest) error {
	if req.Name == "" {
		return &models.ConfigurationError{Field: "name", Reason: "is required"}
	}
	if _, err := cron.ParseStandard(req.Schedule); err != nil {
		return &models.ConfigurationError{Field: "schedule", Value: req.Schedule, Reason: fmt.Sprintf("invalid cron expression: %v", err)}
	}
	return req.Params.Validate()
}

// scheduleJob schedules a job with the cron scheduler. Caller holds s.mu.
func (s *Service) scheduleJob(job *models.ScheduledJob) error {
	schedule, err := cron.ParseStandard(job.Schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	jobFunc := func() {
		s.executeJob(context.Background(), job)
	}

	entryID := s.cron.Schedule(schedule, cron.FuncJob(jobFunc))
	s.entries[job.ID] = entryID
	next := schedule.Next(time.Now())
	job.NextRun = &next

	s.logger.Info("Scheduled job",
		zap.String("job_id", job.ID),
		zap.String("name", job.Name),
		zap.String("schedule", job.Schedule))
	return nil
}

// executeJob executes a scheduled job and records the execution
func (s *Service) executeJob(ctx context.Context, job *models.ScheduledJob) *models.JobExecution {
	log := s.logger.With(zap.String("job_id", job.ID), zap.String("name", job.Name))
	log.Info("Executing scheduled job")

	now := time.Now()
	exec := &models.JobExecution{
		ID:        uuid.New().String(),
		JobID:     job.ID,
		StartedAt: now,
		Status:    models.JobStatusRunning,
	}

	s.mu.Lock()
	job.LastRun = &now
	if schedule, err := cron.ParseStandard(job.Schedule); err == nil {
		next := schedule.Next(now)
		job.NextRun = &next
	}
	history := append(s.executions[job.ID], exec)
	if len(history) > maxExecutions {
		history = history[len(history)-maxExecutions:]
	}
	s.executions[job.ID] = history
	params := job.Params
	s.mu.Unlock()

	result, err := s.trainer.Train(ctx, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	completed := time.Now()
	exec.CompletedAt = &completed
	if err != nil {
		exec.Status = models.JobStatusFailed
		exec.Error = err.Error()
		log.Error("Scheduled training failed", zap.Error(err))
	} else {
		exec.Status = models.JobStatusSucceeded
		if result.Run != nil {
			exec.RunID = result.Run.ID
		}
		if result.Metrics != nil {
			exec.Accuracy = result.Metrics.Accuracy
		}
		log.Info("Scheduled job completed",
			zap.String("run_id", exec.RunID),
			zap.Float64("accuracy", exec.Accuracy),
			zap.Duration("duration", completed.Sub(now)))
	}
	copied := *exec
	return &copied
}
