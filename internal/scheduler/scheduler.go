package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
	"github.com/sitepulse/linkaudit/internal/pipeline"
	"github.com/sitepulse/linkaudit/internal/service"
)

// Service maintains the durable job queue and promotes at most one job at a
// time into the running state. ProcessQueue is the only code path that
// starts a pipeline run.
type Service struct {
	dbConn *gorm.DB
	pipe   *pipeline.Pipeline

	cfg   config.SchedulerConfig
	cfgMu sync.RWMutex

	// runMu is the in-process half of the single-running invariant; the
	// guarded status transition in storage is the durable half.
	runMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool

	// transition and sleep are replaceable in tests.
	transition func(dbConn *gorm.DB, id uint, from, to db.JobStatus, errMsg string) (bool, error)
	sleep      func(time.Duration)
}

// finishAttempts bounds the retries on the running-to-final transition. A
// job left in running state blocks all promotion until the next restart.
const finishAttempts = 3

// Outcome describes what one ProcessQueue call did.
type Outcome struct {
	Processed bool         `json:"processed"`
	JobID     uint         `json:"job_id,omitempty"`
	JobType   db.JobType   `json:"job_type,omitempty"`
	Status    db.JobStatus `json:"status,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// QueueStatus is a snapshot of the queue for the status endpoint.
type QueueStatus struct {
	Counts  map[db.JobStatus]int64 `json:"counts"`
	NextJob *db.ScheduledJob       `json:"next_job,omitempty"`
}

// NewService creates a scheduler service.
func NewService(dbConn *gorm.DB, pipe *pipeline.Pipeline, cfg config.SchedulerConfig) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		dbConn:     dbConn,
		pipe:       pipe,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		transition: service.TransitionJob,
		sleep:      time.Sleep,
	}
}

// Start launches the background loop that ticks ProcessQueue.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler service is already running")
	}
	s.isRunning = true

	s.wg.Add(1)
	go s.loop()

	log.Printf("Scheduler service started (tick interval %s)", s.tickInterval())
	return nil
}

// Stop stops the background loop. A pipeline run already in flight executes
// to completion; there is no mid-run cancellation.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.wg.Wait()

	log.Println("Scheduler service stopped")
	return nil
}

func (s *Service) loop() {
	defer s.wg.Done()

	// A timer instead of a ticker so UpdateConfig takes effect on the
	// following pass.
	timer := time.NewTimer(s.tickInterval())
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			if _, err := s.ProcessQueue(s.ctx); err != nil {
				log.Printf("Queue processing error: %v", err)
			}
			timer.Reset(s.tickInterval())
		}
	}
}

// ScheduleFullAudit enqueues a full audit. A nil timestamp means run at the
// next queue pass.
func (s *Service) ScheduleFullAudit(at *time.Time, priority int) (*db.ScheduledJob, error) {
	when := time.Now().UTC()
	if at != nil {
		when = at.UTC()
	}
	if priority == 0 {
		priority = s.defaultPriority()
	}
	return service.CreateJob(s.dbConn, db.JobFullAudit, priority, when)
}

// ScheduleQuickCheck enqueues a quick check to run at the next queue pass.
func (s *Service) ScheduleQuickCheck(priority int) (*db.ScheduledJob, error) {
	if priority == 0 {
		priority = s.defaultPriority()
	}
	return service.CreateJob(s.dbConn, db.JobQuickCheck, priority, time.Now().UTC())
}

// ProcessQueue promotes the next due pending job and runs its pipeline. The
// promotion requires both the in-process lock and the absence of any running
// job in storage; both are released on every exit path. Pipeline failures
// and panics mark the job failed and are not propagated, so the queue stays
// processable.
func (s *Service) ProcessQueue(ctx context.Context) (*Outcome, error) {
	if !s.runMu.TryLock() {
		return &Outcome{Message: "a job is already being processed"}, nil
	}
	defer s.runMu.Unlock()

	running, err := service.AnyJobRunning(s.dbConn)
	if err != nil {
		return nil, fmt.Errorf("failed to check running jobs: %w", err)
	}
	if running {
		return &Outcome{Message: "a job is already running"}, nil
	}

	job, err := service.NextRunnableJob(s.dbConn, time.Now().UTC())
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &Outcome{Message: "no runnable jobs"}, nil
		}
		return nil, fmt.Errorf("failed to query queue: %w", err)
	}

	promoted, err := s.transition(s.dbConn, job.ID, db.JobPending, db.JobRunning, "")
	if err != nil {
		return nil, fmt.Errorf("failed to promote job %d: %w", job.ID, err)
	}
	if !promoted {
		// The job changed state underneath us (e.g. cancelled); not an error.
		return &Outcome{Message: fmt.Sprintf("job %d was no longer pending", job.ID)}, nil
	}

	log.Printf("Processing job %d (%s, priority %d)", job.ID, job.Type, job.Priority)
	result := s.runJob(ctx, job)

	finalStatus := db.JobCompleted
	errMsg := ""
	if !result.Success {
		finalStatus = db.JobFailed
		errMsg = result.Message
	}

	var finishErr error
	for attempt := 0; attempt < finishAttempts; attempt++ {
		if _, finishErr = s.transition(s.dbConn, job.ID, db.JobRunning, finalStatus, errMsg); finishErr == nil {
			break
		}
		log.Printf("Failed to finish job %d (attempt %d/%d): %v", job.ID, attempt+1, finishAttempts, finishErr)
		s.sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	if finishErr != nil {
		return nil, fmt.Errorf("failed to finish job %d: %w", job.ID, finishErr)
	}

	log.Printf("Job %d finished with status %s", job.ID, finalStatus)
	return &Outcome{
		Processed: true,
		JobID:     job.ID,
		JobType:   job.Type,
		Status:    finalStatus,
		Message:   result.Message,
	}, nil
}

// runJob executes the pipeline for one job, converting panics into a failed
// result so the caller can always transition the job out of running.
func (s *Service) runJob(ctx context.Context, job *db.ScheduledJob) (result *pipeline.RunResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Pipeline panicked while running job %d: %v", job.ID, r)
			result = &pipeline.RunResult{
				Success: false,
				Message: fmt.Sprintf("pipeline panic: %v", r),
			}
		}
	}()

	switch job.Type {
	case db.JobQuickCheck:
		return s.pipe.RunQuickCheck(ctx)
	default:
		return s.pipe.RunFullAudit(ctx)
	}
}

// CancelJob cancels a pending job. Running jobs cannot be cancelled; a
// running audit executes to completion.
func (s *Service) CancelJob(id uint) error {
	job, err := service.GetJobByID(s.dbConn, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("job %d not found", id)
		}
		return err
	}

	cancelled, err := service.TransitionJob(s.dbConn, id, db.JobPending, db.JobCancelled, "")
	if err != nil {
		return err
	}
	if !cancelled {
		return fmt.Errorf("job %d is %s and cannot be cancelled", id, job.Status)
	}

	log.Printf("Job %d cancelled", id)
	return nil
}

// UpdateConfig replaces the scheduler configuration. The new tick interval
// applies after the next tick.
func (s *Service) UpdateConfig(cfg config.SchedulerConfig) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	if cfg.TickInterval > 0 {
		s.cfg.TickInterval = cfg.TickInterval
	}
	if cfg.DefaultPriority > 0 {
		s.cfg.DefaultPriority = cfg.DefaultPriority
	}
	log.Printf("Scheduler config updated: tick %s, default priority %d", s.cfg.TickInterval, s.cfg.DefaultPriority)
}

// Config returns a copy of the current configuration.
func (s *Service) Config() config.SchedulerConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// QueueStatus reports per-status counts and the next runnable job.
func (s *Service) QueueStatus() (*QueueStatus, error) {
	counts, err := service.CountJobsByStatus(s.dbConn)
	if err != nil {
		return nil, err
	}

	status := &QueueStatus{Counts: counts}
	next, err := service.NextRunnableJob(s.dbConn, time.Now().UTC())
	if err == nil {
		status.NextJob = next
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	return status, nil
}

func (s *Service) tickInterval() time.Duration {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.TickInterval
}

func (s *Service) defaultPriority() int {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.DefaultPriority
}
