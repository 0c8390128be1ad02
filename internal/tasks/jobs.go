package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

const queueCapacity = 64

// queuedJob carries just enough to run an import on a worker.
type queuedJob struct {
	jobID  string
	userID string
}

// JobQueue runs imports asynchronously on a fixed pool of workers,
// persisting each run as an [models.ImportJob] row so its outcome can be
// polled after the fact.
type JobQueue struct {
	jobs     *repositories.JobRepository
	sessions *services.SessionManager
	engine   *ImportEngine
	logger   *log.Logger
	queue    chan queuedJob
	workers  int
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewJobQueue creates a queue backed by workers goroutines. Call Start
// before enqueueing and Stop to drain on shutdown.
func NewJobQueue(store *repositories.Store, sessions *services.SessionManager, engine *ImportEngine, workers int, logger *log.Logger) *JobQueue {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &JobQueue{
		jobs:     store.Jobs,
		sessions: sessions,
		engine:   engine,
		logger:   logger,
		queue:    make(chan queuedJob, queueCapacity),
		workers:  workers,
	}
}

// Start launches the worker pool. Workers exit when the queue is closed
// by Stop or the context is cancelled.
func (q *JobQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			for {
				select {
				case job, ok := <-q.queue:
					if !ok {
						return
					}
					q.run(ctx, job)
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	q.logger.Info("job queue started", "workers", q.workers)
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (q *JobQueue) Stop() {
	q.stopOnce.Do(func() { close(q.queue) })
	q.wg.Wait()
}

// Enqueue creates a pending job for the user and hands it to the pool.
// A full queue fails the job immediately rather than blocking the caller.
func (q *JobQueue) Enqueue(userID string) (*models.ImportJob, error) {
	job, err := q.jobs.Create(userID)
	if err != nil {
		return nil, err
	}

	select {
	case q.queue <- queuedJob{jobID: job.ID, userID: userID}:
		return job, nil
	default:
		queueErr := fmt.Errorf("import queue is full")
		if err := q.jobs.MarkFailure(job.ID, queueErr); err != nil {
			q.logger.Error("failed to record queue overflow", "job_id", job.ID, "err", err)
		}
		return nil, queueErr
	}
}

// Status retrieves a job for polling.
func (q *JobQueue) Status(jobID string) (*models.ImportJob, error) {
	return q.jobs.Get(jobID)
}

// run executes one import, recording the transition through running to
// success or failure.
func (q *JobQueue) run(ctx context.Context, job queuedJob) {
	logger := shared.WithLogger(q.logger, "job_id", job.jobID, "user_id", job.userID)

	if err := q.jobs.MarkRunning(job.jobID); err != nil {
		logger.Error("failed to mark job running", "err", err)
		return
	}

	client, err := q.sessions.Ensure(ctx, job.userID)
	if err != nil {
		logger.Error("import aborted", "err", err)
		if err := q.jobs.MarkFailure(job.jobID, err); err != nil {
			logger.Error("failed to record job failure", "err", err)
		}
		return
	}

	stats, err := q.engine.Run(ctx, client, job.userID)
	if err != nil {
		logger.Error("import failed", "err", err)
		if err := q.jobs.MarkFailure(job.jobID, err); err != nil {
			logger.Error("failed to record job failure", "err", err)
		}
		return
	}

	if err := q.jobs.MarkSuccess(job.jobID, stats); err != nil {
		logger.Error("failed to record job success", "err", err)
	}
}
