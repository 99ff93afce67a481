// Package queue implements the Job Queue (C2): priority-ordered
// pending -> running -> terminal dispatch over crawl jobs, backed by the
// Store's atomic claim/complete primitives. It adds the policy the raw
// store calls don't own: realtime/background priority tiers and
// short-window duplicate collapsing by venue.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/venuescout/venuescout/internal/venue"
)

// backgroundPriorityCeiling is the highest priority a background job may
// carry; it must stay strictly below venue.PriorityFloor so realtime work
// always outranks it, per §4.1's priority policy.
const backgroundPriorityCeiling = venue.PriorityFloor - 1

// dedupWindow is how long a duplicate enqueue for the same venue is
// collapsed into the earlier pending job, per §4.1.
const dedupWindow = 30 * time.Second

// Store is the subset of store.Store the queue depends on.
type Store interface {
	EnqueueJob(ctx context.Context, venueID string, mode venue.JobMode, priority int) (int64, error)
	ClaimJobs(ctx context.Context, batchSize int, perHostCap int) ([]venue.CrawlJob, error)
	CompleteJob(ctx context.Context, jobID int64, ok bool, reason venue.Reason) error
	JobStatus(ctx context.Context, jobID int64) (venue.CrawlJob, error)
	QueueDepth(ctx context.Context) (map[venue.JobState]int, error)
	ReapStuckJobs(ctx context.Context, threshold time.Duration, maxReaps int) (int, error)
}

// Queue is the C2 Job Queue.
type Queue struct {
	store Store

	mu      sync.Mutex
	recent  map[string]dedupEntry // venue id -> most recent pending enqueue
}

type dedupEntry struct {
	jobID  int64
	enqAt  time.Time
}

// New builds a Queue over the given Store.
func New(s Store) *Queue {
	return &Queue{store: s, recent: make(map[string]dedupEntry)}
}

// Enqueue inserts a pending job for venueID. A background enqueue arriving
// within dedupWindow of an existing pending job for the same venue returns
// the existing job id instead of creating a duplicate row; realtime
// enqueues always create a new job since a query response needs its own
// job_id to poll.
func (q *Queue) Enqueue(ctx context.Context, venueID string, mode venue.JobMode, priority int) (int64, error) {
	if mode == venue.ModeRealtime && priority < venue.PriorityFloor {
		priority = venue.PriorityFloor
	}
	if mode == venue.ModeBackground && priority > backgroundPriorityCeiling {
		priority = backgroundPriorityCeiling
	}

	if mode == venue.ModeBackground {
		q.mu.Lock()
		if entry, ok := q.recent[venueID]; ok && time.Since(entry.enqAt) < dedupWindow {
			q.mu.Unlock()
			return entry.jobID, nil
		}
		q.mu.Unlock()
	}

	id, err := q.store.EnqueueJob(ctx, venueID, mode, priority)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", venueID, err)
	}

	q.mu.Lock()
	q.recent[venueID] = dedupEntry{jobID: id, enqAt: time.Now()}
	q.mu.Unlock()

	return id, nil
}

// Claim dequeues up to batchSize pending jobs under the given per-host cap.
func (q *Queue) Claim(ctx context.Context, batchSize, perHostCap int) ([]venue.CrawlJob, error) {
	jobs, err := q.store.ClaimJobs(ctx, batchSize, perHostCap)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	return jobs, nil
}

// Complete records a job's terminal state.
func (q *Queue) Complete(ctx context.Context, jobID int64, ok bool, reason venue.Reason) error {
	if err := q.store.CompleteJob(ctx, jobID, ok, reason); err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	return nil
}

// Status returns one job's current state.
func (q *Queue) Status(ctx context.Context, jobID int64) (venue.CrawlJob, error) {
	return q.store.JobStatus(ctx, jobID)
}

// Depth returns counts of jobs by state, for health endpoints.
func (q *Queue) Depth(ctx context.Context) (map[venue.JobState]int, error) {
	return q.store.QueueDepth(ctx)
}

// Reap moves running jobs stuck past threshold back to pending, or to
// fail after maxReaps prior reap attempts.
func (q *Queue) Reap(ctx context.Context, threshold time.Duration, maxReaps int) (int, error) {
	return q.store.ReapStuckJobs(ctx, threshold, maxReaps)
}
