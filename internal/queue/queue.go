// Package queue implements the Admission Queue (C2): a durable,
// store-backed FIFO of pending tasks with a global running-count cap.
//
// This replaces the teacher's internal/pkg/queue.Queue, whose Redis
// list was itself the source of truth for job order. Per the
// redesign flag on in-process-async-plus-external-broker designs,
// the Task Store is the order-of-record here; Redis is repurposed to
// a pure wake-up signal so idle drivers don't have to poll the store
// on a tight ticker.
package queue

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/repoanalyzer/internal/store"
)

const wakeChannel = "orch:admission:wake"

// Snapshot reports the queue's externally observable state (spec §4.2/§6).
type Snapshot struct {
	PendingTaskIDs []int64
	RunningCount   int64
	MaxRunning     int
}

// Position returns the 1-based queue position of taskID among pending
// tasks, or 0 if it is not pending.
func (s Snapshot) Position(taskID int64) int {
	for i, id := range s.PendingTaskIDs {
		if id == taskID {
			return i + 1
		}
	}
	return 0
}

// AdmissionQueue admits pending tasks strictly in FIFO order, never
// exceeding MaxRunning concurrently running tasks (the HARD CORE
// invariant of spec §4.2).
type AdmissionQueue struct {
	store      *store.Store
	redis      *redis.Client
	maxRunning int
}

func New(st *store.Store, rdb *redis.Client, maxRunning int) *AdmissionQueue {
	return &AdmissionQueue{store: st, redis: rdb, maxRunning: maxRunning}
}

// Wake publishes a wake-up signal so any driver blocked in Wait
// rechecks the store immediately. Called after CreateTask and after
// any task reaches a terminal status.
func (q *AdmissionQueue) Wake(ctx context.Context) {
	if q.redis == nil {
		return
	}
	q.redis.Publish(ctx, wakeChannel, "1")
}

// Snapshot reads the current queue state from the store.
func (q *AdmissionQueue) Snapshot() (Snapshot, error) {
	pending, err := q.store.ListPendingTaskIDs()
	if err != nil {
		return Snapshot{}, err
	}
	running, err := q.store.CountRunning()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{PendingTaskIDs: pending, RunningCount: running, MaxRunning: q.maxRunning}, nil
}

// TryAdmitNext attempts to admit exactly the head-of-queue pending
// task, never skipping ahead (spec §4.2's FIFO invariant). Returns the
// admitted task id and true on success, or false if nothing could be
// admitted (queue empty or at capacity).
func (q *AdmissionQueue) TryAdmitNext() (int64, bool, error) {
	snap, err := q.Snapshot()
	if err != nil {
		return 0, false, err
	}
	if len(snap.PendingTaskIDs) == 0 || snap.RunningCount >= int64(q.maxRunning) {
		return 0, false, nil
	}
	head := snap.PendingTaskIDs[0]
	admitted, err := q.store.TryAdmit(head, q.maxRunning)
	if err != nil {
		return 0, false, err
	}
	return head, admitted, nil
}

// Wait blocks until either a task is admitted or ctx is cancelled. It
// wakes on the Redis pub/sub signal but always falls back to a poll
// interval so a missed publish (e.g. Redis restart) never wedges the
// driver permanently.
func (q *AdmissionQueue) Wait(ctx context.Context, pollInterval time.Duration) (int64, bool, error) {
	if taskID, ok, err := q.TryAdmitNext(); err != nil || ok {
		return taskID, ok, err
	}

	var sub *redis.PubSub
	var woken <-chan *redis.Message
	if q.redis != nil {
		sub = q.redis.Subscribe(ctx, wakeChannel)
		woken = sub.Channel()
		defer sub.Close()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, false, ctx.Err()
		case <-woken:
		case <-ticker.C:
		}
		taskID, ok, err := q.TryAdmitNext()
		if err != nil || ok {
			return taskID, ok, err
		}
	}
}
