// Package health implements Health/Queue Introspection (C7): worker
// liveness via heartbeats, plus a snapshot of queue depth, running
// count, and estimated wait, grounded on the teacher's ticker-based
// internal/pkg/cron.Service for the periodic-check shape.
package health

import (
	"sync"
	"time"

	"github.com/qs3c/repoanalyzer/internal/queue"
)

// WorkerStatus is one worker's last-known liveness state.
type WorkerStatus struct {
	WorkerID      string
	LastHeartbeat time.Time
	ActiveTasks   int
}

// Report is the full introspection payload for the control surface.
type Report struct {
	Workers        []WorkerStatus
	PendingCount   int
	RunningCount   int64
	MaxRunning     int
	EstimatedWaitS float64
}

// Registry tracks worker heartbeats in-process. A worker missing
// heartbeats beyond 2*interval is unhealthy and its tasks become
// orphan-recovery candidates (spec §4.3/§4.7).
type Registry struct {
	mu       sync.Mutex
	workers  map[string]*WorkerStatus
	interval time.Duration
	aq       *queue.AdmissionQueue
	meanStep time.Duration
}

func NewRegistry(aq *queue.AdmissionQueue, heartbeatInterval, meanStageDuration time.Duration) *Registry {
	return &Registry{
		workers:  make(map[string]*WorkerStatus),
		interval: heartbeatInterval,
		aq:       aq,
		meanStep: meanStageDuration,
	}
}

// Heartbeat records a liveness ping from a worker, along with how many
// tasks it currently has in flight.
func (r *Registry) Heartbeat(workerID string, activeTasks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[workerID] = &WorkerStatus{
		WorkerID:      workerID,
		LastHeartbeat: time.Now(),
		ActiveTasks:   activeTasks,
	}
}

// Unhealthy returns worker ids whose last heartbeat is older than 2H.
func (r *Registry) Unhealthy() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []string
	cutoff := time.Now().Add(-2 * r.interval)
	for id, w := range r.workers {
		if w.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

// Snapshot builds a Report combining live worker state and the
// Admission Queue's current view of the store.
func (r *Registry) Snapshot() (Report, error) {
	r.mu.Lock()
	workers := make([]WorkerStatus, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, *w)
	}
	r.mu.Unlock()

	qsnap, err := r.aq.Snapshot()
	if err != nil {
		return Report{}, err
	}

	position := len(qsnap.PendingTaskIDs)
	eta := float64(position) * r.meanStep.Seconds()

	return Report{
		Workers:        workers,
		PendingCount:   len(qsnap.PendingTaskIDs),
		RunningCount:   qsnap.RunningCount,
		MaxRunning:     qsnap.MaxRunning,
		EstimatedWaitS: eta,
	}, nil
}
