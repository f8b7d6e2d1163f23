package job

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mailtriage/sentryd/pkg/bus"
	"github.com/mailtriage/sentryd/pkg/metrics"
)

// ErrNotFound is returned by Registry.Find when no job has the given id.
type ErrNotFound uint64

func (e ErrNotFound) Error() string { return fmt.Sprintf("job %d not found", uint64(e)) }

// Registry is the process-wide table of active jobs described in
// spec.md §4.5: a keyed collection plus its own broadcast channel for
// NewJob(Description) announcements, independent of any individual job's
// bus. Grounded on the same add/get/list/delete shape as a connection or
// session manager, generalized to a generic announcement feed instead of a
// second bespoke broadcaster.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[uint64]*Job
	nextID  atomic.Uint64
	newJobs *bus.Feed[Description]
	bufSize int
}

// NewRegistry creates an empty Registry. jobBufSize sets the per-subscriber
// buffer size of every job's own event bus (see bus.New); feedBufSize sets
// the buffer size of the registry's own NewJob announcement feed.
func NewRegistry(jobBufSize, feedBufSize int) *Registry {
	return &Registry{
		jobs:    make(map[uint64]*Job),
		newJobs: bus.NewFeed[Description](feedBufSize, nil),
		bufSize: jobBufSize,
	}
}

// AddJob creates a new Job for email, assigns it the next monotonic id,
// stores it, and announces it on the registry's NewJob feed.
func (r *Registry) AddJob(email []byte) *Job {
	id := r.nextID.Add(1)
	j := New(id, email, r.bufSize)

	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()

	metrics.JobsSubmittedTotal.Inc()
	metrics.JobsInFlight.Inc()

	r.newJobs.Publish(j.Snapshot())
	return j
}

// Find looks up a job by id.
func (r *Registry) Find(id uint64) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound(id)
	}
	return j, nil
}

// Jobs returns a snapshot slice of every tracked job.
func (r *Registry) Jobs() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	return out
}

// CompleteJob evicts a job from the registry, freeing it for garbage
// collection once nothing else holds a reference (its bus and goroutines
// must already have wound down). Eviction is optional bookkeeping, not
// part of a job's own lifecycle.
func (r *Registry) CompleteJob(id uint64) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// SubscribeEvents returns a channel of NewJob announcements, one per job
// added to the registry from this point on.
func (r *Registry) SubscribeEvents() (<-chan Description, func()) {
	return r.newJobs.Subscribe()
}
