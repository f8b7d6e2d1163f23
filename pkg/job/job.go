// Package job implements Job, the aggregate described in spec.md §4.4: the
// data model of §3 plus the collector loop that is the only writer of its
// results log, expected-verdict total, and state. Everything else — the
// AnalysisCommands an Orchestrator hands to analyzers — only ever publishes
// onto the Job's bus and reads back an immutable snapshot.
package job

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailtriage/sentryd/pkg/bus"
	"github.com/mailtriage/sentryd/pkg/metrics"
	"github.com/mailtriage/sentryd/pkg/verdict"
)

// subjectMaxBytes caps the derived Subject field so a pathological email
// with no line breaks can't blow up every JobDescription snapshot.
const subjectMaxBytes = 200

// State is a Job's coarse lifecycle position.
type State int

const (
	StateAnalyzing State = iota
	StateAnalyzed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAnalyzing:
		return "analyzing"
	case StateAnalyzed:
		return "analyzed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Description is the read-only snapshot exposed across the transport
// boundary, per spec.md §6.1. TargetResultCount is nil until the first
// ExpandedResultCount has been observed.
type Description struct {
	ID                uint64           `json:"id"`
	Subject           string           `json:"subject"`
	Error             string           `json:"error,omitempty"`
	Results           []verdict.Result `json:"results"`
	TargetResultCount *int64           `json:"target_result_count"`
	IsComplete        bool             `json:"is_complete"`
}

// Job holds one email's analysis state: the raw message, the append-only
// results log, the running expected-verdict total, and the per-job event
// bus every AnalysisCommand publishes onto. Construct with New; the
// registry is the only intended owner.
type Job struct {
	id        uint64
	email     []byte
	subject   string
	createdAt time.Time
	bus       *bus.Bus

	mu            sync.RWMutex
	state         State
	failureReason string
	results       []verdict.Result
	expectedTotal int64 // -1 sentinel: not yet known
	isComplete    bool
}

// New constructs a Job. bufSize sets the per-subscriber buffer of its bus
// (see bus.New); id is assigned by the caller (the registry, monotonically).
func New(id uint64, email []byte, bufSize int) *Job {
	return &Job{
		id:            id,
		email:         email,
		subject:       deriveSubject(email),
		createdAt:     time.Now(),
		bus:           bus.New(bufSize),
		state:         StateAnalyzing,
		expectedTotal: -1,
	}
}

func deriveSubject(email []byte) string {
	line := email
	for i, b := range email {
		if b == '\n' {
			line = email[:i]
			break
		}
	}
	s := string(line)
	for len(s) > 0 && (s[len(s)-1] == '\r' || s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	if len(s) > subjectMaxBytes {
		s = s[:subjectMaxBytes]
	}
	return s
}

// ID returns the job's registry-assigned identifier.
func (j *Job) ID() uint64 { return j.id }

// Email returns the raw message bytes the job was created from.
func (j *Job) Email() []byte { return j.email }

// Subject returns the subject line derived at construction time.
func (j *Job) Subject() string { return j.subject }

// CreatedAt returns when the job was constructed.
func (j *Job) CreatedAt() time.Time { return j.createdAt }

// Publish forwards ev to the job's bus. Satisfies command.Bus so an
// AnalysisCommand can treat a *Job as its publish target.
func (j *Job) Publish(ev bus.Event) { j.bus.Publish(ev) }

// Subscribe forwards to the job's bus. Satisfies command.Bus.
func (j *Job) Subscribe() (uuid.UUID, <-chan bus.Event, func()) { return j.bus.Subscribe() }

// ResultsSnapshot returns a copy of the results log as observed right now.
// Satisfies command.Bus; also the read path for Snapshot.
func (j *Job) ResultsSnapshot() []verdict.Result {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]verdict.Result, len(j.results))
	copy(out, j.results)
	return out
}

// IsComplete reports the completion latch.
func (j *Job) IsComplete() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.isComplete
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Snapshot builds the transport-facing Description under a single short
// read lock.
func (j *Job) Snapshot() Description {
	j.mu.RLock()
	defer j.mu.RUnlock()

	d := Description{
		ID:         j.id,
		Subject:    j.subject,
		Results:    append([]verdict.Result(nil), j.results...),
		IsComplete: j.isComplete,
	}
	if j.state == StateFailed {
		d.Error = j.failureReason
	}
	if j.expectedTotal >= 0 {
		t := j.expectedTotal
		d.TargetResultCount = &t
	}
	return d
}

// StartCollector is the Job's background collector task described in
// spec.md §4.6: it subscribes to the job's own bus and is the sole writer
// of results, expectedTotal, state, and the completion latch. analyzers is
// the initial set of outstanding analyzer names. The subscription is
// established synchronously, before StartCollector returns, so the caller
// (the Orchestrator) can safely dispatch analyzers immediately afterward
// knowing the bus already has its guaranteed first subscriber; the
// returned channel closes once the collector has processed a terminal
// event (every analyzer done, or an Error).
func (j *Job) StartCollector(analyzers []string) <-chan struct{} {
	outstanding := make(map[string]struct{}, len(analyzers))
	for _, a := range analyzers {
		outstanding[a] = struct{}{}
	}

	_, ch, cancel := j.bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		j.runCollector(ch, outstanding)
	}()
	return done
}

func (j *Job) runCollector(ch <-chan bus.Event, outstanding map[string]struct{}) {
	for ev := range ch {
		switch {
		case ev.Type() == bus.EventProgress:
			j.mu.Lock()
			j.results = append(j.results, ev.Result())
			j.mu.Unlock()

		case ev.Type() == bus.EventExpandedResultCount:
			j.mu.Lock()
			if j.expectedTotal < 0 {
				j.expectedTotal = 0
			}
			j.expectedTotal += ev.Delta()
			j.mu.Unlock()

		case ev.Type() == bus.EventAnalysisDone:
			delete(outstanding, ev.Analyzer())
			if len(outstanding) == 0 {
				j.finish()
				j.bus.Publish(bus.NewJobComplete())
				return
			}

		case ev.Type() == bus.EventError:
			j.fail(ev.Message())
			return

		case ev.IsLagged():
			// The collector must never miss an event — it is the sole
			// writer of the authoritative log everyone else reconciles
			// against. Losing one here means the job's own bus fell
			// behind its own consumer, which should only happen if the
			// per-job buffer is sized too small for the analyzer set.
			msg := fmt.Sprintf("collector missed %d events, job state is no longer authoritative", ev.Lagged())
			slog.Error("job collector lagged", "job_id", j.id, "missed", ev.Lagged())
			j.fail(msg)
			j.bus.Publish(bus.NewError(msg))
			return
		}
	}
}

func (j *Job) finish() {
	j.mu.Lock()
	j.isComplete = true
	j.state = StateAnalyzed
	j.mu.Unlock()
	j.recordTerminal("analyzed")
}

func (j *Job) fail(reason string) {
	j.mu.Lock()
	j.state = StateFailed
	j.failureReason = reason
	j.mu.Unlock()
	j.recordTerminal("failed")
}

func (j *Job) recordTerminal(outcome string) {
	metrics.JobsInFlight.Dec()
	metrics.JobsCompletedTotal.WithLabelValues(outcome).Inc()
	metrics.JobDuration.Observe(time.Since(j.createdAt).Seconds())
}
