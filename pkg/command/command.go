// Package command implements AnalysisCommand, the per-analyzer handle
// described in spec.md §4.3: it lets an analyzer spawn tasks and pipelines,
// tracks the running total of expected verdicts against the number still
// outstanding, and emits the bus events (ExpandedResultCount, Progress,
// AnalysisDone) that the Job's collector turns into aggregate state.
package command

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mailtriage/sentryd/pkg/bus"
	"github.com/mailtriage/sentryd/pkg/metrics"
	"github.com/mailtriage/sentryd/pkg/verdict"
)

// Bus is the slice of Job behavior an AnalysisCommand needs: publish onto
// the job's event bus, read back a consistent snapshot of results so far,
// and subscribe to the live stream. pkg/job's Job satisfies this
// structurally; the interface lives here, not there, so command never
// imports job and the two packages can't cycle.
type Bus interface {
	Publish(ev bus.Event)
	ResultsSnapshot() []verdict.Result
	Subscribe() (uuid.UUID, <-chan bus.Event, func())
}

// PipelineRunner is the non-generic view of a pipeline.Pipeline[C] that
// SpawnPipeline needs: its precomputed task count, and a way to run it that
// reports each leaf task's completion without routing it through Result.
// pipeline.Pipeline exposes a Bind method returning this interface, which is
// why pipeline imports command and not the reverse.
type PipelineRunner interface {
	TotalTaskCount() int
	Run(onTaskDone func()) error
}

// State is a read-only view of the Registering → Armed → Done progression
// described in spec.md §4.3. It is derived from the command's atomics, not
// separately tracked, so it can never drift from the counters it describes.
type State int

const (
	StateRegistering State = iota
	StateArmed
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateArmed:
		return "armed"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Setup is what an analyzer's Validate call hands back to the orchestrator:
// the expected verdict count as of the end of synchronous registration.
type Setup struct {
	ExpectedVerdictCount int64
}

// AnalysisCommand is the per-analyzer handle bound to one Job's bus. The
// zero value is not usable; construct with New.
type AnalysisCommand struct {
	name string
	bus  Bus

	totalResultCount atomic.Int64
	remainingTasks   atomic.Int64
	validated        atomic.Bool
	doneEmitted      atomic.Bool
}

// New creates a command for analyzer name bound to b. The caller (the
// Orchestrator) must call Validate exactly once after registering the
// analyzer's initial work.
func New(name string, b Bus) *AnalysisCommand {
	metrics.AnalyzersActive.Inc()
	return &AnalysisCommand{name: name, bus: b}
}

// Name returns the analyzer name this command is bound to.
func (c *AnalysisCommand) Name() string { return c.name }

// State reports the command's current position in its lifecycle.
func (c *AnalysisCommand) State() State {
	if c.doneEmitted.Load() {
		return StateDone
	}
	if c.validated.Load() {
		return StateArmed
	}
	return StateRegistering
}

// TotalResultCount returns the monotonically increasing expected-verdict
// total this command has contributed.
func (c *AnalysisCommand) TotalResultCount() int64 { return c.totalResultCount.Load() }

// RemainingTasks returns the number of outstanding spawned units.
func (c *AnalysisCommand) RemainingTasks() int64 { return c.remainingTasks.Load() }

// Result publishes v as a Progress event attributed to this analyzer,
// decrements the outstanding task count, and emits AnalysisDone if that
// was the last one and the command has already been validated.
func (c *AnalysisCommand) Result(v verdict.Verdict) {
	r := verdict.NewResult(c.name, v)
	metrics.VerdictsEmittedTotal.WithLabelValues(c.name, v.Kind).Inc()
	c.bus.Publish(bus.NewProgress(r))
	c.remainingTasks.Add(-1)
	c.checkDone()
}

// SubmitEntity is a convenience wrapper publishing v as an "entity" kind
// verdict, the conventional cross-analyzer feedback signal.
func (c *AnalysisCommand) SubmitEntity(v any) {
	c.Result(verdict.Entity(v))
}

// Spawn schedules task on a fresh goroutine. Its count is added to both
// total_result_count and remaining_tasks immediately; if the command is
// already validated, the delta is announced as ExpandedResultCount.
// task's return value — whatever it computed, or a recovered panic
// converted to an "error" kind verdict — is passed through Result when it
// finishes, satisfying the "exactly one Progress event per spawn"
// invariant even when the task fails unexpectedly.
func (c *AnalysisCommand) Spawn(task func() verdict.Verdict) {
	c.totalResultCount.Add(1)
	c.remainingTasks.Add(1)
	if c.validated.Load() {
		c.bus.Publish(bus.NewExpandedResultCount(1))
	}
	go func() {
		c.Result(c.runTask(task))
	}()
}

func (c *AnalysisCommand) runTask(task func() verdict.Verdict) (v verdict.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = verdict.Error(fmt.Sprintf("panic: %v", r))
		}
	}()
	return task()
}

// SpawnPipeline adds p's precomputed task count to both counters atomically
// — announcing the delta if already validated — then runs the pipeline on
// a fresh goroutine. Per spec.md §4.2 and §9, a pipeline's stage
// transitions never call Result themselves; only its leaf tasks may choose
// to, explicitly, inside their bodies. The task-count accounting here is
// independent of that: remaining_tasks is decremented once per completed
// leaf task regardless of whether that task also happened to publish a
// verdict, so a pipeline that never calls Result still reaches
// AnalysisDone once every stage has run.
func (c *AnalysisCommand) SpawnPipeline(p PipelineRunner) {
	n := int64(p.TotalTaskCount())
	c.totalResultCount.Add(n)
	c.remainingTasks.Add(n)
	if n > 0 && c.validated.Load() {
		c.bus.Publish(bus.NewExpandedResultCount(n))
	}
	go func() {
		if err := p.Run(c.onPipelineTaskDone); err != nil {
			c.bus.Publish(bus.NewError(err.Error()))
		}
	}()
}

func (c *AnalysisCommand) onPipelineTaskDone() {
	c.remainingTasks.Add(-1)
	c.checkDone()
}

// CatchAllVerdicts returns a channel yielding every verdict of kind k
// already in the job's results log, followed by every future one observed
// on the bus, deduplicated by Result.ID. It closes when a closing event is
// observed on the bus. The returned channel must be drained until closed
// or the backing goroutine leaks.
func (c *AnalysisCommand) CatchAllVerdicts(kind string) <-chan verdict.Verdict {
	out := make(chan verdict.Verdict, bus.DefaultBufferSize)
	go func() {
		defer close(out)

		seen := make(map[uint64]bool)
		emit := func(r verdict.Result) {
			if r.Verdict.Kind != kind || seen[r.ID] {
				return
			}
			seen[r.ID] = true
			out <- r.Verdict
		}

		for _, r := range c.bus.ResultsSnapshot() {
			emit(r)
		}

		_, ch, cancel := c.bus.Subscribe()
		defer cancel()
		for ev := range ch {
			switch {
			case ev.Type() == bus.EventProgress:
				emit(ev.Result())
			case ev.IsLagged():
				// The subscriber's own buffer dropped events; the job's
				// results log never does, so re-walk it for anything
				// missed. Already-seen ids are skipped by emit.
				for _, r := range c.bus.ResultsSnapshot() {
					emit(r)
				}
			case ev.IsClosing():
				return
			}
		}
	}()
	return out
}

// Validate marks the end of synchronous registration. It must be called
// exactly once, as the analyzer's last action inside analyze. A second
// call is an unrecoverable invariant violation: it is reported as a fatal
// Error event instead of panicking, and returns a zero Setup.
func (c *AnalysisCommand) Validate() Setup {
	if !c.validated.CompareAndSwap(false, true) {
		c.bus.Publish(bus.NewError(fmt.Sprintf("analyzer %q called validate more than once", c.name)))
		return Setup{}
	}
	c.checkDone()
	return Setup{ExpectedVerdictCount: c.totalResultCount.Load()}
}

// checkDone emits AnalysisDone exactly once, the instant both conditions
// that license it — validated and no outstanding tasks — are simultaneously
// true. Guarding with a CAS latch rather than inspecting the specific
// decrement that reached zero makes the exactly-once guarantee independent
// of which caller (Result, a pipeline task, or Validate itself finding
// remaining_tasks already at zero) observes the condition first.
func (c *AnalysisCommand) checkDone() {
	if c.validated.Load() && c.remainingTasks.Load() == 0 {
		if c.doneEmitted.CompareAndSwap(false, true) {
			metrics.AnalyzersActive.Dec()
			c.bus.Publish(bus.NewAnalysisDone(c.name))
		}
	}
}
