// Package orchestrator implements the Orchestrator described in
// spec.md §4.6: given a Job and a set of analyzers, it starts the Job's
// collector, hands each analyzer a fresh AnalysisCommand bound to the
// job's bus, and publishes one combined ExpandedResultCount event once
// every analyzer has finished synchronous registration.
package orchestrator

import (
	"fmt"

	"github.com/mailtriage/sentryd/pkg/bus"
	"github.com/mailtriage/sentryd/pkg/command"
	"github.com/mailtriage/sentryd/pkg/verdict"
)

// Job is the slice of *job.Job behavior the Orchestrator needs: start its
// collector and publish onto its bus. The interface lives here, not in
// pkg/job, so orchestrator never imports job; *job.Job satisfies it
// structurally.
type Job interface {
	ID() uint64
	Email() []byte
	Publish(ev bus.Event)
	StartCollector(analyzers []string) <-chan struct{}
}

// CommandBus is the construction dependency command.New needs; *job.Job
// satisfies both Job and command.Bus, but keeping them separate lets a
// test fake each independently.
type CommandBus = command.Bus

// Analyzer is the contract spec.md §6 requires of every analyzer: a
// stable name, and a synchronous Analyze call that registers all initial
// work against cmd before returning the Setup from cmd.Validate().
type Analyzer interface {
	Name() string
	Analyze(email []byte, cmd *command.AnalysisCommand) command.Setup
}

// Orchestrator drives a fixed analyzer set against a Job. Construct with
// New; the analyzer set is fixed at construction and a zero value runs no
// analyzers.
type Orchestrator struct {
	analyzers []Analyzer
}

// New creates an Orchestrator that will run the given analyzers against
// whatever Job is passed to Run.
func New(analyzers []Analyzer) *Orchestrator {
	return &Orchestrator{analyzers: analyzers}
}

// Run executes spec.md §4.6 end to end: start the collector first (so the
// bus has a guaranteed live subscriber before any analyzer can publish),
// then register each analyzer sequentially, then publish the single
// combined initial ExpandedResultCount. It returns the channel the
// collector closes on job termination; callers that only need to fire
// analysis and move on can discard it.
func Run(j Job, b CommandBus, analyzers []Analyzer) <-chan struct{} {
	names := make([]string, len(analyzers))
	for i, a := range analyzers {
		names[i] = a.Name()
	}

	done := j.StartCollector(names)

	var total int64
	for _, a := range analyzers {
		cmd := command.New(a.Name(), b)
		setup := runAnalyzer(a, j.Email(), cmd, b)
		total += setup.ExpectedVerdictCount
	}

	j.Publish(bus.NewExpandedResultCount(total))

	return done
}

// runAnalyzer isolates one analyzer's synchronous Analyze call so a
// misbehaving analyzer (panicking before it reaches Validate) can't take
// the whole registration loop down with it. A panic here leaves cmd
// unvalidated, which the Job's collector would otherwise wait on forever
// for that analyzer's AnalysisDone. Per spec.md §7 a registration error is
// not fatal to the job: it is reported as a single Progress verdict with
// kind "error" attributed to this analyzer, followed immediately by a
// manual AnalysisDone for it, so the outstanding set still drains and
// sibling analyzers run to completion.
func runAnalyzer(a Analyzer, email []byte, cmd *command.AnalysisCommand, b CommandBus) (setup command.Setup) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("analyzer %q panicked during registration: %v", a.Name(), r)
			b.Publish(bus.NewProgress(verdict.NewResult(a.Name(), verdict.Error(msg))))
			b.Publish(bus.NewAnalysisDone(a.Name()))
		}
	}()
	return a.Analyze(email, cmd)
}

// Orchestrator.Run is the method form of the package-level Run, for
// callers already holding an Orchestrator built from a fixed analyzer
// set.
func (o *Orchestrator) Run(j Job, b CommandBus) <-chan struct{} {
	return Run(j, b, o.analyzers)
}
