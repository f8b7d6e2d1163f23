// Package pipeline implements the typed multi-stage fan-out described in
// spec.md §4.2: a pipeline is a sequence of stages, each running its task
// factories concurrently over the previous stage's aggregated output, then
// folding their results into the input of the next stage. Types are erased
// internally (every stage is stored as a closure over `any`) but the public
// constructors — OnceRoot, NewOnce/NextOnce, NewList/NextList — are fully
// generic, so a caller building a chain gets a compile error if adjacent
// stages don't line up, never a runtime type assertion panic.
package pipeline

import (
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/mailtriage/sentryd/pkg/command"
	"github.com/mailtriage/sentryd/pkg/metrics"
)

// stage is one pipeline stage's runtime representation: run a taskCount-wide
// fan-out over the run context and the previous stage's erased output,
// producing this stage's erased aggregated output. label identifies the
// stage for PipelineTaskDuration; it is the stage's position in the chain,
// assigned when it is appended.
type stage[C any] struct {
	taskCount int
	label     string
	run       func(ctx C, in any, onTaskDone func()) (any, error)
}

// Pipeline is a linear chain of stages whose current aggregated output type
// is Out. C is the per-run context type threaded through every task; it is
// opaque to the pipeline itself (typically a small struct an analyzer
// defines bundling its command handle, the email, and whatever else its
// tasks need).
type Pipeline[C, Out any] struct {
	stages []stage[C]
	limit  int
}

// OnceRoot begins a pipeline with a single root task that takes only the
// run context — there is no previous stage to supply an input.
func OnceRoot[C, Out any](f func(ctx C) (Out, error)) *Pipeline[C, Out] {
	const label = "0"
	return &Pipeline[C, Out]{
		stages: []stage[C]{{
			taskCount: 1,
			label:     label,
			run: func(ctx C, _ any, onTaskDone func()) (any, error) {
				timer := metrics.NewTimer()
				out, err := runTask(func() (Out, error) { return f(ctx) })
				timer.ObserveDurationVec(metrics.PipelineTaskDuration, label)
				if err == nil {
					onTaskDone()
				}
				return out, err
			},
		}},
	}
}

// OnceStage is a single-task stage builder for use with NextOnce.
type OnceStage[C, In, Out any] struct {
	f func(in In, ctx C) (Out, error)
}

// NewOnce builds a single-task stage: one task consuming the previous
// stage's output directly (no fan-out, no aggregation beyond pass-through).
func NewOnce[C, In, Out any](f func(in In, ctx C) (Out, error)) *OnceStage[C, In, Out] {
	return &OnceStage[C, In, Out]{f: f}
}

// NextOnce appends a single-task stage to p. The compiler enforces that
// the stage's In type matches p's current Out.
func NextOnce[C, In, Out any](p *Pipeline[C, In], s *OnceStage[C, In, Out]) *Pipeline[C, Out] {
	label := strconv.Itoa(len(p.stages))
	return appendStage[C, In, Out](p, stage[C]{
		taskCount: 1,
		label:     label,
		run: func(ctx C, in any, onTaskDone func()) (any, error) {
			typedIn := in.(In)
			timer := metrics.NewTimer()
			out, err := runTask(func() (Out, error) { return s.f(typedIn, ctx) })
			timer.ObserveDurationVec(metrics.PipelineTaskDuration, label)
			if err == nil {
				onTaskDone()
			}
			return out, err
		},
	})
}

// NextFn is sugar for NextOnce(p, NewOnce(f)).
func NextFn[C, In, Out any](p *Pipeline[C, In], f func(in In, ctx C) (Out, error)) *Pipeline[C, Out] {
	return NextOnce(p, NewOnce(f))
}

// ListStage is a multi-task stage builder for use with NextList: every
// task shares the same In/Out signature and the stage aggregates their
// outputs into an ordered []Out, preserving registration order regardless
// of completion order.
type ListStage[C, In, Out any] struct {
	tasks []func(in In, ctx C) (Out, error)
}

// NewList begins an empty list stage; chain With to add tasks.
func NewList[C, In, Out any]() *ListStage[C, In, Out] {
	return &ListStage[C, In, Out]{}
}

// With appends one more parallel task to the stage.
func (s *ListStage[C, In, Out]) With(f func(in In, ctx C) (Out, error)) *ListStage[C, In, Out] {
	s.tasks = append(s.tasks, f)
	return s
}

// NextList appends s as the next stage of p, aggregating every task's
// output into p's next input type []Out.
func NextList[C, In, Out any](p *Pipeline[C, In], s *ListStage[C, In, Out]) *Pipeline[C, []Out] {
	tasks := s.tasks
	limit := p.limit
	label := strconv.Itoa(len(p.stages))
	return appendStage[C, In, []Out](p, stage[C]{
		taskCount: len(tasks),
		label:     label,
		run: func(ctx C, in any, onTaskDone func()) (any, error) {
			typedIn := in.(In)
			outs := make([]Out, len(tasks))
			var g errgroup.Group
			if limit > 0 {
				g.SetLimit(limit)
			}
			for i, t := range tasks {
				i, t := i, t
				g.Go(func() error {
					timer := metrics.NewTimer()
					out, err := runTask(func() (Out, error) { return t(typedIn, ctx) })
					timer.ObserveDurationVec(metrics.PipelineTaskDuration, label)
					if err != nil {
						return err
					}
					outs[i] = out
					onTaskDone()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
			return outs, nil
		},
	})
}

func appendStage[C, In, Out any](p *Pipeline[C, In], st stage[C]) *Pipeline[C, Out] {
	return &Pipeline[C, Out]{
		stages: append(append([]stage[C](nil), p.stages...), st),
		limit:  p.limit,
	}
}

// SetConcurrencyLimit caps how many tasks within a single stage run at
// once. Zero (the default) means unbounded — every task in a stage starts
// immediately. Must be called before the stage it should apply to is
// appended; it affects NextList stages appended afterward.
func (p *Pipeline[C, Out]) SetConcurrencyLimit(n int) *Pipeline[C, Out] {
	p.limit = n
	return p
}

// TotalTaskCount returns the sum of task counts across every stage,
// computed from the chain as built so far. This is the number
// AnalysisCommand.SpawnPipeline adds to its counters.
func (p *Pipeline[C, Out]) TotalTaskCount() int {
	n := 0
	for _, st := range p.stages {
		n += st.taskCount
	}
	return n
}

// Run executes every stage in sequence, feeding each stage's aggregated
// output to the next as an opaque handle, and calling onTaskDone once per
// completed leaf task (success only — a task error fails its whole stage
// and short-circuits the remaining chain, matching "any panic in a task
// fails the stage with an Error event" from spec.md §4.2).
func (p *Pipeline[C, Out]) Run(ctx C, onTaskDone func()) (Out, error) {
	var cur any
	for _, st := range p.stages {
		out, err := st.run(ctx, cur, onTaskDone)
		if err != nil {
			var zero Out
			return zero, err
		}
		cur = out
	}
	result, _ := cur.(Out)
	return result, nil
}

// Bind fixes ctx so the pipeline can be driven without exposing its type
// parameters — the shape AnalysisCommand.SpawnPipeline needs.
func (p *Pipeline[C, Out]) Bind(ctx C) command.PipelineRunner {
	return &boundPipeline[C, Out]{p: p, ctx: ctx}
}

type boundPipeline[C, Out any] struct {
	p   *Pipeline[C, Out]
	ctx C
}

func (b *boundPipeline[C, Out]) TotalTaskCount() int { return b.p.TotalTaskCount() }

func (b *boundPipeline[C, Out]) Run(onTaskDone func()) error {
	_, err := b.p.Run(b.ctx, onTaskDone)
	return err
}

// runTask invokes f, converting any panic into an error so the caller can
// fail just the owning stage rather than crash the process.
func runTask[Out any](f func() (Out, error)) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: task panicked: %v", r)
		}
	}()
	return f()
}
