package analyzer

import (
	"github.com/mailtriage/sentryd/pkg/command"
	"github.com/mailtriage/sentryd/pkg/verdict"
)

// Feed is the producer half of scenario S3: it emits a fixed set of
// "entity" verdicts, each one a cross-analyzer feedback signal that an
// Entity analyzer elsewhere in the same job can react to.
type Feed struct {
	AnalyzerName string
	Entities     []string
}

func (f *Feed) Name() string { return f.AnalyzerName }

func (f *Feed) Analyze(_ []byte, cmd *command.AnalysisCommand) command.Setup {
	for _, name := range f.Entities {
		name := name
		cmd.Spawn(func() verdict.Verdict { return verdict.Entity(name) })
	}
	return cmd.Validate()
}

// Entity is the consumer half of scenario S3 described in spec.md §4.6:
// it joins the bus via CatchAllVerdicts("entity") and spawns one
// investigation task per entity it observes. Investigate, if set,
// computes the investigation's verdict; a nil Investigate yields a bare
// "investigation" kind verdict carrying the entity name.
//
// Watching the bus forever has no natural stopping point — nothing short
// of job termination tells an open-ended catch-all listener there will be
// no more entities, and waiting for job termination is circular (the job
// can't terminate until this analyzer reaches AnalysisDone). As a demo
// fixture this is sidestepped with ExpectedEntities: a single watcher
// task, counted at registration, consumes exactly that many entities —
// spawning one investigation per entity as it goes, each announced via
// the normal post-validate ExpandedResultCount path — then returns,
// letting AnalysisDone follow once those investigations complete. A
// production consumer would instead derive its stopping point from
// knowledge of its producers (e.g. their own AnalysisDone events).
type Entity struct {
	AnalyzerName     string
	ExpectedEntities int
	Investigate      func(name string) verdict.Verdict
}

func (e *Entity) Name() string { return e.AnalyzerName }

func (e *Entity) Analyze(_ []byte, cmd *command.AnalysisCommand) command.Setup {
	investigate := e.Investigate
	if investigate == nil {
		investigate = func(name string) verdict.Verdict {
			return verdict.Verdict{Kind: "investigation", Value: name}
		}
	}

	entities := cmd.CatchAllVerdicts(verdict.KindEntity)
	expected := e.ExpectedEntities

	cmd.Spawn(func() verdict.Verdict {
		seen := 0
		for seen < expected {
			v, ok := <-entities
			if !ok {
				break
			}
			name, _ := v.Value.(string)
			seen++
			cmd.Spawn(func() verdict.Verdict { return investigate(name) })
		}
		return verdict.Verdict{Kind: "watcher", Value: seen}
	})

	return cmd.Validate()
}
