// Package analyzer ships the illustrative analyzers described in
// SPEC_FULL.md §4.7: demo/test content exercising the orchestration core,
// explicitly not the production analyzer bodies spec.md §1 excludes
// (link reputation, DKIM/SPF/DMARC, NLP/OCR, Wikidata, Splunk). Each type
// here implements orchestrator.Analyzer.
package analyzer

import (
	"github.com/mailtriage/sentryd/pkg/command"
	"github.com/mailtriage/sentryd/pkg/verdict"
)

// Static spawns a fixed number of tasks at registration and validates
// immediately, grounding scenario S1 — the simplest possible analyzer
// shape, every unit of work known up front.
type Static struct {
	AnalyzerName string
	TaskCount    int
	// Produce computes the verdict for task index i. A nil Produce yields
	// a bare "static" kind verdict carrying i.
	Produce func(i int) verdict.Verdict
}

func (s *Static) Name() string { return s.AnalyzerName }

func (s *Static) Analyze(_ []byte, cmd *command.AnalysisCommand) command.Setup {
	produce := s.Produce
	if produce == nil {
		produce = func(i int) verdict.Verdict {
			return verdict.Verdict{Kind: "static", Value: i}
		}
	}
	for i := 0; i < s.TaskCount; i++ {
		i := i
		cmd.Spawn(func() verdict.Verdict { return produce(i) })
	}
	return cmd.Validate()
}
