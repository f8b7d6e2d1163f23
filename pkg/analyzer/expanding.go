package analyzer

import (
	"github.com/mailtriage/sentryd/pkg/command"
	"github.com/mailtriage/sentryd/pkg/verdict"
)

// Expanding spawns one task at registration that, after the command has
// been validated, spawns two more tasks of its own — grounding scenario
// S2, where the expected-verdict total grows after the orchestrator has
// already published the initial ExpandedResultCount.
type Expanding struct {
	AnalyzerName string
}

func (e *Expanding) Name() string { return e.AnalyzerName }

func (e *Expanding) Analyze(_ []byte, cmd *command.AnalysisCommand) command.Setup {
	validated := make(chan struct{})
	cmd.Spawn(func() verdict.Verdict {
		<-validated
		cmd.Spawn(func() verdict.Verdict { return verdict.Verdict{Kind: "expanded", Value: 1} })
		cmd.Spawn(func() verdict.Verdict { return verdict.Verdict{Kind: "expanded", Value: 2} })
		return verdict.Verdict{Kind: "expanded", Value: 0}
	})
	setup := cmd.Validate()
	close(validated)
	return setup
}
