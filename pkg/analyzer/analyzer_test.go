package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtriage/sentryd/pkg/job"
	"github.com/mailtriage/sentryd/pkg/orchestrator"
	"github.com/mailtriage/sentryd/pkg/verdict"
)

func TestStatic_SpawnsExactlyTaskCount(t *testing.T) {
	j := job.New(1, []byte("s\n"), 64)
	a := &Static{AnalyzerName: "static", TaskCount: 4}
	done := orchestrator.Run(j, j, []orchestrator.Analyzer{a})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}

	d := j.Snapshot()
	require.NotNil(t, d.TargetResultCount)
	assert.Equal(t, int64(4), *d.TargetResultCount)
	assert.Len(t, d.Results, 4)
}

func TestStatic_CustomProduceIsUsed(t *testing.T) {
	j := job.New(2, []byte("s\n"), 64)
	a := &Static{
		AnalyzerName: "static",
		TaskCount:    2,
		Produce:      func(i int) verdict.Verdict { return verdict.Verdict{Kind: "custom", Value: i * 10} },
	}
	done := orchestrator.Run(j, j, []orchestrator.Analyzer{a})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}

	d := j.Snapshot()
	var values []int
	for _, r := range d.Results {
		assert.Equal(t, "custom", r.Verdict.Kind)
		values = append(values, r.Verdict.Value.(int))
	}
	assert.ElementsMatch(t, []int{0, 10}, values)
}

func TestExpanding_GrowsPastInitialRegistration(t *testing.T) {
	j := job.New(3, []byte("s\n"), 64)
	a := &Expanding{AnalyzerName: "expanding"}
	done := orchestrator.Run(j, j, []orchestrator.Analyzer{a})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}

	d := j.Snapshot()
	require.NotNil(t, d.TargetResultCount)
	assert.Equal(t, int64(3), *d.TargetResultCount)
	assert.Len(t, d.Results, 3)
}

func TestFeedAndEntity_InvestigatesEveryEmittedEntity(t *testing.T) {
	j := job.New(4, []byte("s\n"), 64)
	feed := &Feed{AnalyzerName: "feed", Entities: []string{"alice", "bob", "carol"}}
	consumer := &Entity{AnalyzerName: "entity", ExpectedEntities: 3}
	done := orchestrator.Run(j, j, []orchestrator.Analyzer{feed, consumer})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}

	d := j.Snapshot()
	var investigated []string
	for _, r := range d.Results {
		if r.Verdict.Kind == "investigation" {
			investigated = append(investigated, r.Verdict.Value.(string))
		}
	}
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, investigated)
}
