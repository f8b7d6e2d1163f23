package pipeline

import (
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runCtx struct {
	seed int
}

func TestPipeline_SingleStageRoot(t *testing.T) {
	p := OnceRoot(func(ctx runCtx) (int, error) {
		return ctx.seed * 2, nil
	})

	assert.Equal(t, 1, p.TotalTaskCount())

	var done int32
	out, err := p.Run(runCtx{seed: 5}, func() { atomic.AddInt32(&done, 1) })
	require.NoError(t, err)
	assert.Equal(t, 10, out)
	assert.Equal(t, int32(1), done)
}

func TestPipeline_ChainedStages(t *testing.T) {
	p := OnceRoot(func(ctx runCtx) (int, error) {
		return ctx.seed, nil
	})
	p2 := NextFn(p, func(in int, ctx runCtx) (string, error) {
		return fmt.Sprintf("v%d", in+1), nil
	})

	assert.Equal(t, 2, p2.TotalTaskCount())

	var done int32
	out, err := p2.Run(runCtx{seed: 9}, func() { atomic.AddInt32(&done, 1) })
	require.NoError(t, err)
	assert.Equal(t, "v10", out)
	assert.Equal(t, int32(2), done)
}

func TestPipeline_ListStageAggregatesInOrder(t *testing.T) {
	root := OnceRoot(func(ctx runCtx) (int, error) { return ctx.seed, nil })

	list := NewList[runCtx, int, int]()
	for i := 1; i <= 5; i++ {
		i := i
		list = list.With(func(in int, ctx runCtx) (int, error) {
			return in + i, nil
		})
	}
	p := NextList(root, list)

	assert.Equal(t, 6, p.TotalTaskCount())

	var done int32
	out, err := p.Run(runCtx{seed: 100}, func() { atomic.AddInt32(&done, 1) })
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, []int{101, 102, 103, 104, 105}, out)
	assert.Equal(t, int32(6), done)
}

func TestPipeline_ThreeStageChainWithFinalList(t *testing.T) {
	root := OnceRoot(func(ctx runCtx) (int, error) { return ctx.seed, nil })
	doubled := NextFn(root, func(in int, ctx runCtx) (int, error) { return in * 2, nil })

	list := NewList[runCtx, int, string]().
		With(func(in int, ctx runCtx) (string, error) { return fmt.Sprintf("a%d", in), nil }).
		With(func(in int, ctx runCtx) (string, error) { return fmt.Sprintf("b%d", in), nil })
	final := NextList(doubled, list)

	assert.Equal(t, 4, final.TotalTaskCount())

	out, err := final.Run(runCtx{seed: 3}, func() {})
	require.NoError(t, err)
	sorted := append([]string(nil), out...)
	sort.Strings(sorted)
	assert.Equal(t, []string{"a6", "b6"}, sorted)
}

func TestPipeline_TaskErrorFailsStageAndShortCircuits(t *testing.T) {
	root := OnceRoot(func(ctx runCtx) (int, error) { return ctx.seed, nil })
	list := NewList[runCtx, int, int]().
		With(func(in int, ctx runCtx) (int, error) { return in, nil }).
		With(func(in int, ctx runCtx) (int, error) { return 0, fmt.Errorf("boom") })
	stage2 := NextList(root, list)
	reached := false
	final := NextFn(stage2, func(in []int, ctx runCtx) (int, error) {
		reached = true
		return len(in), nil
	})

	_, err := final.Run(runCtx{seed: 1}, func() {})
	require.Error(t, err)
	assert.False(t, reached, "a later stage must not run after an earlier one fails")
}

func TestPipeline_TaskPanicIsConvertedToError(t *testing.T) {
	p := OnceRoot(func(ctx runCtx) (int, error) {
		panic("kaboom")
	})
	_, err := p.Run(runCtx{}, func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestPipeline_Bind_SatisfiesPipelineRunner(t *testing.T) {
	p := OnceRoot(func(ctx runCtx) (int, error) { return 1, nil })
	list := NewList[runCtx, int, int]().
		With(func(in int, ctx runCtx) (int, error) { return in, nil }).
		With(func(in int, ctx runCtx) (int, error) { return in, nil })
	full := NextList(p, list)

	runner := full.Bind(runCtx{seed: 7})
	assert.Equal(t, 3, runner.TotalTaskCount())

	var done int
	err := runner.Run(func() { done++ })
	require.NoError(t, err)
	assert.Equal(t, 3, done)
}

func TestPipeline_ConcurrencyLimitStillCompletesAll(t *testing.T) {
	root := OnceRoot(func(ctx runCtx) (int, error) { return 0, nil })
	list := NewList[runCtx, int, int]()
	for i := 0; i < 8; i++ {
		list = list.With(func(in int, ctx runCtx) (int, error) { return 1, nil })
	}
	p := NextList(root.SetConcurrencyLimit(2), list)

	out, err := p.Run(runCtx{}, func() {})
	require.NoError(t, err)
	assert.Len(t, out, 8)
}
