package studio

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/canvasagent/internal/agent"
	"github.com/crystaldolphin/canvasagent/internal/bus"
	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/media"
	"github.com/crystaldolphin/canvasagent/internal/plan"
)

func firstDecision(total int, typ plan.Type) agent.Decision {
	p := plan.ExecutionPlan{Current: 1, Total: total, Type: typ, Description: "batch"}
	return agent.Decision{
		ToolCalls: []agent.ToolCallIntent{{Name: "generate_image", Args: map[string]any{"unit": 1}}},
		Plan:      &p,
	}
}

func failUnits(units ...int) func(int, string, map[string]any) error {
	return func(_ int, _ string, args map[string]any) error {
		for _, u := range units {
			if unitOf(args) == u {
				return &mcp.ToolExecutionError{Tool: "generate_image", Attempts: 1, Err: errors.New("boom")}
			}
		}
		return nil
	}
}

func TestDriver_FailedUnitIsSkipped(t *testing.T) {
	tools := &fakeTools{fail: failUnits(3)}
	gallery := media.NewMemoryGallery()
	d := NewDriver(&unitDecider{}, tools, gallery, nil, DriverOptions{SessionID: "s"})

	report, err := d.Run(context.Background(), agent.GenerationContext{UserInput: "five cats"}, firstDecision(5, plan.BatchIndependent))
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, report.State)
	assert.Equal(t, StateCompleted, d.State())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, report.Observed)
	assert.Equal(t, 5, report.Plan.Current)
	assert.False(t, report.Plan.Continue)
	assert.Len(t, report.Items, 4)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 3, report.Failures[0].Unit)
	assert.Equal(t, "generate_image", report.Failures[0].Tool)

	items, err := gallery.List(context.Background(), "s")
	require.NoError(t, err)
	assert.Len(t, items, 4)
}

func TestDriver_ContinueFlagsPerUnit(t *testing.T) {
	dec := &unitDecider{}
	d := NewDriver(dec, &fakeTools{}, media.NewMemoryGallery(), nil, DriverOptions{})

	base := agent.GenerationContext{UserInput: "3 variations", PreviewImageURL: "https://x/base.png"}
	report, err := d.Run(context.Background(), base, firstDecision(3, plan.BatchVariations))
	require.NoError(t, err)
	require.Len(t, dec.contexts, 2, "unit 1 comes from the first decision")

	assert.Equal(t, 2, dec.contexts[0].Continuation.Unit)
	assert.True(t, dec.contexts[0].Continuation.Plan.Continue)
	assert.Equal(t, "Continue with step 2 of 3.", dec.contexts[0].UserInput)
	assert.Equal(t, 3, dec.contexts[1].Continuation.Plan.Current)
	assert.False(t, dec.contexts[1].Continuation.Plan.Continue)
	assert.Equal(t, "https://x/base.png", dec.contexts[1].PreviewImageURL, "variations keep the base image")
	assert.Len(t, report.Items, 3)
}

func TestDriver_PipelineThreadsLastSuccessfulResult(t *testing.T) {
	reasoner := &scriptedReasoner{replies: []agent.Reply{{
		Text: "Working through the steps.",
		Plan: &plan.ExecutionPlan{Current: 1, Total: 3, Type: plan.Pipeline, Steps: []plan.Step{
			{Step: 1, Tool: "remove_background"},
			{Step: 2, Tool: "blur_background"},
			{Step: 3, Tool: "enhance_image"},
		}},
	}}}
	engine := agent.NewEngine(reasoner, testRegistry(), agent.NewConversation(0), agent.NewPromptBuilder(""))

	base := agent.GenerationContext{
		UserInput:       "remove the background, then blur it, then enhance it",
		PreviewImageURL: "https://x/orig.png",
	}
	first, err := engine.Decide(context.Background(), base)
	require.NoError(t, err)
	require.NotNil(t, first.Plan)
	require.Len(t, first.ToolCalls, 1)

	tools := &fakeTools{fail: func(_ int, name string, _ map[string]any) error {
		if name == "blur_background" {
			return &mcp.ToolExecutionError{Tool: name, Attempts: 1, Err: errors.New("boom")}
		}
		return nil
	}}
	report, err := NewDriver(engine, tools, media.NewMemoryGallery(), nil, DriverOptions{}).Run(context.Background(), base, first)
	require.NoError(t, err)

	calls := tools.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "remove_background", calls[0].Name)
	assert.Equal(t, "https://x/orig.png", calls[0].Args["image"])
	assert.Equal(t, "https://cdn/r1.png", calls[1].Args["image"])
	assert.Equal(t, "enhance_image", calls[2].Name)
	assert.Equal(t, "https://cdn/r1.png", calls[2].Args["image"], "the failed unit is skipped over")
	assert.Len(t, report.Items, 2)
	assert.Equal(t, 1, reasoner.requestsLen(), "planned steps need no further reasoning")
}

func TestDriver_StepLimitFaults(t *testing.T) {
	tools := &fakeTools{}
	d := NewDriver(&unitDecider{}, tools, media.NewMemoryGallery(), nil, DriverOptions{MaxSteps: 2})

	report, err := d.Run(context.Background(), agent.GenerationContext{}, firstDecision(5, plan.BatchIndependent))
	require.ErrorIs(t, err, ErrStepLimit)
	assert.Equal(t, StateFaulted, report.State)
	assert.Equal(t, []int{1, 2}, report.Observed)
	assert.Len(t, tools.recorded(), 2)
}

func TestDriver_CancellationLetsUnitInFlightFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tools := &fakeTools{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	d := NewDriver(&unitDecider{}, tools, media.NewMemoryGallery(), nil, DriverOptions{})

	report, err := d.Run(ctx, agent.GenerationContext{}, firstDecision(4, plan.BatchIndependent))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFaulted, report.State)
	assert.Equal(t, []int{1, 2}, report.Observed)
	assert.Len(t, report.Items, 2, "unit 2 completes after cancellation")
	assert.Len(t, tools.recorded(), 2)
}

func TestDriver_ConnectionErrorFaults(t *testing.T) {
	tools := &fakeTools{fail: func(n int, _ string, _ map[string]any) error {
		if n == 2 {
			return &mcp.ConnectionError{Endpoint: "http://x", Err: errors.New("refused")}
		}
		return nil
	}}
	report, err := NewDriver(&unitDecider{}, tools, media.NewMemoryGallery(), nil, DriverOptions{}).
		Run(context.Background(), agent.GenerationContext{}, firstDecision(4, plan.BatchIndependent))

	var conn *mcp.ConnectionError
	require.ErrorAs(t, err, &conn)
	assert.Equal(t, StateFaulted, report.State)
	assert.Equal(t, []int{1, 2}, report.Observed)
}

func TestDriver_DecideErrorSkipsUnit(t *testing.T) {
	dec := &unitDecider{err: errors.New("llm down")}
	report, err := NewDriver(dec, &fakeTools{}, media.NewMemoryGallery(), nil, DriverOptions{}).
		Run(context.Background(), agent.GenerationContext{}, firstDecision(3, plan.BatchIndependent))
	require.NoError(t, err)
	assert.Len(t, report.Items, 1)
	assert.Len(t, report.Failures, 2)
	assert.Equal(t, []int{1, 2, 3}, report.Observed)
}

func TestDriver_RunsOnce(t *testing.T) {
	d := NewDriver(&unitDecider{}, &fakeTools{}, media.NewMemoryGallery(), nil, DriverOptions{})
	_, err := d.Run(context.Background(), agent.GenerationContext{}, firstDecision(2, plan.BatchIndependent))
	require.NoError(t, err)
	_, err = d.Run(context.Background(), agent.GenerationContext{}, firstDecision(2, plan.BatchIndependent))
	assert.ErrorIs(t, err, ErrDriverUsed)
}

func TestDriver_PublishesProgress(t *testing.T) {
	events := bus.NewEventBus(64)
	ch, unsubscribe := events.Subscribe("s")
	defer unsubscribe()

	tools := &fakeTools{fail: failUnits(2)}
	_, err := NewDriver(&unitDecider{}, tools, media.NewMemoryGallery(), events, DriverOptions{SessionID: "s"}).
		Run(context.Background(), agent.GenerationContext{}, firstDecision(2, plan.BatchIndependent))
	require.NoError(t, err)

	var kinds []bus.Kind
	for len(ch) > 0 {
		ev := <-ch
		kinds = append(kinds, ev.Kind)
		assert.Equal(t, 2, ev.Total)
	}
	assert.Equal(t, []bus.Kind{
		bus.KindPlanStarted,
		bus.KindUnitStarted, bus.KindUnitCompleted,
		bus.KindUnitStarted, bus.KindUnitFailed,
		bus.KindPlanCompleted,
	}, kinds)
}

func TestProperty_BatchProgress(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("position advances once per unit and failures only cost their own item", prop.ForAll(
		func(total int, mask []bool) bool {
			var failed []int
			for u := 1; u <= total; u++ {
				if mask[u-1] {
					failed = append(failed, u)
				}
			}
			tools := &fakeTools{fail: failUnits(failed...)}
			report, err := NewDriver(&unitDecider{}, tools, media.NewMemoryGallery(), nil, DriverOptions{}).
				Run(context.Background(), agent.GenerationContext{}, firstDecision(total, plan.BatchIndependent))
			if err != nil || report.State != StateCompleted {
				return false
			}
			for i, u := range report.Observed {
				if u != i+1 {
					return false
				}
			}
			return len(report.Observed) == total &&
				report.Plan.Current == total &&
				len(tools.recorded()) == total &&
				len(report.Items) == total-len(failed) &&
				len(report.Failures) == len(failed)
		},
		gen.IntRange(2, 8),
		gen.SliceOfN(8, gen.Bool()),
	))

	properties.TestingRun(t)
}
