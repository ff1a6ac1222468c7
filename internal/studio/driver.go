package studio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/crystaldolphin/canvasagent/internal/agent"
	"github.com/crystaldolphin/canvasagent/internal/bus"
	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/media"
	"github.com/crystaldolphin/canvasagent/internal/plan"
)

// Decider resolves one decision cycle. *agent.Engine implements it.
type Decider interface {
	Decide(ctx context.Context, c agent.GenerationContext) (agent.Decision, error)
}

// ToolCaller invokes a remote tool. *mcp.Client implements it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolResult, error)
}

// State is the lifecycle position of a Driver.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Report summarises a batch run.
type Report struct {
	// Plan is the plan positioned at the last unit attempted.
	Plan plan.ExecutionPlan
	// Observed lists every unit position the driver moved through, in order.
	Observed []int
	Items    []media.Item
	Results  []mcp.ToolResult
	Failures []UnitFailure
	State    State
}

// DriverOptions configure a Driver.
type DriverOptions struct {
	SessionID string
	// MaxSteps caps the number of units run; zero means no cap.
	MaxSteps int
}

// Driver executes the units of one multi-unit plan in order. Failed units
// are recorded and skipped; the plan position always advances. A Driver
// runs once.
type Driver struct {
	decider Decider
	tools   ToolCaller
	gallery media.Gallery
	events  bus.Bus
	opts    DriverOptions
	tracer  trace.Tracer

	mu    sync.Mutex
	state State
}

func NewDriver(decider Decider, tools ToolCaller, gallery media.Gallery, events bus.Bus, opts DriverOptions) *Driver {
	if events == nil {
		events = bus.Discard{}
	}
	return &Driver{
		decider: decider,
		tools:   tools,
		gallery: gallery,
		events:  events,
		opts:    opts,
		tracer:  otel.Tracer("github.com/crystaldolphin/canvasagent/internal/studio"),
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run drives first.Plan to completion. first is the decision that produced
// the plan; its tool call is unit 1. Later units are resolved through the
// decider with contexts derived from base.
//
// Cancelling ctx lets the unit in flight finish and suppresses the next one.
// The returned error is non-nil only when the driver faulted.
func (d *Driver) Run(ctx context.Context, base agent.GenerationContext, first agent.Decision) (Report, error) {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return Report{State: d.state}, ErrDriverUsed
	}
	d.state = StateRunning
	d.mu.Unlock()

	if first.Plan == nil {
		d.setState(StateFaulted)
		return Report{State: StateFaulted}, fmt.Errorf("studio: decision carries no plan")
	}
	p := first.Plan.At(1)
	limit := p.Total
	if d.opts.MaxSteps > 0 && limit > d.opts.MaxSteps {
		limit = d.opts.MaxSteps
	}

	ctx, span := d.tracer.Start(ctx, "studio.batch", trace.WithAttributes(
		attribute.String("session.id", d.opts.SessionID),
		attribute.String("plan.type", string(p.Type)),
		attribute.Int("plan.total", p.Total),
	))
	defer span.End()

	report := Report{Plan: p}
	start := d.event(bus.KindPlanStarted, p)
	start.Message = p.Description
	d.events.Publish(start)
	slog.Info("studio: batch started", "session", d.opts.SessionID, "type", p.Type, "total", p.Total)

	var prev *media.Reference
	for unit := 1; unit <= limit; unit++ {
		if err := ctx.Err(); err != nil {
			return d.fault(span, &report, err, bus.KindPlanCancelled)
		}
		report.Plan = p.At(unit)
		report.Observed = append(report.Observed, unit)
		d.events.Publish(d.event(bus.KindUnitStarted, report.Plan))

		out, err := d.runUnit(ctx, base, report.Plan, unit, prev, first)
		if err != nil {
			if fatal(err) {
				return d.fault(span, &report, err, bus.KindPlanCancelled)
			}
			f := UnitFailure{Unit: unit, Tool: out.tool, Err: err}
			report.Failures = append(report.Failures, f)
			slog.Warn("studio: batch unit failed", "session", d.opts.SessionID, "unit", unit, "total", p.Total, "tool", out.tool, "err", err)
			ev := d.event(bus.KindUnitFailed, report.Plan)
			ev.Tool = out.tool
			ev.Message = err.Error()
			d.events.Publish(ev)
			continue
		}

		report.Results = append(report.Results, out.result)
		report.Items = append(report.Items, out.item)
		ref := out.item.Reference()
		prev = &ref

		ev := d.event(bus.KindUnitCompleted, report.Plan)
		ev.Tool = out.tool
		ev.MediaURL = out.item.URL
		ev.ItemID = out.item.ID
		d.events.Publish(ev)
	}

	if limit < p.Total {
		return d.fault(span, &report, fmt.Errorf("%w: %d units requested, limit %d", ErrStepLimit, p.Total, limit), bus.KindPlanCancelled)
	}

	report.State = StateCompleted
	d.setState(StateCompleted)
	done := d.event(bus.KindPlanCompleted, report.Plan)
	done.Message = fmt.Sprintf("%d of %d produced", len(report.Items), p.Total)
	d.events.Publish(done)
	span.SetAttributes(attribute.Int("plan.produced", len(report.Items)))
	slog.Info("studio: batch completed", "session", d.opts.SessionID, "produced", len(report.Items), "failed", len(report.Failures))
	return report, nil
}

type unitOutcome struct {
	tool   string
	item   media.Item
	result mcp.ToolResult
}

// runUnit resolves and executes one unit. Its calls ignore cancellation of
// ctx so an in-flight unit always completes.
func (d *Driver) runUnit(ctx context.Context, base agent.GenerationContext, p plan.ExecutionPlan, unit int, prev *media.Reference, first agent.Decision) (unitOutcome, error) {
	ctx, span := d.tracer.Start(context.WithoutCancel(ctx), "studio.unit", trace.WithAttributes(attribute.Int("plan.unit", unit)))
	defer span.End()

	var out unitOutcome
	dec := first
	if unit > 1 {
		var err error
		dec, err = d.decider.Decide(ctx, base.ForUnit(p, unit, prev))
		if err != nil {
			return out, fmt.Errorf("resolve unit: %w", err)
		}
	}
	if len(dec.ToolCalls) == 0 {
		return out, errNoToolCall
	}
	call := dec.ToolCalls[0]
	out.tool = call.Name
	span.SetAttributes(attribute.String("tool.name", call.Name))

	result, err := d.tools.CallTool(ctx, call.Name, call.Args)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	ref, ok := media.Extract(result)
	if !ok {
		return out, errNoMedia
	}
	item := media.NewItem(d.opts.SessionID, call.Name, ref)
	if err := d.gallery.Add(ctx, item); err != nil {
		return out, fmt.Errorf("commit gallery item: %w", err)
	}
	out.item = item
	out.result = result
	return out, nil
}

func (d *Driver) fault(span trace.Span, r *Report, err error, kind bus.Kind) (Report, error) {
	r.State = StateFaulted
	d.setState(StateFaulted)
	span.SetStatus(codes.Error, err.Error())
	ev := d.event(kind, r.Plan)
	ev.Message = err.Error()
	d.events.Publish(ev)
	slog.Warn("studio: batch faulted", "session", d.opts.SessionID, "current", r.Plan.Current, "total", r.Plan.Total, "err", err)
	return *r, err
}

func (d *Driver) event(kind bus.Kind, p plan.ExecutionPlan) bus.Event {
	ev := bus.NewEvent(kind, d.opts.SessionID)
	ev.Current = p.Current
	ev.Total = p.Total
	return ev
}
