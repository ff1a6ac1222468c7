// Package studio orchestrates chat turns: it asks the agent engine for a
// decision, executes the resulting tool calls and commits produced media to
// the gallery. Multi-unit plans are handed to a Driver.
package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/crystaldolphin/canvasagent/internal/agent"
	"github.com/crystaldolphin/canvasagent/internal/bus"
	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/media"
	"github.com/crystaldolphin/canvasagent/internal/plan"
	"github.com/crystaldolphin/canvasagent/internal/schema"
	"github.com/crystaldolphin/canvasagent/internal/session"
)

// ToolClient is the remote tool service as the studio uses it. *mcp.Client
// implements it.
type ToolClient interface {
	ToolCaller
	Connect(ctx context.Context) error
	DiscoverTools(ctx context.Context) ([]*mcp.ToolDescriptor, error)
}

// Options tune a Service.
type Options struct {
	MaxPlanSteps int
	HistoryLimit int
	// AuxTimeout bounds best-effort calls such as upload forwarding.
	AuxTimeout time.Duration
	// UploadTool receives uploaded files when the remote service offers it.
	UploadTool string
}

// ChatRequest is one user turn.
type ChatRequest struct {
	SessionID        string           `json:"sessionId,omitempty"`
	Message          string           `json:"message"`
	Params           agent.Parameters `json:"currentParams"`
	ReferenceImage   string           `json:"referenceImage,omitempty"`
	Operation        *agent.Operation `json:"aiOperation,omitempty"`
	PreviewImageURL  string           `json:"previewImageUrl,omitempty"`
	StructuredPrompt json.RawMessage  `json:"structuredPrompt,omitempty"`
	MaskData         string           `json:"maskData,omitempty"`
}

func (r ChatRequest) generationContext() agent.GenerationContext {
	return agent.GenerationContext{
		UserInput:        r.Message,
		Parameters:       r.Params,
		ReferenceImage:   r.ReferenceImage,
		Operation:        r.Operation,
		PreviewImageURL:  r.PreviewImageURL,
		StructuredPrompt: r.StructuredPrompt,
		MaskData:         r.MaskData,
	}
}

// ChatResponse is the outcome of one turn.
type ChatResponse struct {
	SessionID        string                 `json:"sessionId"`
	Message          string                 `json:"message"`
	ToolCalls        []agent.ToolCallIntent `json:"toolCalls"`
	ToolResults      []mcp.ToolResult       `json:"toolResults"`
	ParameterUpdates map[string]any         `json:"parameterUpdates,omitempty"`
	Plan             *plan.ExecutionPlan    `json:"execution_plan,omitempty"`
	Gallery          []media.Item           `json:"gallery,omitempty"`
	Degraded         bool                   `json:"degraded,omitempty"`
}

// Service runs chat turns against the remote tool service.
type Service struct {
	client   ToolClient
	tools    agent.ToolCatalog
	reasoner agent.Reasoner
	prompt   *agent.PromptBuilder
	gallery  media.Gallery
	sessions *session.Manager
	events   bus.Bus
	opts     Options
	tracer   trace.Tracer
}

func NewService(client ToolClient, tools agent.ToolCatalog, reasoner agent.Reasoner, prompt *agent.PromptBuilder,
	gallery media.Gallery, sessions *session.Manager, events bus.Bus, opts Options,
) *Service {
	if events == nil {
		events = bus.Discard{}
	}
	if opts.AuxTimeout <= 0 {
		opts.AuxTimeout = 5 * time.Second
	}
	return &Service{
		client:   client,
		tools:    tools,
		reasoner: reasoner,
		prompt:   prompt,
		gallery:  gallery,
		sessions: sessions,
		events:   events,
		opts:     opts,
		tracer:   otel.Tracer("github.com/crystaldolphin/canvasagent/internal/studio"),
	}
}

// Chat runs one turn. Turns of the same session are serialised.
//
// Single-shot tool failures are returned as errors; use Classify for the
// code. Failed units of a multi-unit plan are skipped and never surface here.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	resp := ChatResponse{SessionID: req.SessionID}

	ctx, span := s.tracer.Start(ctx, "studio.chat", trace.WithAttributes(attribute.String("session", req.SessionID)))
	defer span.End()

	sess, err := s.sessions.GetOrCreate(req.SessionID)
	if err != nil {
		return resp, fmt.Errorf("open session: %w", err)
	}
	sess.Lock()
	defer sess.Unlock()

	if err := s.ensureTools(ctx); err != nil {
		return resp, err
	}

	engine := s.engineFor(sess)
	gctx := req.generationContext()
	dec, err := engine.Decide(ctx, gctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return resp, fmt.Errorf("decide: %w", err)
	}
	span.SetAttributes(attribute.Int("tool_calls", len(dec.ToolCalls)), attribute.Bool("plan", dec.Plan != nil))
	resp.Message = dec.Message
	resp.ToolCalls = dec.ToolCalls
	resp.Plan = dec.Plan
	resp.Degraded = dec.Degraded

	if dec.Plan != nil {
		driver := NewDriver(engine, s.client, s.gallery, s.events, DriverOptions{
			SessionID: req.SessionID,
			MaxSteps:  s.opts.MaxPlanSteps,
		})
		report, err := driver.Run(ctx, gctx, dec)
		final := report.Plan
		resp.Plan = &final
		resp.ToolResults = report.Results
		resp.Gallery = report.Items
		if len(report.Items) > 0 {
			resp.ParameterUpdates = s.parameterUpdates(dec.ToolCalls)
		}
		if err != nil && fatal(err) {
			return resp, err
		}
		return resp, nil
	}

	for _, call := range dec.ToolCalls {
		result, err := s.client.CallTool(ctx, call.Name, call.Args)
		if err != nil {
			slog.Warn("studio: tool call failed", "session", req.SessionID, "tool", call.Name, "err", err)
			span.SetStatus(codes.Error, err.Error())
			return resp, err
		}
		resp.ToolResults = append(resp.ToolResults, result)
		ref, ok := media.Extract(result)
		if !ok {
			continue
		}
		item := media.NewItem(req.SessionID, call.Name, ref)
		if err := s.gallery.Add(ctx, item); err != nil {
			return resp, fmt.Errorf("commit gallery item: %w", err)
		}
		resp.Gallery = append(resp.Gallery, item)
	}
	resp.ParameterUpdates = s.parameterUpdates(dec.ToolCalls)
	return resp, nil
}

// ensureTools connects and, when nothing has been discovered yet, fetches
// the tool list.
func (s *Service) ensureTools(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	if len(s.tools.List()) > 0 {
		return nil
	}
	_, err := s.client.DiscoverTools(ctx)
	return err
}

// Tools returns the discovered tool catalog, discovering it on first use.
func (s *Service) Tools(ctx context.Context) ([]*mcp.ToolDescriptor, error) {
	if err := s.ensureTools(ctx); err != nil {
		return nil, err
	}
	return s.tools.List(), nil
}

// CallTool invokes one tool directly, outside any conversation.
func (s *Service) CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolResult, error) {
	if err := s.ensureTools(ctx); err != nil {
		return mcp.ToolResult{}, err
	}
	return s.client.CallTool(ctx, name, args)
}

// Gallery lists produced items, oldest first; an empty sessionID lists all.
func (s *Service) Gallery(ctx context.Context, sessionID string) ([]media.Item, error) {
	return s.gallery.List(ctx, sessionID)
}

// Events exposes the progress bus.
func (s *Service) Events() bus.Bus { return s.events }

// engineFor builds an engine whose conversation is the session's log.
func (s *Service) engineFor(sess *session.Session) *agent.Engine {
	conv := agent.NewConversation(s.opts.HistoryLimit, sess.Messages()...)
	conv.OnAppend(func(m schema.Message) {
		if err := s.sessions.Append(sess, m); err != nil {
			slog.Error("studio: persist message", "session", sess.ID, "err", err)
		}
	})
	return agent.NewEngine(s.reasoner, s.tools, conv, s.prompt)
}

// parameterUpdates reports the generic UI settings the calls set.
func (s *Service) parameterUpdates(calls []agent.ToolCallIntent) map[string]any {
	updates := map[string]any{}
	for _, call := range calls {
		desc, ok := s.tools.Get(call.Name)
		if !ok {
			continue
		}
		for field, v := range call.Args {
			c, ok := agent.ConceptOf(desc, field)
			if !ok {
				continue
			}
			switch c {
			case agent.ConceptSteps, agent.ConceptAspectRatio, agent.ConceptSeed:
				updates[string(c)] = v
			}
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return updates
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	MimeType string
	// DataURI is the inline payload forwarded to the remote service.
	DataURI string
}

// ForwardUpload offers u to the remote upload tool, if one is configured
// and discovered. The result is best effort: ok is false when forwarding
// was skipped, failed or ran out of time.
func (s *Service) ForwardUpload(ctx context.Context, u Upload) (mcp.ToolResult, bool) {
	if s.opts.UploadTool == "" {
		return mcp.ToolResult{}, false
	}
	desc, ok := s.tools.Get(s.opts.UploadTool)
	if !ok {
		slog.Debug("studio: upload tool not offered", "tool", s.opts.UploadTool)
		return mcp.ToolResult{}, false
	}
	args := agent.MapArgs(desc, map[agent.Concept]any{agent.ConceptImage: u.DataURI})
	for _, f := range []string{"filename", "name", "file_name"} {
		if desc.Declares(f) {
			args[f] = filepath.Base(u.Filename)
			break
		}
	}
	if desc.Declares("mime_type") {
		args["mime_type"] = u.MimeType
	}
	return BestEffort(ctx, s.opts.AuxTimeout, "upload", func(ctx context.Context) (mcp.ToolResult, error) {
		if err := s.client.Connect(ctx); err != nil {
			return mcp.ToolResult{}, err
		}
		return s.client.CallTool(ctx, desc.Name, args)
	})
}

// History returns the persisted turns of a session.
func (s *Service) History(id string) ([]schema.Message, error) {
	sess, err := s.sessions.GetOrCreate(id)
	if err != nil {
		return nil, err
	}
	return sess.Messages(), nil
}
