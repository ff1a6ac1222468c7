package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxListPages = 20

// Config describes how to reach the remote tool service. Either URL (HTTP)
// or Command (stdio subprocess) must be set.
type Config struct {
	URL         string
	Token       string
	TokenHeader string
	Headers     map[string]string

	Command string
	Args    []string
	Env     map[string]string

	Timeout time.Duration
	Retry   RetryPolicy

	ClientName    string
	ClientVersion string
}

// ServerInfo is what the remote side reported during initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Client is the session with one remote tool service: it connects, keeps
// the discovered tool registry and invokes tools with retry.
type Client struct {
	cfg      Config
	registry *Registry
	observer AttemptObserver
	sleep    sleepFunc
	tracer   trace.Tracer

	mu         sync.Mutex
	transport  Transport
	injected   Transport
	serverInfo ServerInfo
}

type Option func(*Client)

// WithTransport makes Connect use t instead of dialing from Config.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.injected = t }
}

// WithObserver receives every CallTool attempt in addition to the log.
func WithObserver(o AttemptObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithRegistry shares an existing registry.
func WithRegistry(r *Registry) Option {
	return func(c *Client) { c.registry = r }
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = "api_token"
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "canvasagent"
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	c := &Client{
		cfg:      cfg,
		registry: NewRegistry(),
		sleep:    sleepContext,
		tracer:   otel.Tracer("github.com/crystaldolphin/canvasagent/internal/mcp"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Registry() *Registry { return c.registry }

// Tools returns the current discovered snapshot.
func (c *Client) Tools() []*ToolDescriptor { return c.registry.List() }

func (c *Client) endpoint() string {
	if c.cfg.URL != "" {
		return c.cfg.URL
	}
	return c.cfg.Command
}

// Connected reports whether a session has been established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil
}

func (c *Client) ServerInfo() ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Connect establishes the logical session. Calling it again once connected
// is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != nil {
		return nil
	}

	t, err := c.dial()
	if err != nil {
		return err
	}

	raw, err := t.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": c.cfg.ClientName, "version": c.cfg.ClientVersion},
	})
	if err != nil {
		if t != c.injected {
			_ = t.Close()
		}
		return &ConnectionError{Endpoint: c.endpoint(), Err: err}
	}
	var init struct {
		ServerInfo ServerInfo `json:"serverInfo"`
	}
	_ = json.Unmarshal(raw, &init)

	if err := t.Notify(ctx, "notifications/initialized", nil); err != nil {
		slog.Warn("mcp: initialized notification failed", "endpoint", c.endpoint(), "err", err)
	}

	c.transport = t
	c.serverInfo = init.ServerInfo
	slog.Info("mcp: connected", "endpoint", c.endpoint(), "server", init.ServerInfo.Name)
	return nil
}

func (c *Client) dial() (Transport, error) {
	if c.injected != nil {
		return c.injected, nil
	}
	switch {
	case c.cfg.URL != "":
		if c.cfg.Token == "" {
			return nil, &ConfigurationError{Field: "remote.token"}
		}
		return NewHTTPTransport(c.cfg.URL, HTTPOptions{
			TokenHeader: c.cfg.TokenHeader,
			Token:       c.cfg.Token,
			Headers:     c.cfg.Headers,
			Timeout:     c.cfg.Timeout,
		}), nil
	case c.cfg.Command != "":
		// The subprocess outlives any single request; Close stops it.
		t, err := StartStdio(context.Background(), c.cfg.Command, c.cfg.Args, c.cfg.Env)
		if err != nil {
			return nil, &ConnectionError{Endpoint: c.cfg.Command, Err: err}
		}
		return t, nil
	}
	return nil, &ConfigurationError{Field: "remote.url"}
}

// session connects if needed and returns the live transport.
func (c *Client) session(ctx context.Context) (Transport, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport, nil
}

// drop forgets t after it reported ErrSessionLost so the next call
// reconnects. Injected transports are never closed here.
func (c *Client) drop(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != t {
		return
	}
	c.transport = nil
	if t != c.injected {
		_ = t.Close()
	}
	slog.Warn("mcp: session lost", "endpoint", c.endpoint())
}

// DiscoverTools fetches the tool list and replaces the registry snapshot.
// On failure the previous snapshot is left untouched.
func (c *Client) DiscoverTools(ctx context.Context) ([]*ToolDescriptor, error) {
	t, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	var tools []*ToolDescriptor
	cursor := ""
	for page := 0; page < maxListPages; page++ {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		raw, err := t.Call(ctx, "tools/list", params)
		if err != nil {
			if errors.Is(err, ErrSessionLost) {
				c.drop(t)
			}
			return nil, &DiscoveryError{Err: err}
		}
		var payload struct {
			Tools []struct {
				Name        string          `json:"name"`
				Description string          `json:"description"`
				InputSchema json.RawMessage `json:"inputSchema"`
			} `json:"tools"`
			NextCursor string `json:"nextCursor"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, &DiscoveryError{Err: fmt.Errorf("decode tools/list: %w", err)}
		}
		for _, td := range payload.Tools {
			tools = append(tools, NewToolDescriptor(td.Name, td.Description, td.InputSchema))
		}
		if payload.NextCursor == "" {
			break
		}
		cursor = payload.NextCursor
	}

	c.registry.Replace(tools)
	slog.Info("mcp: tools discovered", "count", c.registry.Len())
	return c.registry.List(), nil
}

// CallTool invokes name with args. Retryable failures are retried up to
// the policy's MaxRetries with exponential backoff; a non-retryable failure
// stops after one attempt. Exhaustion returns a *ToolExecutionError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	ctx, span := c.tracer.Start(ctx, "mcp.call_tool", trace.WithAttributes(attribute.String("tool", name)))
	defer span.End()

	t, err := c.session(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ToolResult{}, err
	}
	if args == nil {
		args = map[string]any{}
	}
	if d, ok := c.registry.Get(name); ok {
		if verr := d.Validate(args); verr != nil {
			slog.Warn("mcp: arguments do not match tool schema", "tool", name, "err", verr)
		}
	}

	maxAttempts := c.cfg.Retry.MaxRetries + 1
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		start := time.Now()
		var res ToolResult
		err = nil
		if t == nil {
			t, err = c.session(ctx)
		}
		if err == nil {
			res, err = c.callOnce(ctx, t, name, args)
			if errors.Is(err, ErrSessionLost) {
				c.drop(t)
				t = nil
			}
		}

		retry := err != nil && attempt < maxAttempts && IsRetryable(err)
		var delay time.Duration
		if retry {
			delay = c.cfg.Retry.Delay(attempt)
		}
		c.observe(Attempt{Tool: name, Number: attempt, Err: err, Elapsed: time.Since(start), Delay: delay})

		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return res, nil
		}
		lastErr = err
		if !retry {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}

	span.SetAttributes(attribute.Int("attempts", attempts))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return ToolResult{}, &ToolExecutionError{Tool: name, Args: args, Attempts: attempts, Err: lastErr}
}

func (c *Client) callOnce(ctx context.Context, t Transport, name string, args map[string]any) (ToolResult, error) {
	raw, err := t.Call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return ToolResult{}, err
	}
	var res ToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ToolResult{Content: []ContentItem{{Type: "text", Text: string(raw)}}}, nil
	}
	if res.IsError {
		return res, &RemoteError{ToolError: true, Message: res.Text()}
	}
	return res, nil
}

func (c *Client) observe(a Attempt) {
	switch {
	case a.Err == nil:
		slog.Debug("mcp: tool call ok", "tool", a.Tool, "attempt", a.Number, "elapsed", a.Elapsed)
	case a.Delay > 0:
		slog.Warn("mcp: tool call failed, retrying", "tool", a.Tool, "attempt", a.Number, "retry_in", a.Delay, "err", a.Err)
	default:
		slog.Warn("mcp: tool call failed", "tool", a.Tool, "attempt", a.Number, "err", a.Err)
	}
	if c.observer != nil {
		c.observer(a)
	}
}

// Close ends the session. A later Connect starts a new one.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}
