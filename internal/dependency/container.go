// Package dependency wires core canvasagent services using go.uber.org/dig.
package dependency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/dig"

	"github.com/crystaldolphin/canvasagent/internal/agent"
	"github.com/crystaldolphin/canvasagent/internal/bus"
	"github.com/crystaldolphin/canvasagent/internal/config"
	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/media"
	"github.com/crystaldolphin/canvasagent/internal/providers"
	"github.com/crystaldolphin/canvasagent/internal/refresh"
	"github.com/crystaldolphin/canvasagent/internal/schema"
	"github.com/crystaldolphin/canvasagent/internal/server"
	"github.com/crystaldolphin/canvasagent/internal/session"
	"github.com/crystaldolphin/canvasagent/internal/studio"
)

const clientVersion = "0.1.0"

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg       *config.Config
	client    *mcp.Client
	events    *bus.EventBus
	gallery   media.Gallery
	sessions  *session.Manager
	studio    *studio.Service
	refresher *refresh.Service
	server    *server.Server
}

func (c *Container) Config() *config.Config     { return c.cfg }
func (c *Container) Client() *mcp.Client        { return c.client }
func (c *Container) Events() *bus.EventBus      { return c.events }
func (c *Container) Sessions() *session.Manager { return c.sessions }
func (c *Container) Studio() *studio.Service    { return c.studio }
func (c *Container) Server() *server.Server     { return c.server }

// Refresher returns the scheduled rediscovery service, or nil when
// remote.refreshSchedule is empty or no remote is configured.
func (c *Container) Refresher() *refresh.Service { return c.refresher }

// Close releases the remote session and the gallery store.
func (c *Container) Close() error {
	return errors.Join(c.client.Close(), c.gallery.Close())
}

// optionalRefresher wraps the optional refresh service so dig can carry a nil.
type optionalRefresher struct{ *refresh.Service }

// New builds and wires all core services from cfg.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	d := dig.New()

	providersList := []any{
		func() *config.Config { return cfg },
		func() context.Context { return ctx },
		newProvider,
		newReasoner,
		newPromptBuilder,
		NewClient,
		newEventBus,
		newGallery,
		newSessionManager,
		newStudio,
		newRefresher,
		newServer,
	}
	for _, p := range providersList {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		client *mcp.Client,
		events *bus.EventBus,
		gallery media.Gallery,
		sessions *session.Manager,
		svc *studio.Service,
		r optionalRefresher,
		srv *server.Server,
	) {
		result = &Container{
			cfg:       cfg,
			client:    client,
			events:    events,
			gallery:   gallery,
			sessions:  sessions,
			studio:    svc,
			refresher: r.Service,
			server:    srv,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newProvider(cfg *config.Config) (schema.LLMProvider, error) {
	model := cfg.Agents.Defaults.Model
	result := cfg.MatchProvider(model)
	if result.Provider == nil {
		return nil, fmt.Errorf("no API key configured for model %q; edit %s", model, config.ConfigPath())
	}
	return providers.New(providers.Params{
		APIKey:       result.Provider.APIKey,
		APIBase:      cfg.GetAPIBase(model),
		ExtraHeaders: result.Provider.ExtraHeaders,
		DefaultModel: model,
		ProviderName: result.Name,
	}), nil
}

func newReasoner(cfg *config.Config, p schema.LLMProvider) agent.Reasoner {
	d := cfg.Agents.Defaults
	model := d.Model
	if model == "" {
		model = p.DefaultModel()
	}
	return agent.NewLLMReasoner(p, schema.NewChatOptions(model, d.MaxTokens, d.Temperature))
}

func newPromptBuilder(cfg *config.Config) *agent.PromptBuilder {
	return agent.NewPromptBuilder(cfg.WorkspacePath())
}

// NewClient builds the remote tool client alone, for commands that need no LLM.
func NewClient(cfg *config.Config) *mcp.Client {
	r := cfg.Remote
	return mcp.NewClient(mcp.Config{
		URL:           r.URL,
		Token:         r.Token,
		TokenHeader:   r.TokenHeader,
		Headers:       r.Headers,
		Command:       r.Command,
		Args:          r.Args,
		Env:           r.Env,
		Timeout:       r.Timeout(),
		Retry:         mcp.RetryPolicy{MaxRetries: r.MaxRetries, BaseDelay: r.BaseDelay()},
		ClientName:    "canvasagent",
		ClientVersion: clientVersion,
	}, mcp.WithObserver(func(a mcp.Attempt) {
		if a.Err != nil {
			slog.Debug("mcp: attempt observed", "tool", a.Tool, "attempt", a.Number, "elapsed", a.Elapsed, "err", a.Err)
		}
	}))
}

func newEventBus() *bus.EventBus {
	return bus.NewEventBus(64)
}

func newGallery(ctx context.Context, cfg *config.Config) (media.Gallery, error) {
	path := cfg.GalleryPath()
	if path == "" {
		return media.NewMemoryGallery(), nil
	}
	return media.OpenSQLiteGallery(ctx, path)
}

func newSessionManager(cfg *config.Config) (*session.Manager, error) {
	return session.NewManager(cfg.SessionsDir())
}

func newStudio(
	cfg *config.Config,
	client *mcp.Client,
	reasoner agent.Reasoner,
	prompt *agent.PromptBuilder,
	gallery media.Gallery,
	sessions *session.Manager,
	events *bus.EventBus,
) *studio.Service {
	return studio.NewService(client, client.Registry(), reasoner, prompt, gallery, sessions, events, studio.Options{
		MaxPlanSteps: cfg.Agents.Defaults.MaxPlanSteps,
		HistoryLimit: cfg.Agents.Defaults.HistoryLimit,
		AuxTimeout:   cfg.Server.AuxTimeout(),
		UploadTool:   cfg.Remote.UploadTool,
	})
}

func newRefresher(cfg *config.Config, client *mcp.Client, events *bus.EventBus) (optionalRefresher, error) {
	if cfg.Remote.RefreshSchedule == "" || !cfg.Remote.Configured() {
		return optionalRefresher{}, nil
	}
	s, err := refresh.NewService(client, events, cfg.Remote.RefreshSchedule)
	return optionalRefresher{s}, err
}

func newServer(cfg *config.Config, svc *studio.Service) (*server.Server, error) {
	return server.New(cfg.Server, svc, cfg.UploadDir())
}
