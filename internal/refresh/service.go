// Package refresh keeps the tool registry current by re-running discovery
// on a cron schedule. A failed discovery leaves the previous snapshot in
// place.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/crystaldolphin/canvasagent/internal/bus"
	"github.com/crystaldolphin/canvasagent/internal/mcp"
)

// DefaultSchedule rediscovers every ten minutes.
const DefaultSchedule = "@every 10m"

// Discoverer re-fetches the remote tool list. *mcp.Client implements it.
type Discoverer interface {
	DiscoverTools(ctx context.Context) ([]*mcp.ToolDescriptor, error)
}

// Status describes the most recent discovery run.
type Status struct {
	Schedule  string    `json:"schedule"`
	Runs      int       `json:"runs"`
	Tools     int       `json:"tools"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Service runs scheduled rediscovery.
type Service struct {
	discoverer Discoverer
	events     bus.Bus
	schedule   string
	robfig     *robfigcron.Cron

	mu     sync.Mutex
	status Status
}

var parser = robfigcron.NewParser(
	robfigcron.SecondOptional | robfigcron.Minute | robfigcron.Hour |
		robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// NewService validates schedule (a cron expression, optionally with
// seconds, or a descriptor such as "@every 10m") and returns a Service.
// An empty schedule uses DefaultSchedule.
func NewService(d Discoverer, events bus.Bus, schedule string) (*Service, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("refresh: invalid schedule %q: %w", schedule, err)
	}
	if events == nil {
		events = bus.Discard{}
	}
	return &Service{
		discoverer: d,
		events:     events,
		schedule:   schedule,
		robfig:     robfigcron.New(robfigcron.WithParser(parser)),
		status:     Status{Schedule: schedule},
	}, nil
}

// Start arms the schedule and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.robfig.AddFunc(s.schedule, func() { _ = s.Refresh(ctx) }); err != nil {
		return fmt.Errorf("refresh: arm schedule: %w", err)
	}
	s.robfig.Start()
	slog.Info("refresh: started", "schedule", s.schedule)

	<-ctx.Done()
	<-s.robfig.Stop().Done()
	slog.Info("refresh: stopped")
	return ctx.Err()
}

// Refresh runs one discovery now.
func (s *Service) Refresh(ctx context.Context) error {
	tools, err := s.discoverer.DiscoverTools(ctx)

	s.mu.Lock()
	s.status.Runs++
	s.status.LastRun = time.Now().UTC()
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
		s.status.Tools = len(tools)
	}
	s.mu.Unlock()

	if err != nil {
		slog.Warn("refresh: discovery failed, keeping previous tools", "err", err)
		return err
	}

	ev := bus.NewEvent(bus.KindToolsRefreshed, "")
	ev.Total = len(tools)
	ev.Message = fmt.Sprintf("%d tools available", len(tools))
	s.events.Publish(ev)
	slog.Debug("refresh: tools rediscovered", "count", len(tools))
	return nil
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
