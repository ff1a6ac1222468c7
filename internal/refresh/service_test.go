package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/canvasagent/internal/bus"
	"github.com/crystaldolphin/canvasagent/internal/mcp"
)

type fakeDiscoverer struct {
	mu    sync.Mutex
	calls int
	err   error
	tools []*mcp.ToolDescriptor
}

func (f *fakeDiscoverer) DiscoverTools(context.Context) ([]*mcp.ToolDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tools, nil
}

func (f *fakeDiscoverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNewService_Schedule(t *testing.T) {
	s, err := NewService(&fakeDiscoverer{}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, s.Status().Schedule)

	for _, spec := range []string{"0 */5 * * * *", "*/10 * * * *", "@hourly", "@every 90s"} {
		_, err := NewService(&fakeDiscoverer{}, nil, spec)
		assert.NoError(t, err, spec)
	}

	_, err = NewService(&fakeDiscoverer{}, nil, "every now and then")
	assert.Error(t, err)
}

func TestRefresh_PublishesOnSuccess(t *testing.T) {
	events := bus.NewEventBus(8)
	ch, unsubscribe := events.Subscribe("any-session")
	defer unsubscribe()

	d := &fakeDiscoverer{tools: []*mcp.ToolDescriptor{
		mcp.NewToolDescriptor("generate_image", "", nil),
		mcp.NewToolDescriptor("erase", "", nil),
	}}
	s, err := NewService(d, events, "@hourly")
	require.NoError(t, err)

	require.NoError(t, s.Refresh(context.Background()))
	st := s.Status()
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 2, st.Tools)
	assert.Empty(t, st.LastError)

	select {
	case ev := <-ch:
		assert.Equal(t, bus.KindToolsRefreshed, ev.Kind)
		assert.Equal(t, 2, ev.Total)
	default:
		t.Fatal("expected a tools_refreshed event")
	}
}

func TestRefresh_FailureKeepsPreviousCount(t *testing.T) {
	d := &fakeDiscoverer{tools: []*mcp.ToolDescriptor{mcp.NewToolDescriptor("erase", "", nil)}}
	s, err := NewService(d, nil, "@hourly")
	require.NoError(t, err)
	require.NoError(t, s.Refresh(context.Background()))

	d.err = &mcp.DiscoveryError{Err: errors.New("eof")}
	assert.Error(t, s.Refresh(context.Background()))

	st := s.Status()
	assert.Equal(t, 2, st.Runs)
	assert.Equal(t, 1, st.Tools)
	assert.Contains(t, st.LastError, "eof")
}

func TestStart_RunsOnSchedule(t *testing.T) {
	d := &fakeDiscoverer{}
	s, err := NewService(d, nil, "* * * * * *")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return d.count() >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
