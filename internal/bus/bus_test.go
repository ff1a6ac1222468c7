package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_FiltersBySession(t *testing.T) {
	b := NewEventBus(4)
	all, stopAll := b.Subscribe("")
	defer stopAll()
	s1, stopS1 := b.Subscribe("s1")
	defer stopS1()

	b.Publish(NewEvent(KindUnitStarted, "s1"))
	b.Publish(NewEvent(KindUnitStarted, "s2"))
	b.Publish(NewEvent(KindToolsRefreshed, ""))

	assert.Len(t, all, 3)
	require.Len(t, s1, 2)
	assert.Equal(t, "s1", (<-s1).SessionID)
	assert.Equal(t, KindToolsRefreshed, (<-s1).Kind)
}

func TestEventBus_FullSubscriberDoesNotBlock(t *testing.T) {
	b := NewEventBus(1)
	ch, stop := b.Subscribe("")
	defer stop()

	b.Publish(NewEvent(KindUnitStarted, "s"))
	b.Publish(NewEvent(KindUnitCompleted, "s"))

	require.Len(t, ch, 1)
	assert.Equal(t, KindUnitStarted, (<-ch).Kind)
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	b := NewEventBus(1)
	ch, stop := b.Subscribe("")
	stop()
	stop()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers())
	b.Publish(NewEvent(KindUnitStarted, "s"))
}
