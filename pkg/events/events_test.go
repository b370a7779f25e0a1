package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	a := b.Subscribe()
	c := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventNodeDiscovered, NodeID: "cam-1"})

	for _, sub := range []Subscriber{a, c} {
		ev := receive(t, sub)
		assert.Equal(t, EventNodeDiscovered, ev.Type)
		assert.Equal(t, "cam-1", ev.NodeID)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroker() // not started, so nothing drains the queue

	done := make(chan struct{})
	go func() {
		for i := 0; i < 150; i++ {
			b.Publish(&Event{Type: EventNodeUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, 50, b.Dropped())
}

func TestPublishAfterStop(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	b.Stop()

	require.NotPanics(t, func() {
		b.Publish(&Event{Type: EventNodeDeleted})
	})
}
