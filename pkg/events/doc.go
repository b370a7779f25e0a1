/*
Package events is an in-process broker for registry lifecycle events.

The hub publishes an event whenever a node is discovered, announced,
created, updated, approved, has its approval revoked or is deleted.
Subscribers receive events on buffered channels:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.NodeID)
	}

Publish never blocks the caller. If the broker queue is full the event is
dropped and counted; if a subscriber's buffer is full that subscriber
misses the event. Events are not persisted.
*/
package events
