package daemon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	handle    string
	delivered []json.RawMessage
	accept    bool
}

func newRecordingSubscriber(handle string) *recordingSubscriber {
	return &recordingSubscriber{handle: handle, accept: true}
}

func (s *recordingSubscriber) Handle() string { return s.handle }

func (s *recordingSubscriber) DeliverChannelMessage(channel string, message json.RawMessage) bool {
	if !s.accept {
		return false
	}
	s.delivered = append(s.delivered, message)
	return true
}

func TestChannelBus_SubscribeIsIdempotent(t *testing.T) {
	bus := NewChannelBus()
	sub := newRecordingSubscriber("s1")

	count := bus.Subscribe(sub, "t")
	assert.Equal(t, 1, count)

	count = bus.Subscribe(sub, "t")
	assert.Equal(t, 1, count, "re-subscribing the same handle must not grow the count")
}

func TestChannelBus_SeedScenario_PubSubFanOut(t *testing.T) {
	bus := NewChannelBus()
	subscriber := newRecordingSubscriber("s")
	publisher := newRecordingSubscriber("p")

	count := bus.Subscribe(subscriber, "t")
	require.Equal(t, 1, count)

	delivered := bus.Publish(publisher, "t", json.RawMessage(`{"event":"x"}`))
	assert.Equal(t, 1, delivered)
	require.Len(t, subscriber.delivered, 1)
	assert.JSONEq(t, `{"event":"x"}`, string(subscriber.delivered[0]))
}

func TestChannelBus_NoSelfDelivery(t *testing.T) {
	bus := NewChannelBus()
	sub := newRecordingSubscriber("s")
	bus.Subscribe(sub, "t")

	bus.Publish(sub, "t", json.RawMessage(`{}`))
	assert.Empty(t, sub.delivered, "a publisher subscribed to its own channel must not receive its own publish")
}

func TestChannelBus_UnsubscribeRemovesChannelEntryWhenEmpty(t *testing.T) {
	bus := NewChannelBus()
	sub := newRecordingSubscriber("s")
	bus.Subscribe(sub, "t")
	bus.Unsubscribe(sub, "t")

	assert.Equal(t, 0, bus.SubscriberCount("t"))
}

func TestChannelBus_RemoveSubscriberClearsEveryChannel(t *testing.T) {
	bus := NewChannelBus()
	sub := newRecordingSubscriber("s")
	bus.Subscribe(sub, "t1")
	bus.Subscribe(sub, "t2")

	bus.RemoveSubscriber(sub)

	assert.Equal(t, 0, bus.SubscriberCount("t1"))
	assert.Equal(t, 0, bus.SubscriberCount("t2"))
}

func TestChannelBus_DropsOnFullQueueButReportsSuccessForOthers(t *testing.T) {
	bus := NewChannelBus()
	full := newRecordingSubscriber("full")
	full.accept = false
	ok := newRecordingSubscriber("ok")

	bus.Subscribe(full, "t")
	bus.Subscribe(ok, "t")

	delivered := bus.Publish(newRecordingSubscriber("pub"), "t", json.RawMessage(`{}`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, uint64(1), bus.DroppedFrames())
}

func TestInstanceEmitter_PublishesThroughBusWithoutSelfDelivery(t *testing.T) {
	bus := NewChannelBus()
	sub := newRecordingSubscriber("s")
	bus.Subscribe(sub, "events")

	emitter := newInstanceEmitter(bus, "gen-1")
	delivered := emitter.Emit("events", map[string]any{"n": 1})

	assert.Equal(t, 1, delivered)
	require.Len(t, sub.delivered, 1)
	assert.JSONEq(t, `{"n":1}`, string(sub.delivered[0]))
}
