package stream

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func commit(tripID uuid.UUID, version int) (domain.Trip, domain.ItineraryVersion) {
	return domain.Trip{ID: tripID, Destination: "Lisbon", CurrentVersion: version},
		domain.ItineraryVersion{TripID: tripID, Version: version, TotalCost: 20}
}

func publish(h *Hub, trip domain.Trip, v domain.ItineraryVersion) {
	h.Publish(context.Background(), trip, v)
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Send:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestHub_PublishLocal(t *testing.T) {
	hub := NewHub(discard())
	tripID := uuid.New()
	client := hub.Register(tripID)
	other := hub.Register(uuid.New())
	defer hub.Unregister(client)
	defer hub.Unregister(other)

	publish(hub, commit(tripID, 3))

	ev := receive(t, client)
	assert.Equal(t, 3, ev.Version.Version)
	assert.Equal(t, tripID, ev.Trip.ID)
	assert.Empty(t, other.Send, "other trips are not notified")
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(discard())
	tripID := uuid.New()
	client := hub.Register(tripID)
	defer hub.Unregister(client)

	for i := 1; i <= sendBuffer+5; i++ {
		publish(hub, commit(tripID, i))
	}

	assert.Len(t, client.Send, sendBuffer)
	assert.Equal(t, 1, receive(t, client).Version.Version, "oldest buffered event first")
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub(discard())
	tripID := uuid.New()
	client := hub.Register(tripID)
	require.Equal(t, 1, hub.Subscribers(tripID))

	hub.Unregister(client)
	hub.Unregister(client)

	_, ok := <-client.Send
	assert.False(t, ok, "Send is closed")
	assert.Zero(t, hub.Subscribers(tripID))
	publish(hub, commit(tripID, 1))
}

func TestChannelHelpers(t *testing.T) {
	id := uuid.New()
	got, ok := tripIDFromChannel(redisChannel(id))
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = tripIDFromChannel("tracking:abc:broadcast")
	assert.False(t, ok)
	_, ok = tripIDFromChannel(channelPrefix + "not-a-uuid")
	assert.False(t, ok)
}

func newRedisHub(t *testing.T, s *miniredis.Miniredis, opts ...Option) *Hub {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	hub := NewHub(discard(), append([]Option{WithRedis(client)}, opts...)...)
	t.Cleanup(func() { _ = hub.Close() })
	return hub
}

func TestHub_RelaysAcrossProcesses(t *testing.T) {
	s := miniredis.RunT(t)
	var remote []int
	a := newRedisHub(t, s)
	b := newRedisHub(t, s, OnRemote(func(ev Event) { remote = append(remote, ev.Version.Version) }))
	require.Eventually(t, func() bool { return s.PubSubNumPat() == 2 }, time.Second, 5*time.Millisecond)

	tripID := uuid.New()
	onA := a.Register(tripID)
	onB := b.Register(tripID)
	defer a.Unregister(onA)
	defer b.Unregister(onB)

	publish(a, commit(tripID, 2))

	assert.Equal(t, 2, receive(t, onA).Version.Version)
	ev := receive(t, onB)
	assert.Equal(t, 2, ev.Version.Version)
	assert.Equal(t, a.node, ev.Origin)
	assert.Equal(t, []int{2}, remote)

	// a ignores its own relayed commit.
	select {
	case ev := <-onA.Send:
		t.Fatalf("duplicate event %v", ev.Version.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_IgnoresMalformedMessages(t *testing.T) {
	s := miniredis.RunT(t)
	hub := newRedisHub(t, s)
	require.Eventually(t, func() bool { return s.PubSubNumPat() == 1 }, time.Second, 5*time.Millisecond)
	tripID := uuid.New()
	client := hub.Register(tripID)
	defer hub.Unregister(client)

	s.Publish(redisChannel(tripID), "{not json")
	s.Publish(redisChannel(uuid.New()), `{"origin":"elsewhere"}`)

	select {
	case ev := <-client.Send:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
