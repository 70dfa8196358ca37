// Package stream fans committed itinerary versions out to live subscribers.
// Each process keeps its own subscribers; with Redis configured, commits are
// also relayed to every other process through pub/sub.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

const (
	channelPrefix  = "dreamtrip:trip:"
	channelPattern = channelPrefix + "*"
	sendBuffer     = 16
)

// Event is one committed version as seen by subscribers.
type Event struct {
	Origin  string                  `json:"origin"`
	Trip    domain.Trip             `json:"trip"`
	Version domain.ItineraryVersion `json:"version"`
}

// Client is one subscriber to a trip's commits. Send is closed by Unregister.
// Slow clients miss events rather than block a commit.
type Client struct {
	TripID uuid.UUID
	Send   chan Event
}

// Hub implements service.Publisher.
type Hub struct {
	redis  *redis.Client
	node   string
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}

	onRemote func(Event)
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option customises a Hub.
type Option func(*Hub)

// WithRedis relays commits through client so subscribers on other processes
// see them too.
func WithRedis(client *redis.Client) Option {
	return func(h *Hub) { h.redis = client }
}

// OnRemote registers fn to run for every commit relayed from another process,
// before local subscribers get it.
func OnRemote(fn func(Event)) Option {
	return func(h *Hub) { h.onRemote = fn }
}

// NewHub returns a Hub. With WithRedis it subscribes to every trip channel
// until Close.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		node:    uuid.NewString(),
		logger:  logger,
		clients: map[uuid.UUID]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.redis == nil {
		close(h.done)
		return h
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	pubsub := h.redis.PSubscribe(ctx, channelPattern)
	go h.subscribeRedis(ctx, pubsub)
	return h
}

// Close stops the Redis subscription.
func (h *Hub) Close() error {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
	return nil
}

// Register adds a subscriber for tripID.
func (h *Hub) Register(tripID uuid.UUID) *Client {
	client := &Client{TripID: tripID, Send: make(chan Event, sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[tripID] == nil {
		h.clients[tripID] = map[*Client]struct{}{}
	}
	h.clients[tripID][client] = struct{}{}
	return client
}

// Unregister removes client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clients[client.TripID]
	if !ok {
		return
	}
	if _, ok := subs[client]; !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.clients, client.TripID)
	}
	close(client.Send)
}

// Subscribers returns the number of local subscribers for tripID.
func (h *Hub) Subscribers(tripID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tripID])
}

// Publish delivers a committed version to local subscribers and, with Redis,
// to other processes.
func (h *Hub) Publish(ctx context.Context, trip domain.Trip, v domain.ItineraryVersion) {
	ev := Event{Origin: h.node, Trip: trip, Version: v}
	h.deliver(ev)

	if h.redis == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("stream encode failed", "trip_id", trip.ID, "error", err)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.redis.Publish(pctx, redisChannel(trip.ID), payload).Err(); err != nil {
		h.logger.Warn("stream redis publish failed", "trip_id", trip.ID, "error", err)
	}
}

func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[ev.Trip.ID] {
		select {
		case client.Send <- ev:
		default:
			h.logger.Debug("stream subscriber lagging", "trip_id", ev.Trip.ID, "version", ev.Version.Version)
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer close(h.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.relay(msg)
		}
	}
}

func (h *Hub) relay(msg *redis.Message) {
	tripID, ok := tripIDFromChannel(msg.Channel)
	if !ok {
		return
	}
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		h.logger.Warn("stream decode failed", "channel", msg.Channel, "error", err)
		return
	}
	if ev.Origin == h.node || ev.Trip.ID != tripID {
		return
	}
	if h.onRemote != nil {
		h.onRemote(ev)
	}
	h.deliver(ev)
}

func redisChannel(tripID uuid.UUID) string {
	return channelPrefix + tripID.String()
}

func tripIDFromChannel(ch string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(ch, channelPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
