package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// Snapshot is a trip together with its current itinerary version.
// Snapshots are never modified after they are built; readers share them.
type Snapshot struct {
	Trip    domain.Trip
	Version domain.ItineraryVersion
}

// Heads caches the newest known Snapshot of each trip. Publishing a newer
// snapshot replaces the cached value in one step, so a reader observes either
// the old version or the new one.
type Heads struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewHeads returns an empty cache whose entries expire after ttl.
// A ttl of zero keeps entries until they are replaced or deleted.
func NewHeads(ttl time.Duration) *Heads {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Heads{cache: cache.New(ttl, 2*ttl)}
}

// Get returns the cached snapshot of tripID.
func (h *Heads) Get(tripID uuid.UUID) (Snapshot, bool) {
	v, ok := h.cache.Get(tripID.String())
	if !ok {
		return Snapshot{}, false
	}
	return v.(Snapshot), true
}

// Put publishes s unless a newer version of the same trip is already cached.
func (h *Heads) Put(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := s.Trip.ID.String()
	if v, ok := h.cache.Get(key); ok && v.(Snapshot).Version.Version > s.Version.Version {
		return
	}
	h.cache.SetDefault(key, s)
}

// Delete drops tripID from the cache.
func (h *Heads) Delete(tripID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache.Delete(tripID.String())
}
