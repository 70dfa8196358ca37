package service_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/service"
)

func snapshot(id uuid.UUID, version int) service.Snapshot {
	return service.Snapshot{
		Trip:    domain.Trip{ID: id, CurrentVersion: version},
		Version: domain.ItineraryVersion{TripID: id, Version: version},
	}
}

func TestHeads_NeverMovesBackwards(t *testing.T) {
	h := service.NewHeads(0)
	id := uuid.New()

	h.Put(snapshot(id, 2))
	h.Put(snapshot(id, 1))

	got, ok := h.Get(id)
	require.True(t, ok)
	assert.Equal(t, 2, got.Version.Version)

	h.Put(snapshot(id, 3))
	got, _ = h.Get(id)
	assert.Equal(t, 3, got.Version.Version)
}

func TestHeads_Expires(t *testing.T) {
	h := service.NewHeads(10 * time.Millisecond)
	id := uuid.New()
	h.Put(snapshot(id, 1))

	assert.Eventually(t, func() bool {
		_, ok := h.Get(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestHeads_Delete(t *testing.T) {
	h := service.NewHeads(0)
	id := uuid.New()
	h.Put(snapshot(id, 1))

	h.Delete(id)

	_, ok := h.Get(id)
	assert.False(t, ok)
}
