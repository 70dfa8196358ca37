package handler_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/handler"
	"github.com/pkordes/dreamtrip/backend/internal/service"
	"github.com/pkordes/dreamtrip/backend/internal/stream"
)

func dialUpdates(t *testing.T, srv *httptest.Server, tripID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/trips/" + tripID.String() + "/updates"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) handler.UpdateMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg handler.UpdateMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamUpdates(t *testing.T) {
	snap := snapshotFixture()
	hub := stream.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	coord := &mockCoordinator{
		getItinerary: func(_ context.Context, _ uuid.UUID) (service.Snapshot, error) {
			return snap, nil
		},
	}
	srv := httptest.NewServer(newHTTPHandler(deps{coord: coord, updates: hub}))
	defer srv.Close()

	conn := dialUpdates(t, srv, snap.Trip.ID)

	first := readUpdate(t, conn)
	assert.Equal(t, "snapshot", first.Type)
	assert.Equal(t, 1, first.Itinerary.Version)
	require.Eventually(t, func() bool { return hub.Subscribers(snap.Trip.ID) == 1 }, time.Second, 5*time.Millisecond)

	older := snap.Version
	older.Version = 1
	hub.Publish(context.Background(), snap.Trip, older)

	next := snap.Version
	next.Version = 2
	next.TotalCost = 45
	trip := snap.Trip
	trip.CurrentVersion = 2
	hub.Publish(context.Background(), trip, next)

	msg := readUpdate(t, conn)
	assert.Equal(t, "commit", msg.Type, "version 1 was already sent and is skipped")
	assert.Equal(t, 2, msg.Itinerary.Version)
	assert.Equal(t, 45.0, msg.Itinerary.TotalCost)
	assert.Equal(t, 2, msg.Trip.CurrentVersion)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers(snap.Trip.ID) == 0 }, time.Second, 5*time.Millisecond)
}

func TestStreamUpdates_404BeforeUpgrade(t *testing.T) {
	hub := stream.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	coord := &mockCoordinator{
		getItinerary: func(_ context.Context, _ uuid.UUID) (service.Snapshot, error) {
			return service.Snapshot{}, fmt.Errorf("service.Coordinator.GetItinerary: %w", domain.ErrNotFound)
		},
	}
	srv := httptest.NewServer(newHTTPHandler(deps{coord: coord, updates: hub}))
	defer srv.Close()
	tripID := uuid.New()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/trips/" + tripID.String() + "/updates"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, hub.Subscribers(tripID))
}

func TestStreamUpdates_PlainGETIsRejected(t *testing.T) {
	snap := snapshotFixture()
	hub := stream.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	coord := &mockCoordinator{
		getItinerary: func(_ context.Context, _ uuid.UUID) (service.Snapshot, error) {
			return snap, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/trips/"+snap.Trip.ID.String()+"/updates", nil)
	rec := httptest.NewRecorder()

	newHTTPHandler(deps{coord: coord, updates: hub}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, hub.Subscribers(snap.Trip.ID))
}
