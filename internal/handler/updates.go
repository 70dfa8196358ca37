package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// Update message types.
const (
	updateSnapshot = "snapshot"
	updateCommit   = "commit"
)

// UpdateMessage is one frame of the updates stream.
type UpdateMessage struct {
	Type      string            `json:"type"`
	Trip      TripResponse      `json:"trip"`
	Itinerary ItineraryResponse `json:"itinerary"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamUpdates handles GET /api/trips/{id}/updates.
// It upgrades to a websocket, sends the current snapshot, then one frame per
// committed version. Versions arrive in increasing order; a lagging client
// may skip versions but never sees an older one after a newer one.
func (s *Server) StreamUpdates(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "tripID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	snap, err := s.coord.GetItinerary(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}

	// Subscribe before the upgrade so no commit after the snapshot is lost.
	client := s.updates.Register(id)
	defer s.updates.Unregister(client)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "trip_id", id, "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	last := snap.Version.Version
	if err := writeUpdate(conn, UpdateMessage{
		Type:      updateSnapshot,
		Trip:      tripToResponse(snap.Trip),
		Itinerary: versionToResponse(snap.Version),
	}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case ev, ok := <-client.Send:
			if !ok {
				return
			}
			if ev.Version.Version <= last {
				continue
			}
			last = ev.Version.Version
			if err := writeUpdate(conn, UpdateMessage{
				Type:      updateCommit,
				Trip:      tripToResponse(ev.Trip),
				Itinerary: versionToResponse(ev.Version),
			}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeUpdate(conn *websocket.Conn, msg UpdateMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}

// readUntilClosed drains client frames so control messages are processed,
// and closes done when the connection goes away.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
