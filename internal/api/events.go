package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/inchinet/nativespeaker/internal/narration"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// eventStream pushes every controller snapshot to connected WebSocket
// clients. Slow clients only ever see the latest state.
type eventStream struct {
	narrator Narrator
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newEventStream(narrator Narrator, allowedOrigins []string, logger *slog.Logger) *eventStream {
	return &eventStream{
		narrator: narrator,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func (e *eventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	updates := make(chan narration.Snapshot, 1)
	unsubscribe := e.narrator.Subscribe(func(s narration.Snapshot) {
		offerLatest(updates, s)
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go e.readLoop(conn, closed)

	initial := e.narrator.Snapshot()
	if err := writeSnapshot(conn, initial); err != nil {
		return
	}
	sent := initial.Version
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if snap.Version <= sent {
				continue
			}
			if err := writeSnapshot(conn, snap); err != nil {
				e.logger.Debug("event stream write failed", slog.String("error", err.Error()))
				return
			}
			sent = snap.Version
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards client messages and notices when the peer goes away.
func (e *eventStream) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap narration.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}

// offerLatest replaces any undelivered snapshot with s without blocking.
func offerLatest(ch chan narration.Snapshot, s narration.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case old := <-ch:
			if old.Version > s.Version {
				s = old
			}
		default:
		}
	}
}
