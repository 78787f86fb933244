package webchat

import (
	"sync"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

// connWriter pushes controller snapshots to one WebSocket. Snapshots may be
// published from several goroutines, so stale versions are dropped here.
type connWriter struct {
	conn   *websocket.Conn
	logger *logging.Logger

	mu          sync.Mutex
	lastVersion uint64
	broken      bool
}

func newConnWriter(conn *websocket.Conn, logger *logging.Logger) *connWriter {
	return &connWriter{conn: conn, logger: logger}
}

func (w *connWriter) snapshot(snap assistant.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if snap.Version <= w.lastVersion {
		return
	}
	w.lastVersion = snap.Version
	w.sendLocked(OutboundMessage{Type: "snapshot", Snapshot: &snap})
}

func (w *connWriter) send(msg OutboundMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sendLocked(msg)
}

func (w *connWriter) sendLocked(msg OutboundMessage) {
	if w.broken {
		return
	}
	if err := websocket.JSON.Send(w.conn, msg); err != nil {
		w.broken = true
		w.logger.Debug("webchat: send failed", "type", msg.Type, "error", err)
	}
}
