package webchat

import (
	"net/http"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
	"github.com/wolfman30/studio-booking-assistant/internal/tenancy"
	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

// SenderFactory builds the chat sender for one connection.
type SenderFactory func(demo bool) (assistant.Sender, error)

// Config wires a Handler.
type Config struct {
	Registry  *tenancy.Registry
	NewSender SenderFactory
	Limits    assistant.Limits
	Reveal    assistant.RevealConfig
	Archive   assistant.TurnArchive
	Metrics   assistant.SessionMetrics
	Logger    *logging.Logger
}

// Handler serves the WebSocket dialogue surface. Each connection owns one
// Controller; nothing is shared between connections and nothing survives a
// disconnect.
type Handler struct {
	cfg    Config
	logger *logging.Logger
	events *assistant.EventLogger
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type string          `json:"type"` // "message", "select_slot", "suggestion", "open", "close", "ping"
	Text string          `json:"text,omitempty"`
	Slot *assistant.Slot `json:"slot,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type     string              `json:"type"` // "snapshot", "pong", "close", "error"
	Text     string              `json:"text,omitempty"`
	Snapshot *assistant.Snapshot `json:"snapshot,omitempty"`
}

// NewHandler creates a web chat handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = tenancy.NewRegistry()
	}
	return &Handler{cfg: cfg, logger: logger, events: assistant.NewEventLogger(logger)}
}

// HandleWebSocket upgrades to WebSocket and runs one dialogue surface.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	q := r.URL.Query()
	studio, err := h.cfg.Registry.Resolve(q.Get("studio"))
	if err != nil {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "unknown studio"})
		return
	}
	demo := q.Get("demo") == "true"
	sender, err := h.cfg.NewSender(demo)
	if err != nil {
		h.logger.Error("webchat: build chat sender", "studio", studio.Slug, "error", err)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "booking assistant unavailable"})
		return
	}

	out := newConnWriter(conn, h.logger)
	ctrl := assistant.NewController(assistant.Options{
		Studio:      studio,
		BookingRef:  strings.TrimSpace(q.Get("booking")),
		Demo:        demo,
		Limits:      h.cfg.Limits,
		Reveal:      h.cfg.Reveal,
		Sender:      sender,
		Logger:      h.logger,
		Events:      h.events,
		Metrics:     h.cfg.Metrics,
		Archive:     h.cfg.Archive,
		OnChange:    out.snapshot,
		OnAutoClose: func() { out.send(OutboundMessage{Type: "close"}) },
	})
	defer ctrl.Close()

	sessionID := ctrl.Open()
	h.logger.Info("webchat: connection opened", "studio", studio.Slug, "session_id", sessionID, "demo", demo)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "studio", studio.Slug, "error", err)
			return
		}
		h.dispatch(ctrl, out, msg)
	}
}

func (h *Handler) dispatch(ctrl *assistant.Controller, out *connWriter, msg InboundMessage) {
	switch msg.Type {
	case "ping":
		out.send(OutboundMessage{Type: "pong"})
	case "message":
		if !ctrl.Submit(msg.Text) {
			out.send(OutboundMessage{Type: "error", Text: rejectReason(ctrl.Snapshot(), msg.Text)})
		}
	case "suggestion":
		if !ctrl.SelectSuggestion(msg.Text) {
			out.send(OutboundMessage{Type: "error", Text: rejectReason(ctrl.Snapshot(), msg.Text)})
		}
	case "select_slot":
		if msg.Slot == nil || !ctrl.SelectSlot(*msg.Slot) {
			out.send(OutboundMessage{Type: "error", Text: "slot not accepted"})
		}
	case "open":
		ctrl.Open()
	case "close":
		ctrl.Close()
	default:
		out.send(OutboundMessage{Type: "error", Text: "unknown message type"})
	}
}

// rejectReason explains why a submission was ignored.
func rejectReason(snap assistant.Snapshot, text string) string {
	switch {
	case snap.SessionID == "" || snap.State == assistant.StateClosing:
		return "chat is closed"
	case strings.TrimSpace(text) == "":
		return "message is empty"
	case snap.Completed:
		return "conversation has ended"
	case snap.InFlight || snap.RevealingID != "":
		return "please wait for the reply"
	default:
		return "message is too long"
	}
}
