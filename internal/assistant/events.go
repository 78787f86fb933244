package assistant

import (
	"encoding/json"
	"time"

	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

// SessionEvent is one structured entry in the session lifecycle log.
// All events share the same base fields so they can be filtered with grep:
//
//	grep '"event":"request_failed"' /var/log/assistant.log
type SessionEvent struct {
	Time      string         `json:"time"`
	Event     string         `json:"event"`
	SessionID string         `json:"session_id"`
	Studio    string         `json:"studio"`
	Demo      bool           `json:"demo,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventLogger emits structured session events. Demo sessions never include
// message text.
type EventLogger struct {
	logger *logging.Logger
}

// NewEventLogger creates a session event logger.
func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Log emits a session event.
func (e *EventLogger) Log(event, sessionID, studio string, demo bool, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	evt := SessionEvent{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		SessionID: sessionID,
		Studio:    studio,
		Demo:      demo,
		Data:      data,
	}
	b, _ := json.Marshal(evt)
	e.logger.Info(string(b))
}

func (e *EventLogger) SessionOpened(sessionID, studio string, demo bool, bookingRef string) {
	e.Log("session_opened", sessionID, studio, demo, map[string]any{
		"managing_booking": bookingRef != "",
	})
}

func (e *EventLogger) TurnSubmitted(sessionID, studio string, demo bool, turn int, message string) {
	data := map[string]any{"turn": turn, "length": len(message)}
	if !demo {
		data["message"] = truncate(message, 200)
	}
	e.Log("turn_submitted", sessionID, studio, demo, data)
}

func (e *EventLogger) ReplyReceived(sessionID, studio string, demo bool, turn int, action Action) {
	e.Log("reply_received", sessionID, studio, demo, map[string]any{
		"turn":   turn,
		"action": string(action),
	})
}

func (e *EventLogger) ReplyRevealed(sessionID, studio string, demo bool, action Action, affordance bool) {
	e.Log("reply_revealed", sessionID, studio, demo, map[string]any{
		"action":     string(action),
		"affordance": affordance,
	})
}

func (e *EventLogger) TurnLimitReached(sessionID, studio string, demo bool, turns int) {
	e.Log("turn_limit_reached", sessionID, studio, demo, map[string]any{"turns": turns})
}

func (e *EventLogger) RequestFailed(sessionID, studio string, demo bool, turn int, kind string, err error) {
	e.Log("request_failed", sessionID, studio, demo, map[string]any{
		"turn":  turn,
		"kind":  kind,
		"error": err.Error(),
	})
}

func (e *EventLogger) SessionCompleted(sessionID, studio string, demo bool, action Action, turns int) {
	e.Log("session_completed", sessionID, studio, demo, map[string]any{
		"action": string(action),
		"turns":  turns,
	})
}

func (e *EventLogger) SessionDiscarded(sessionID, studio string, demo bool, turns int, completed bool) {
	e.Log("session_discarded", sessionID, studio, demo, map[string]any{
		"turns":     turns,
		"completed": completed,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
