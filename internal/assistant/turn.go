package assistant

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Action is the server-declared tag classifying an assistant reply.
type Action string

const (
	ActionShowSlots       Action = "show_slots"
	ActionShowDeposit     Action = "show_deposit"
	ActionBookingComplete Action = "booking_complete"
	ActionCancelled       Action = "cancelled"
	ActionRescheduled     Action = "rescheduled"
	ActionEscalated       Action = "escalated"
)

// Slot is one bookable appointment time offered by the server.
type Slot struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	ArtistName string `json:"artistName,omitempty"`
}

// ActionPayload carries the structured data that accompanies an action tag.
type ActionPayload struct {
	Slots      []Slot `json:"slots,omitempty"`
	DepositURL string `json:"depositUrl,omitempty"`
	BookingRef string `json:"bookingRef,omitempty"`
	NewDate    string `json:"newDate,omitempty"`
	NewTime    string `json:"newTime,omitempty"`
}

// Turn is one message in the dialogue transcript.
//
// DisplayText is the revealed prefix of Content. Once RevealComplete is set the
// turn is frozen.
type Turn struct {
	ID             string        `json:"id"`
	Role           Role          `json:"role"`
	Content        string        `json:"content"`
	DisplayText    string        `json:"displayText"`
	Action         Action        `json:"action,omitempty"`
	Label          string        `json:"label,omitempty"`
	Payload        ActionPayload `json:"payload"`
	Annotation     string        `json:"annotation,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	RevealComplete bool          `json:"revealComplete"`
	Local          bool          `json:"local,omitempty"`
}

func newTurn(role Role, content string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// userTurn is shown in full immediately.
func userTurn(content string) Turn {
	t := newTurn(RoleUser, content)
	t.DisplayText = content
	t.RevealComplete = true
	return t
}

// localTurn is an assistant turn synthesized on the client without a network call.
func localTurn(content string, action Action) Turn {
	t := newTurn(RoleAssistant, content)
	t.DisplayText = content
	t.Action = action
	t.RevealComplete = true
	t.Local = true
	return t
}

// pendingTurn is an assistant reply waiting to be revealed.
func pendingTurn(content string, action Action, label string, payload ActionPayload) Turn {
	t := newTurn(RoleAssistant, content)
	t.Action = action
	t.Label = label
	t.Payload = payload
	return t
}
