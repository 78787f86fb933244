package assistant

import "strings"

// AffordanceKind names the interactive element rendered under a reply.
type AffordanceKind string

const (
	AffordanceSlotPicker   AffordanceKind = "slot_picker"
	AffordancePaymentLink  AffordanceKind = "payment_link"
	AffordanceConfirmation AffordanceKind = "confirmation"
	AffordanceCancellation AffordanceKind = "cancellation"
	AffordanceReschedule   AffordanceKind = "reschedule"
	AffordanceHandoff      AffordanceKind = "handoff"
)

// Affordance is the rendering instruction derived from a turn's action.
type Affordance struct {
	Kind      AffordanceKind `json:"kind"`
	Slots     []Slot         `json:"slots,omitempty"`
	URL       string         `json:"url,omitempty"`
	Reference string         `json:"reference,omitempty"`
	NewDate   string         `json:"newDate,omitempty"`
	NewTime   string         `json:"newTime,omitempty"`
}

// Completes reports whether showing the affordance ends the session.
func (a Affordance) Completes() bool {
	return a.Kind == AffordanceConfirmation || a.Kind == AffordanceHandoff
}

// Interpret maps a revealed turn to its affordance. It reports false while the
// turn is still revealing, for unknown tags and for missing required payload.
func Interpret(t Turn) (Affordance, bool) {
	if !t.RevealComplete || t.Role != RoleAssistant {
		return Affordance{}, false
	}
	p := t.Payload
	switch t.Action {
	case ActionShowSlots:
		slots := make([]Slot, 0, len(p.Slots))
		for _, s := range p.Slots {
			if strings.TrimSpace(s.Date) == "" || strings.TrimSpace(s.Time) == "" {
				continue
			}
			slots = append(slots, s)
		}
		if len(slots) == 0 {
			return Affordance{}, false
		}
		return Affordance{Kind: AffordanceSlotPicker, Slots: slots}, true
	case ActionShowDeposit:
		if strings.TrimSpace(p.DepositURL) == "" {
			return Affordance{}, false
		}
		return Affordance{Kind: AffordancePaymentLink, URL: p.DepositURL}, true
	case ActionBookingComplete:
		return Affordance{Kind: AffordanceConfirmation, Reference: p.BookingRef}, true
	case ActionCancelled:
		return Affordance{Kind: AffordanceCancellation, Reference: p.BookingRef}, true
	case ActionRescheduled:
		return Affordance{Kind: AffordanceReschedule, NewDate: p.NewDate, NewTime: p.NewTime}, true
	case ActionEscalated:
		return Affordance{Kind: AffordanceHandoff}, true
	default:
		return Affordance{}, false
	}
}

// completesSession reports whether a revealed action ends the dialogue.
func completesSession(a Action) bool {
	return a == ActionBookingComplete || a == ActionEscalated
}

var demoAnnotations = map[Action]string{
	ActionShowSlots:       "In production these slots come live from the studio's calendar.",
	ActionShowDeposit:     "A real calendar hold would be created here while the deposit is pending.",
	ActionBookingComplete: "The booking would be written to the calendar and a confirmation sent to the client.",
	ActionCancelled:       "The calendar event would be removed and the slot released.",
	ActionRescheduled:     "The existing calendar event would be moved to the new time.",
	ActionEscalated:       "The conversation would be handed to a team member with the full transcript.",
}

var demoLabels = map[Action]string{
	ActionShowSlots:       "Checked availability",
	ActionShowDeposit:     "Deposit requested",
	ActionBookingComplete: "Booking confirmed",
	ActionCancelled:       "Booking cancelled",
	ActionRescheduled:     "Booking rescheduled",
	ActionEscalated:       "Handed off",
}

// DemoAnnotation returns the explanatory note shown for an action in demo mode.
func DemoAnnotation(a Action) (string, bool) {
	s, ok := demoAnnotations[a]
	return s, ok
}

// DemoLabel returns the progress label for an action, preferring the
// server-supplied label.
func DemoLabel(a Action, serverLabel string) (string, bool) {
	if l := strings.TrimSpace(serverLabel); l != "" {
		return l, true
	}
	s, ok := demoLabels[a]
	return s, ok
}
