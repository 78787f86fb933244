package demo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
)

const (
	maxBodyBytes   = 64 << 10
	demoDepositURL = "https://pay.example.com/demo-deposit"
)

// Workflow is a scripted stand-in for the booking workflow. It walks a visitor
// through availability, deposit and confirmation without touching a real
// calendar, so demos and local runs work offline. Point DEMO_WEBHOOK_URL or
// CHAT_ENDPOINT_URL at it.
type Workflow struct {
	now func() time.Time
}

// NewWorkflow creates a scripted workflow.
func NewWorkflow() *Workflow {
	return &Workflow{now: time.Now}
}

// HandleChat answers one chat turn.
func (w *Workflow) HandleChat(rw http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(rw, "invalid request body", http.StatusBadRequest)
		return
	}
	resp := w.Reply(req)
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(rw).Encode(resp)
}

// Reply picks the scripted response for a request.
func (w *Workflow) Reply(req assistant.ChatRequest) assistant.ChatResponse {
	msg := strings.ToLower(strings.TrimSpace(req.Message))
	entities := map[string]any{}
	resp := assistant.ChatResponse{IsDemoMode: true, ExtractedEntities: entities}

	switch {
	case strings.Contains(msg, "cancel"):
		resp.Response = "Done. Your appointment is cancelled and the deposit will be refunded within 5 business days."
		resp.Action = assistant.ActionCancelled
		resp.BookingID = bookingRef(req)
	case strings.Contains(msg, "reschedul"):
		slot := w.slots()[1]
		resp.Response = fmt.Sprintf("No problem. I've moved you to %s at %s.", slot.Date, slot.Time)
		resp.Action = assistant.ActionRescheduled
		resp.ActionLabel = "Moved the appointment"
		resp.NewDate, resp.NewTime = slot.Date, slot.Time
	case strings.HasPrefix(msg, "i'd like the ") && strings.Contains(msg, " slot on "):
		entities["slot"] = strings.TrimPrefix(req.Message, "I'd like the ")
		resp.Response = "Great choice! A $50 deposit holds the slot. It comes off your final price."
		resp.Action = assistant.ActionShowDeposit
		resp.ActionLabel = "Requested the deposit"
		resp.DepositURL = demoDepositURL
	case containsAny(msg, "paid", "deposit done", "sent the deposit", "confirm"):
		resp.Response = "Deposit received. You're booked! We'll text a reminder the day before."
		resp.Action = assistant.ActionBookingComplete
		resp.ActionLabel = "Confirmed the booking"
		resp.BookingID = "DEMO-" + strings.ToUpper(uuid.NewString()[:6])
	case containsAny(msg, "human", "person", "someone", "manager"):
		resp.Response = "I'll pass you to the studio team. Someone will reach out shortly."
		resp.Action = assistant.ActionEscalated
	case containsAny(msg, "opening", "available", "availability", "when", "book", "appointment", "piece", "cut", "facial"):
		entities["intent"] = "book"
		resp.Response = "Here are the next openings. Tap one to hold it."
		resp.Action = assistant.ActionShowSlots
		resp.ActionLabel = "Checked live availability"
		resp.AvailableSlots = w.slots()
	default:
		resp.Response = "Happy to help! Tell me what you'd like done and I'll find an opening."
	}
	return resp
}

// slots offers three openings over the coming days.
func (w *Workflow) slots() []assistant.Slot {
	base := w.now().AddDate(0, 0, 1)
	times := []string{"10:00 AM", "1:30 PM", "4:00 PM"}
	artists := []string{"Mo", "Jules", ""}
	out := make([]assistant.Slot, len(times))
	for i := range times {
		out[i] = assistant.Slot{
			Date:       base.AddDate(0, 0, i).Format("Mon Jan 2"),
			Time:       times[i],
			ArtistName: artists[i],
		}
	}
	return out
}

func bookingRef(req assistant.ChatRequest) string {
	if ref := strings.TrimSpace(req.BookingRef); ref != "" {
		return ref
	}
	return "DEMO-BOOKING"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
