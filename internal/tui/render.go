package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
)

const maxSlotKeys = 9

// renderTranscript draws every turn with its affordance.
func renderTranscript(th theme, snap assistant.Snapshot, width int) string {
	wrap := lipgloss.NewStyle().Width(maxInt(20, width))
	var b strings.Builder
	for i, t := range snap.Turns {
		if i > 0 {
			b.WriteString("\n")
		}
		label := th.assistant.Render(assistantLabel(snap.Studio))
		if t.Role == assistant.RoleUser {
			label = th.user.Render("You")
		}
		text := t.DisplayText
		if !t.RevealComplete && t.ID == snap.RevealingID {
			text += "▌"
		}
		b.WriteString(label + "\n")
		b.WriteString(wrap.Render(text) + "\n")
		if t.Affordance != nil {
			b.WriteString(renderAffordance(th, *t.Affordance))
		}
		if t.Annotation != "" {
			b.WriteString(th.annotation.Render("ⓘ "+t.Annotation) + "\n")
		}
	}
	return b.String()
}

func assistantLabel(st assistant.Studio) string {
	if name := strings.TrimSpace(st.AssistantName); name != "" {
		return name
	}
	return "Assistant"
}

func renderAffordance(th theme, a assistant.Affordance) string {
	switch a.Kind {
	case assistant.AffordanceSlotPicker:
		var b strings.Builder
		for i, s := range a.Slots {
			if i >= maxSlotKeys {
				break
			}
			line := fmt.Sprintf("[%d] %s · %s", i+1, s.Date, s.Time)
			if s.ArtistName != "" {
				line += " · " + s.ArtistName
			}
			b.WriteString(th.affordance.Render(line) + "\n")
		}
		return b.String()
	case assistant.AffordancePaymentLink:
		return th.affordance.Render("Pay deposit: "+a.URL) + "\n"
	case assistant.AffordanceConfirmation:
		line := "✓ Booking confirmed"
		if a.Reference != "" {
			line += " · ref " + a.Reference
		}
		return th.confirmed.Render(line) + "\n"
	case assistant.AffordanceCancellation:
		line := "✕ Booking cancelled"
		if a.Reference != "" {
			line += " · ref " + a.Reference
		}
		return th.warning.Render(line) + "\n"
	case assistant.AffordanceReschedule:
		return th.confirmed.Render(fmt.Sprintf("↻ Moved to %s %s", a.NewDate, a.NewTime)) + "\n"
	case assistant.AffordanceHandoff:
		return th.warning.Render("→ Handed off to the studio team") + "\n"
	default:
		return ""
	}
}

// renderProgress draws the demo progress indicator.
func renderProgress(th theme, stage assistant.ProgressStage) string {
	parts := make([]string, 0, len(assistant.StageLabels()))
	for i, label := range assistant.StageLabels() {
		if assistant.ProgressStage(i) <= stage {
			parts = append(parts, th.stageDone.Render("● "+label))
		} else {
			parts = append(parts, th.stageTodo.Render("○ "+label))
		}
	}
	return strings.Join(parts, th.stageTodo.Render(" ─ "))
}

// offeredSlots returns the slots of the newest slot picker, if it is the last turn.
func offeredSlots(snap assistant.Snapshot) []assistant.Slot {
	if len(snap.Turns) == 0 {
		return nil
	}
	last := snap.Turns[len(snap.Turns)-1]
	if last.Affordance == nil || last.Affordance.Kind != assistant.AffordanceSlotPicker {
		return nil
	}
	return last.Affordance.Slots
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
