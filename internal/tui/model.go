package tui

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
)

// Session is the part of the controller the terminal surface drives.
type Session interface {
	Open() string
	Close()
	Submit(text string) bool
	SelectSlot(slot assistant.Slot) bool
	SelectSuggestion(text string) bool
	Snapshot() assistant.Snapshot
}

type quitMsg struct{}

// Model is the bubbletea program for the terminal booking surface.
type Model struct {
	session Session
	feed    *Feed
	settle  time.Duration
	theme   theme

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	snap     assistant.Snapshot
	width    int
	height   int
	status   string
	quitting bool
}

// NewModel builds the model. The session should already be open so the first
// snapshot carries the greeting.
func NewModel(session Session, feed *Feed, settle time.Duration) Model {
	in := textinput.New()
	in.Placeholder = "Type a message, or a slot number"
	in.CharLimit = assistant.DefaultMaxInputChars
	in.Prompt = "› "
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points

	vp := viewport.New(80, 20)

	m := Model{
		session:  session,
		feed:     feed,
		settle:   settle,
		theme:    newTheme(),
		input:    in,
		viewport: vp,
		spinner:  sp,
		snap:     session.Snapshot(),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.feed.next())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case snapshotMsg:
		snap := assistant.Snapshot(msg)
		if snap.Version >= m.snap.Version {
			m.snap = snap
			m.refresh()
		}
		return m, m.feed.next()

	case autoClosedMsg:
		m.status = "Booking confirmed. Closing..."
		return m, tea.Batch(m.feed.next(), m.quitAfterSettle())

	case quitMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.session.Close()
		m.quitting = true
		return m, tea.Quit
	case "esc":
		m.session.Close()
		m.status = "Closing..."
		return m, m.quitAfterSettle()
	case "ctrl+n":
		m.session.Close()
		m.session.Open()
		m.status = ""
		m.input.Reset()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit routes the input line: a bare number picks an offered slot, a bare
// number with no slots on screen picks a suggestion, anything else is sent.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= maxSlotKeys {
		if slots := offeredSlots(m.snap); n <= len(slots) {
			m.accept(m.session.SelectSlot(slots[n-1]))
			return m, nil
		}
		if n <= len(m.snap.Suggestions) {
			m.accept(m.session.SelectSuggestion(m.snap.Suggestions[n-1]))
			return m, nil
		}
	}
	m.accept(m.session.Submit(text))
	return m, nil
}

func (m *Model) accept(ok bool) {
	if ok {
		m.input.Reset()
		m.status = ""
		return
	}
	m.status = rejectStatus(m.session.Snapshot())
}

func rejectStatus(snap assistant.Snapshot) string {
	switch {
	case snap.SessionID == "":
		return "Chat is closed. Press ctrl+n to start over."
	case snap.Completed:
		return "This conversation has ended. Press ctrl+n to start over."
	case snap.InFlight || snap.RevealingID != "":
		return "Please wait for the reply."
	default:
		return "That message can't be sent."
	}
}

func (m Model) quitAfterSettle() tea.Cmd {
	return tea.Tick(m.settle, func(time.Time) tea.Msg { return quitMsg{} })
}

func (m *Model) layout() {
	headerHeight := 3
	if m.snap.Demo {
		headerHeight++
	}
	inputHeight := 5
	m.viewport.Width = maxInt(20, m.width-2)
	m.viewport.Height = maxInt(3, m.height-headerHeight-inputHeight)
	m.input.Width = maxInt(10, m.width-8)
}

func (m *Model) refresh() {
	m.layout()
	m.viewport.SetContent(renderTranscript(m.theme, m.snap, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	th := m.theme
	title := "Booking"
	if name := strings.TrimSpace(m.snap.Studio.Name); name != "" {
		title = name + " · Booking"
	}
	header := th.header.Render(title)
	if m.snap.Demo {
		header += "\n" + th.demoBadge.Render("DEMO ") + renderProgress(th, m.snap.Progress)
	}

	var footer []string
	if m.snap.InFlight {
		footer = append(footer, th.status.Render(m.spinner.View()+" "+assistantLabel(m.snap.Studio)+" is typing"))
	}
	if len(m.snap.Suggestions) > 0 {
		var parts []string
		for i, s := range m.snap.Suggestions {
			parts = append(parts, "["+strconv.Itoa(i+1)+"] "+s)
		}
		footer = append(footer, th.suggestion.Render(strings.Join(parts, "  ")))
	}
	if m.status != "" {
		footer = append(footer, th.status.Render(m.status))
	}
	footer = append(footer,
		th.inputPanel.Render(m.input.View()),
		th.helpText.Render("enter send · 1-9 pick · esc close · ctrl+n new chat · ctrl+c quit"),
	)

	body := lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), strings.Join(footer, "\n"))
	return th.root.Render(body)
}

// Run starts the program on the alternate screen and blocks until it exits.
func Run(session Session, feed *Feed, settle time.Duration) error {
	p := tea.NewProgram(NewModel(session, feed, settle), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
