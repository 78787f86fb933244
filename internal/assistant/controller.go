package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

const (
	DefaultMaxTurns       = 20
	DefaultMaxInputChars  = 2000
	DefaultHistoryWindow  = 10
	DefaultAutoCloseDelay = 3 * time.Second
	DefaultSettleDelay    = 300 * time.Millisecond

	archiveTimeout = 5 * time.Second
)

const (
	turnLimitText     = "We've covered a lot here, so let's get a person involved. Please use the booking form or contact the studio directly and the team will take it from here."
	unreachableText   = "Sorry, I'm having trouble connecting right now. Please try again in a moment."
	unavailableText   = "Sorry, the booking assistant is unavailable right now."
	emptyReplyText    = "Sorry, I didn't quite catch that. Could you put it another way?"
	formFallbackText  = " You can also book with our form: %s"
	defaultAssistant  = "the booking assistant"
	managingGreeting  = "Hi! I can help you cancel or reschedule booking %s. What would you like to do?"
	openingGreeting   = "Hi! I'm %s for %s. Tell me what you'd like to book and when works for you, and I'll find a time."
	anonymousGreeting = "Hi! Tell me what you'd like to book and when works for you, and I'll find a time."
)

// State is the controller's position in the session state machine.
type State string

const (
	StateClosed        State = "closed"
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaiting_reply"
	StateRevealing     State = "revealing"
	StateCompleted     State = "completed"
	StateClosing       State = "closing"
	StateDiscarded     State = "discarded"
)

// Studio is the tenant identity a controller is built for.
type Studio struct {
	Slug          string `json:"slug"`
	Name          string `json:"name"`
	Vertical      string `json:"vertical,omitempty"`
	AssistantName string `json:"assistantName,omitempty"`
	Greeting      string `json:"greeting,omitempty"`
	FormURL       string `json:"formUrl,omitempty"`
}

// Limits bound a session.
type Limits struct {
	MaxTurns       int
	MaxInputChars  int
	HistoryWindow  int
	AutoCloseDelay time.Duration
	SettleDelay    time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxTurns <= 0 {
		l.MaxTurns = DefaultMaxTurns
	}
	if l.MaxInputChars <= 0 {
		l.MaxInputChars = DefaultMaxInputChars
	}
	if l.HistoryWindow <= 0 {
		l.HistoryWindow = DefaultHistoryWindow
	}
	if l.AutoCloseDelay <= 0 {
		l.AutoCloseDelay = DefaultAutoCloseDelay
	}
	if l.SettleDelay < 0 {
		l.SettleDelay = 0
	}
	return l
}

// SessionMetrics receives session lifecycle observations.
type SessionMetrics interface {
	ObserveSession(event string)
	ObserveTurn(outcome string)
}

// TurnArchive stores finished turns for operator review. It is write-only:
// nothing is ever read back into a session.
type TurnArchive interface {
	ArchiveTurn(ctx context.Context, sessionID, studio string, t Turn) error
}

// Options configure a Controller.
type Options struct {
	Studio     Studio
	BookingRef string
	Contact    *Contact
	Demo       bool
	Limits     Limits
	Reveal     RevealConfig

	Sender  Sender
	Logger  *logging.Logger
	Events  *EventLogger
	Metrics SessionMetrics
	Archive TurnArchive

	// OnChange receives a snapshot after every state change. It is called
	// without internal locks held, so it may call back into the controller.
	OnChange func(Snapshot)
	// OnAutoClose runs after a confirmed booking has been on screen for
	// Limits.AutoCloseDelay and the controller has closed itself.
	OnAutoClose func()
}

// TurnView is a turn plus the affordance it renders, if any.
type TurnView struct {
	Turn
	Affordance *Affordance `json:"affordance,omitempty"`
}

// Snapshot is a consistent copy of the visible session state. Version grows
// with every change so consumers can drop stale snapshots.
type Snapshot struct {
	Version     uint64         `json:"version"`
	State       State          `json:"state"`
	SessionID   string         `json:"sessionId,omitempty"`
	Studio      Studio         `json:"studio"`
	TurnCount   int            `json:"turnCount"`
	Completed   bool           `json:"completed"`
	InFlight    bool           `json:"inFlight"`
	RevealingID string         `json:"revealingId,omitempty"`
	Turns       []TurnView     `json:"turns"`
	Entities    map[string]any `json:"entities,omitempty"`
	Demo        bool           `json:"demo"`
	DemoSteps   []DemoStep     `json:"demoSteps,omitempty"`
	Progress    ProgressStage  `json:"progress"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Controller drives one dialogue surface. It owns at most one live Session at a
// time and serializes every state change behind a single mutex; the in-flight
// and revealing flags gate new submissions.
type Controller struct {
	opts    Options
	limits  Limits
	sender  Sender
	logger  *logging.Logger
	events  *EventLogger
	metrics SessionMetrics
	archive TurnArchive

	mu          sync.Mutex
	session     *Session
	demo        bool
	generation  uint64
	version     uint64
	state       State
	closing     bool
	inFlight    bool
	revealingID string
	revealer    *Revealer
	cancelSend  context.CancelFunc
	autoClose   *time.Timer
	settle      *time.Timer
}

// NewController builds a controller. The session starts when Open is called.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	events := opts.Events
	if events == nil {
		events = NewEventLogger(logger)
	}
	return &Controller{
		opts:    opts,
		limits:  opts.Limits.withDefaults(),
		sender:  opts.Sender,
		logger:  logger,
		events:  events,
		metrics: opts.Metrics,
		archive: opts.Archive,
		state:   StateClosed,
	}
}

// Open starts a fresh Session with a synthesized opening turn and returns its
// id. If a closed Session is still settling it is discarded first. Calling
// Open on an open surface returns the current Session id.
func (c *Controller) Open() string {
	c.mu.Lock()
	if c.session != nil && !c.closing {
		id := c.session.ID
		c.mu.Unlock()
		return id
	}
	var discarded *Session
	if c.session != nil {
		discarded = c.session
		c.teardownLocked()
	}
	c.generation++
	s := newSession(c.generation)
	c.demo = c.opts.Demo
	s.turns.Append(localTurn(c.greeting(), ""))
	c.session = s
	c.state = StateIdle
	snap := c.snapshotLocked()
	demo := c.demo
	c.mu.Unlock()

	if discarded != nil {
		c.events.SessionDiscarded(discarded.ID, c.opts.Studio.Slug, demo, discarded.TurnCount, discarded.Completed)
		c.observeSession("discarded")
	}
	c.events.SessionOpened(s.ID, c.opts.Studio.Slug, demo, c.opts.BookingRef)
	c.observeSession("opened")
	c.publish(snap)
	return s.ID
}

// Close closes the surface: pending network, reveal and auto-close work is
// canceled at once and the Session is discarded after the settle delay.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.session == nil || c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.state = StateClosing
	c.inFlight = false
	c.revealingID = ""
	c.cancelPendingLocked()
	gen := c.generation
	c.settle = time.AfterFunc(c.limits.SettleDelay, func() { c.discard(gen) })
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) discard(gen uint64) {
	c.mu.Lock()
	s := c.session
	if s == nil || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	snap := c.snapshotLocked()
	demo := c.demo
	c.mu.Unlock()

	c.events.SessionDiscarded(s.ID, c.opts.Studio.Slug, demo, s.TurnCount, s.Completed)
	c.observeSession("discarded")
	c.publish(snap)
}

// teardownLocked drops the Session and everything scheduled for it.
func (c *Controller) teardownLocked() {
	c.cancelPendingLocked()
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	c.session = nil
	c.closing = false
	c.inFlight = false
	c.revealingID = ""
	c.state = StateDiscarded
}

func (c *Controller) cancelPendingLocked() {
	if c.cancelSend != nil {
		c.cancelSend()
		c.cancelSend = nil
	}
	if c.revealer != nil {
		c.revealer.Cancel()
		c.revealer = nil
	}
	if c.autoClose != nil {
		c.autoClose.Stop()
		c.autoClose = nil
	}
}

// liveLocked returns the Session scheduled work belongs to, or nil when that
// Session was closed or replaced.
func (c *Controller) liveLocked(gen uint64) *Session {
	if c.session == nil || c.closing || c.session.generation != gen {
		return nil
	}
	return c.session
}

// Submit sends a user message. It reports false, doing nothing, when the text
// is empty or too long, or when the session is completed, closing, awaiting a
// reply or revealing one.
func (c *Controller) Submit(text string) bool {
	msg := strings.TrimSpace(text)
	c.mu.Lock()
	s := c.session
	if s == nil || c.closing || msg == "" || utf8.RuneCountInString(msg) > c.limits.MaxInputChars ||
		s.Completed || c.inFlight || c.revealingID != "" {
		c.mu.Unlock()
		return false
	}
	demo := c.demo

	if s.TurnCount >= c.limits.MaxTurns {
		t := localTurn(turnLimitText, ActionEscalated)
		s.turns.Append(t)
		s.Completed = true
		c.state = StateCompleted
		turns := s.TurnCount
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.events.TurnLimitReached(s.ID, c.opts.Studio.Slug, demo, turns)
		c.observeSession("turn_limit")
		c.archiveTurn(s.ID, demo, t)
		c.publish(snap)
		return true
	}

	history := s.turns.History(c.limits.HistoryWindow)
	ut := userTurn(msg)
	s.turns.Append(ut)
	s.TurnCount++
	c.inFlight = true
	c.state = StateAwaitingReply
	req := ChatRequest{
		Message:             msg,
		StudioSlug:          c.opts.Studio.Slug,
		SessionID:           s.ID,
		TurnCount:           s.TurnCount,
		ConversationHistory: history,
		ExtractedEntities:   s.entitiesCopy(),
		Completed:           false,
		BookingRef:          c.opts.BookingRef,
		Contact:             c.opts.Contact,
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelSend = cancel
	gen := s.generation
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.events.TurnSubmitted(s.ID, c.opts.Studio.Slug, demo, req.TurnCount, msg)
	c.observeTurn("submitted")
	c.publish(snap)

	go c.send(ctx, gen, req, ut)
	return true
}

// SelectSlot submits a natural-language request for an offered slot.
func (c *Controller) SelectSlot(slot Slot) bool {
	return c.Submit(SlotRequestText(slot))
}

// SelectSuggestion submits a suggested reply as if it had been typed.
func (c *Controller) SelectSuggestion(text string) bool {
	return c.Submit(text)
}

// SlotRequestText phrases a slot choice the way a visitor would type it.
func SlotRequestText(slot Slot) string {
	text := fmt.Sprintf("I'd like the %s slot on %s", strings.TrimSpace(slot.Time), strings.TrimSpace(slot.Date))
	if artist := strings.TrimSpace(slot.ArtistName); artist != "" {
		text += " with " + artist
	}
	return text
}

// send runs off the lock. The user turn is archived only once the exchange
// resolves, when the server has had a chance to declare demo mode.
func (c *Controller) send(ctx context.Context, gen uint64, req ChatRequest, ut Turn) {
	if c.sender == nil {
		c.handleFailure(gen, req.TurnCount, ut, &NetworkError{Attempts: 0, Err: errors.New("no chat sender configured")})
		return
	}
	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		c.handleFailure(gen, req.TurnCount, ut, err)
		return
	}
	c.handleReply(gen, req.TurnCount, ut, resp)
}

func (c *Controller) handleReply(gen uint64, turn int, ut Turn, resp *ChatResponse) {
	c.mu.Lock()
	s := c.liveLocked(gen)
	if s == nil {
		c.mu.Unlock()
		return
	}
	c.inFlight = false
	c.cancelSend = nil
	s.mergeEntities(resp.ExtractedEntities)
	if resp.IsDemoMode {
		c.demo = true
	}
	text := resp.Response
	if strings.TrimSpace(text) == "" {
		text = emptyReplyText
	}
	t := pendingTurn(text, resp.Action, resp.ActionLabel, resp.Payload())
	s.turns.Append(t)
	c.revealingID = t.ID
	c.state = StateRevealing
	r := NewRevealer(c.opts.Reveal)
	c.revealer = r
	snap := c.snapshotLocked()
	demo := c.demo
	c.mu.Unlock()

	c.events.ReplyReceived(s.ID, c.opts.Studio.Slug, demo, turn, resp.Action)
	c.observeTurn("replied")
	c.archiveTurn(s.ID, demo, ut)
	c.publish(snap)

	id := t.ID
	r.Start(text,
		func(prefix string) { c.revealStep(gen, id, prefix) },
		func() { c.revealDone(gen, id) },
	)
}

func (c *Controller) revealStep(gen uint64, id, prefix string) {
	c.mu.Lock()
	s := c.liveLocked(gen)
	if s == nil || c.revealingID != id {
		c.mu.Unlock()
		return
	}
	if err := s.turns.Reveal(id, prefix); err != nil {
		c.mu.Unlock()
		c.logger.Error("reveal step rejected", "session_id", s.ID, "turn_id", id, "error", err)
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) revealDone(gen uint64, id string) {
	c.mu.Lock()
	s := c.liveLocked(gen)
	if s == nil || c.revealingID != id {
		c.mu.Unlock()
		return
	}
	t, err := s.turns.Finish(id)
	c.revealingID = ""
	c.revealer = nil
	if err != nil {
		c.state = StateIdle
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Error("reveal finish rejected", "session_id", s.ID, "turn_id", id, "error", err)
		c.publish(snap)
		return
	}
	demo := c.demo
	if demo {
		if note, ok := DemoAnnotation(t.Action); ok {
			s.turns.annotate(id, note)
			t.Annotation = note
		}
		if _, known := demoLabels[t.Action]; known {
			label, _ := DemoLabel(t.Action, t.Label)
			s.DemoSteps = append(s.DemoSteps, DemoStep{Action: t.Action, Label: label})
		}
	}
	completed := completesSession(t.Action)
	if completed {
		s.Completed = true
		c.state = StateCompleted
		if t.Action == ActionBookingComplete && !demo {
			c.autoClose = time.AfterFunc(c.limits.AutoCloseDelay, func() { c.fireAutoClose(gen) })
		}
	} else {
		c.state = StateIdle
	}
	_, affordance := Interpret(t)
	turns := s.TurnCount
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.events.ReplyRevealed(s.ID, c.opts.Studio.Slug, demo, t.Action, affordance)
	if completed {
		c.events.SessionCompleted(s.ID, c.opts.Studio.Slug, demo, t.Action, turns)
		c.observeSession(string(t.Action))
	}
	c.archiveTurn(s.ID, demo, t)
	c.publish(snap)
}

func (c *Controller) fireAutoClose(gen uint64) {
	c.mu.Lock()
	live := c.liveLocked(gen) != nil
	c.mu.Unlock()
	if !live {
		return
	}
	c.Close()
	if c.opts.OnAutoClose != nil {
		c.opts.OnAutoClose()
	}
}

func (c *Controller) handleFailure(gen uint64, turn int, ut Turn, err error) {
	c.mu.Lock()
	s := c.liveLocked(gen)
	if s == nil {
		c.mu.Unlock()
		return
	}
	c.inFlight = false
	c.cancelSend = nil
	kind := "network"
	text := unreachableText
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		kind = "server"
		text = unavailableText
	}
	if form := strings.TrimSpace(c.opts.Studio.FormURL); form != "" {
		text += fmt.Sprintf(formFallbackText, form)
	}
	s.turns.Append(localTurn(text, ""))
	c.state = StateIdle
	snap := c.snapshotLocked()
	demo := c.demo
	c.mu.Unlock()

	c.events.RequestFailed(s.ID, c.opts.Studio.Slug, demo, turn, kind, err)
	c.observeTurn("failed_" + kind)
	c.archiveTurn(s.ID, demo, ut)
	c.publish(snap)
}

// Snapshot returns the current visible state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildSnapshotLocked(c.version)
}

// State reports the controller's state machine position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) snapshotLocked() Snapshot {
	c.version++
	return c.buildSnapshotLocked(c.version)
}

func (c *Controller) buildSnapshotLocked(version uint64) Snapshot {
	snap := Snapshot{
		Version:     version,
		State:       c.state,
		Studio:      c.opts.Studio,
		InFlight:    c.inFlight,
		RevealingID: c.revealingID,
		Demo:        c.demo,
	}
	s := c.session
	if s == nil {
		return snap
	}
	snap.SessionID = s.ID
	snap.TurnCount = s.TurnCount
	snap.Completed = s.Completed
	snap.Entities = s.entitiesCopy()
	snap.DemoSteps = append([]DemoStep(nil), s.DemoSteps...)
	snap.Progress = DemoProgress(s.DemoSteps)
	turns := s.turns.All()
	snap.Turns = make([]TurnView, 0, len(turns))
	for _, t := range turns {
		view := TurnView{Turn: t}
		if a, ok := Interpret(t); ok {
			view.Affordance = &a
		}
		snap.Turns = append(snap.Turns, view)
	}
	if s.TurnCount == 0 && !s.Completed && !c.closing {
		snap.Suggestions = Suggestions(c.opts.Studio.Vertical, c.opts.BookingRef != "")
	}
	return snap
}

func (c *Controller) publish(snap Snapshot) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(snap)
	}
}

func (c *Controller) greeting() string {
	if ref := strings.TrimSpace(c.opts.BookingRef); ref != "" {
		return fmt.Sprintf(managingGreeting, ref)
	}
	st := c.opts.Studio
	if g := strings.TrimSpace(st.Greeting); g != "" {
		return g
	}
	if strings.TrimSpace(st.Name) == "" {
		return anonymousGreeting
	}
	name := strings.TrimSpace(st.AssistantName)
	if name == "" {
		name = defaultAssistant
	}
	return fmt.Sprintf(openingGreeting, name, st.Name)
}

func (c *Controller) archiveTurn(sessionID string, demo bool, t Turn) {
	if c.archive == nil || demo {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := c.archive.ArchiveTurn(ctx, sessionID, c.opts.Studio.Slug, t); err != nil {
			c.logger.Error("archive turn failed", "session_id", sessionID, "turn_id", t.ID, "error", err)
		}
	}()
}

func (c *Controller) observeSession(event string) {
	if c.metrics != nil {
		c.metrics.ObserveSession(event)
	}
}

func (c *Controller) observeTurn(outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveTurn(outcome)
	}
}

var verticalSuggestions = map[string][]string{
	"tattoo": {
		"I'm thinking about a small fine-line piece",
		"When is your next opening?",
		"How much is the deposit?",
	},
	"salon": {
		"I'd like a cut and color",
		"When is your next opening?",
		"Do you take walk-ins?",
	},
	"spa": {
		"I'd like to book a facial",
		"When is your next opening?",
		"What treatments do you recommend?",
	},
}

var defaultSuggestions = []string{
	"I'd like to book an appointment",
	"When is your next opening?",
	"How much is the deposit?",
}

var managingSuggestions = []string{
	"I need to cancel my appointment",
	"I'd like to reschedule",
}

// Suggestions returns the quick replies offered before the first message.
func Suggestions(vertical string, managing bool) []string {
	var src []string
	switch {
	case managing:
		src = managingSuggestions
	default:
		src = verticalSuggestions[strings.ToLower(strings.TrimSpace(vertical))]
		if src == nil {
			src = defaultSuggestions
		}
	}
	return append([]string(nil), src...)
}
