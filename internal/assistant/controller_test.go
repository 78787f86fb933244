package assistant

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

const waitFor = 2 * time.Second
const tick = 2 * time.Millisecond

type fakeSender struct {
	mu       sync.Mutex
	requests []ChatRequest
	reply    func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

func (f *fakeSender) Send(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply := f.reply
	f.mu.Unlock()
	return reply(ctx, req)
}

func (f *fakeSender) calls() []ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatRequest(nil), f.requests...)
}

func replyWith(resp ChatResponse) func(context.Context, ChatRequest) (*ChatResponse, error) {
	return func(context.Context, ChatRequest) (*ChatResponse, error) {
		r := resp
		return &r, nil
	}
}

type fakeArchive struct {
	mu    sync.Mutex
	turns []Turn
}

func (f *fakeArchive) ArchiveTurn(_ context.Context, _, _ string, t Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, t)
	return nil
}

func (f *fakeArchive) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.turns)
}

type fakeSessionMetrics struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSessionMetrics) ObserveSession(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSessionMetrics) ObserveTurn(string) {}

func (f *fakeSessionMetrics) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

func testStudio() Studio {
	return Studio{Slug: "ink-and-iron", Name: "Ink & Iron", Vertical: "tattoo", AssistantName: "Rae"}
}

func fastReveal() RevealConfig {
	return RevealConfig{FrameInterval: time.Millisecond, StepInterval: time.Millisecond, TokensPerStep: 100}
}

func newTestController(t *testing.T, sender Sender, mutate func(*Options)) *Controller {
	t.Helper()
	opts := Options{
		Studio: testStudio(),
		Limits: Limits{AutoCloseDelay: 20 * time.Millisecond, SettleDelay: 10 * time.Millisecond},
		Reveal: fastReveal(),
		Sender: sender,
		Logger: logging.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c := NewController(opts)
	t.Cleanup(c.Close)
	return c
}

// manualTickers hands out tickers the test drives frame by frame.
func manualTickers(opts *Options) chan *manualTicker {
	ch := make(chan *manualTicker, 8)
	opts.Reveal = RevealConfig{
		TokensPerStep: 100,
		NewTicker: func(time.Duration) Ticker {
			tk := newManualTicker()
			ch <- tk
			return tk
		},
	}
	return ch
}

func nextTicker(t *testing.T, ch chan *manualTicker) *manualTicker {
	t.Helper()
	select {
	case tk := <-ch:
		return tk
	case <-time.After(waitFor):
		t.Fatal("reveal never started")
		return nil
	}
}

func waitSettled(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		s := c.Snapshot()
		return !s.InFlight && s.RevealingID == "" && (s.State == StateIdle || s.State == StateCompleted)
	}, waitFor, tick)
	return c.Snapshot()
}

func lastTurn(s Snapshot) TurnView {
	return s.Turns[len(s.Turns)-1]
}

func TestOpenStartsSessionWithGreeting(t *testing.T) {
	c := newTestController(t, &fakeSender{}, nil)
	assert.Equal(t, StateClosed, c.State())

	id := c.Open()
	require.NotEmpty(t, id)

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, id, snap.SessionID)
	require.Len(t, snap.Turns, 1)
	greeting := snap.Turns[0]
	assert.Equal(t, RoleAssistant, greeting.Role)
	assert.True(t, greeting.Local)
	assert.True(t, greeting.RevealComplete)
	assert.Contains(t, greeting.Content, "Rae")
	assert.Contains(t, greeting.Content, "Ink & Iron")
	assert.Equal(t, verticalSuggestions["tattoo"], snap.Suggestions)

	assert.Equal(t, id, c.Open(), "open on an open surface keeps the session")
}

func TestGreetingVariants(t *testing.T) {
	managing := newTestController(t, &fakeSender{}, func(o *Options) { o.BookingRef = "BK-77" })
	managing.Open()
	snap := managing.Snapshot()
	assert.Contains(t, snap.Turns[0].Content, "BK-77")
	assert.Equal(t, managingSuggestions, snap.Suggestions)

	custom := newTestController(t, &fakeSender{}, func(o *Options) { o.Studio.Greeting = "Welcome in!" })
	custom.Open()
	assert.Equal(t, "Welcome in!", custom.Snapshot().Turns[0].Content)

	anon := newTestController(t, &fakeSender{}, func(o *Options) { o.Studio = Studio{} })
	anon.Open()
	assert.Equal(t, anonymousGreeting, anon.Snapshot().Turns[0].Content)
}

func TestSubmitRejectsEmptyAndOverlongInput(t *testing.T) {
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "ok"})}
	c := newTestController(t, sender, nil)

	assert.False(t, c.Submit("hello"), "closed surface")
	c.Open()

	assert.False(t, c.Submit(""))
	assert.False(t, c.Submit("   \n"))
	assert.False(t, c.Submit(strings.Repeat("a", DefaultMaxInputChars+1)))
	assert.Len(t, c.Snapshot().Turns, 1)
	assert.Empty(t, sender.calls())

	assert.True(t, c.Submit(strings.Repeat("a", DefaultMaxInputChars)))
	waitSettled(t, c)
	assert.Len(t, sender.calls(), 1)
}

func TestSubmitSendsHistoryAndMergedEntities(t *testing.T) {
	var n atomic.Int32
	sender := &fakeSender{}
	sender.reply = func(context.Context, ChatRequest) (*ChatResponse, error) {
		if n.Add(1) == 1 {
			return &ChatResponse{Response: "Nice, what size?", ExtractedEntities: map[string]any{"style": "fine-line", "size": "small"}}, nil
		}
		return &ChatResponse{Response: "Got it.", ExtractedEntities: map[string]any{"size": "medium"}}, nil
	}
	c := newTestController(t, sender, nil)
	sessionID := c.Open()

	require.True(t, c.Submit("  a fine-line rose  "))
	waitSettled(t, c)
	require.True(t, c.Submit("palm sized"))
	snap := waitSettled(t, c)

	calls := sender.calls()
	require.Len(t, calls, 2)
	first, second := calls[0], calls[1]

	assert.Equal(t, "a fine-line rose", first.Message)
	assert.Equal(t, "ink-and-iron", first.StudioSlug)
	assert.Equal(t, sessionID, first.SessionID)
	assert.Equal(t, 1, first.TurnCount)
	assert.False(t, first.Completed)
	require.Len(t, first.ConversationHistory, 1, "history excludes the message being sent")
	assert.Empty(t, first.ExtractedEntities)

	assert.Equal(t, 2, second.TurnCount)
	require.Len(t, second.ConversationHistory, 3)
	assert.Equal(t, HistoryEntry{Role: RoleUser, Content: "a fine-line rose"}, second.ConversationHistory[1])
	assert.Equal(t, HistoryEntry{Role: RoleAssistant, Content: "Nice, what size?"}, second.ConversationHistory[2])
	assert.Equal(t, map[string]any{"style": "fine-line", "size": "small"}, second.ExtractedEntities)

	assert.Equal(t, map[string]any{"style": "fine-line", "size": "medium"}, snap.Entities)
	assert.Equal(t, 2, snap.TurnCount)
	require.Len(t, snap.Turns, 5)
	assert.Equal(t, []Role{RoleAssistant, RoleUser, RoleAssistant, RoleUser, RoleAssistant},
		[]Role{snap.Turns[0].Role, snap.Turns[1].Role, snap.Turns[2].Role, snap.Turns[3].Role, snap.Turns[4].Role})
	assert.Empty(t, snap.Suggestions)
}

func TestSubmitBlockedWhileAwaitingReply(t *testing.T) {
	release := make(chan struct{})
	sender := &fakeSender{reply: func(ctx context.Context, _ ChatRequest) (*ChatResponse, error) {
		select {
		case <-release:
			return &ChatResponse{Response: "here"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	c := newTestController(t, sender, nil)
	c.Open()

	require.True(t, c.Submit("first"))
	snap := c.Snapshot()
	assert.Equal(t, StateAwaitingReply, snap.State)
	assert.True(t, snap.InFlight)
	assert.False(t, c.Submit("second"))

	close(release)
	waitSettled(t, c)
	assert.True(t, c.Submit("third"))
	waitSettled(t, c)
	assert.Len(t, sender.calls(), 2)
}

func TestSubmitBlockedWhileRevealing(t *testing.T) {
	var tickers chan *manualTicker
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "one two three"})}
	c := newTestController(t, sender, func(o *Options) { tickers = manualTickers(o) })
	c.Open()

	require.True(t, c.Submit("hi"))
	tk := nextTicker(t, tickers)
	require.Eventually(t, func() bool { return c.Snapshot().RevealingID != "" }, waitFor, tick)
	snap := c.Snapshot()
	assert.Equal(t, StateRevealing, snap.State)
	assert.False(t, snap.InFlight)
	assert.Empty(t, lastTurn(snap).DisplayText)
	assert.False(t, c.Submit("again"))

	tk.ch <- time.Now()
	snap = waitSettled(t, c)
	assert.Equal(t, "one two three", lastTurn(snap).DisplayText)
	assert.True(t, lastTurn(snap).RevealComplete)
}

func TestTurnLimitEscalatesWithoutNetworkCall(t *testing.T) {
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "ok"})}
	metrics := &fakeSessionMetrics{}
	c := newTestController(t, sender, func(o *Options) { o.Metrics = metrics })
	c.Open()

	for i := 0; i < DefaultMaxTurns; i++ {
		require.True(t, c.Submit("message"), "submission %d", i+1)
		waitSettled(t, c)
	}
	require.Len(t, sender.calls(), DefaultMaxTurns)

	require.True(t, c.Submit("one more"))
	snap := c.Snapshot()
	assert.Len(t, sender.calls(), DefaultMaxTurns)
	assert.True(t, snap.Completed)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, DefaultMaxTurns, snap.TurnCount)
	assert.Len(t, snap.Turns, 1+2*DefaultMaxTurns+1, "only the escalation turn is appended")

	last := lastTurn(snap)
	assert.Equal(t, ActionEscalated, last.Action)
	assert.True(t, last.Local)
	require.NotNil(t, last.Affordance)
	assert.Equal(t, AffordanceHandoff, last.Affordance.Kind)
	assert.True(t, metrics.has("turn_limit"))

	assert.False(t, c.Submit("still there?"))
}

func TestBookingCompleteWithoutReferenceCompletesAfterReveal(t *testing.T) {
	var tickers chan *manualTicker
	closed := make(chan struct{})
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "You're all set!", Action: ActionBookingComplete})}
	c := newTestController(t, sender, func(o *Options) {
		tickers = manualTickers(o)
		o.Limits.AutoCloseDelay = 200 * time.Millisecond
		o.OnAutoClose = func() { close(closed) }
	})
	c.Open()

	require.True(t, c.Submit("the 10am works"))
	tk := nextTicker(t, tickers)
	require.Eventually(t, func() bool { return c.Snapshot().RevealingID != "" }, waitFor, tick)
	snap := c.Snapshot()
	assert.False(t, snap.Completed, "completion waits for the reveal")
	assert.Nil(t, lastTurn(snap).Affordance)

	tk.ch <- time.Now()
	snap = waitSettled(t, c)
	assert.True(t, snap.Completed)
	assert.Equal(t, StateCompleted, snap.State)
	last := lastTurn(snap)
	require.NotNil(t, last.Affordance)
	assert.Equal(t, AffordanceConfirmation, last.Affordance.Kind)
	assert.Empty(t, last.Affordance.Reference)
	assert.False(t, c.Submit("thanks"))

	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("auto close never fired")
	}
	require.Eventually(t, func() bool { return c.State() == StateDiscarded }, waitFor, tick)
}

func TestEmptySlotListRendersPlainText(t *testing.T) {
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "Nothing open this week.", Action: ActionShowSlots})}
	c := newTestController(t, sender, nil)
	c.Open()

	require.True(t, c.Submit("any openings?"))
	snap := waitSettled(t, c)
	last := lastTurn(snap)
	assert.Equal(t, ActionShowSlots, last.Action)
	assert.Nil(t, last.Affordance)
	assert.False(t, snap.Completed)
	assert.Equal(t, StateIdle, snap.State)
}

func TestSlotsRenderPicker(t *testing.T) {
	slots := []Slot{{Date: "Tue, Mar 3", Time: "10:00 AM", ArtistName: "Rae"}, {Date: "Wed, Mar 4", Time: "1:00 PM"}}
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "Here you go.", Action: ActionShowSlots, AvailableSlots: slots})}
	c := newTestController(t, sender, nil)
	c.Open()

	require.True(t, c.Submit("what's open?"))
	snap := waitSettled(t, c)
	last := lastTurn(snap)
	require.NotNil(t, last.Affordance)
	assert.Equal(t, slots, last.Affordance.Slots)

	require.True(t, c.SelectSlot(slots[0]))
	waitSettled(t, c)
	calls := sender.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "I'd like the 10:00 AM slot on Tue, Mar 3 with Rae", calls[1].Message)

	require.True(t, c.SelectSuggestion("How much is the deposit?"))
	waitSettled(t, c)
	assert.Equal(t, "How much is the deposit?", sender.calls()[2].Message)
}

func TestEmptyReplyGetsFallbackText(t *testing.T) {
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "  "})}
	c := newTestController(t, sender, nil)
	c.Open()

	require.True(t, c.Submit("hello?"))
	snap := waitSettled(t, c)
	assert.Equal(t, emptyReplyText, lastTurn(snap).Content)
}

func TestFailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		formURL string
		want    string
	}{
		{"server error", &ServerError{StatusCode: 500}, "", unavailableText},
		{"network error", &NetworkError{Attempts: 3}, "", unreachableText},
		{"server error with form", &ServerError{StatusCode: 502}, "https://forms.example/book",
			unavailableText + " You can also book with our form: https://forms.example/book"},
		{"network error with form", &NetworkError{Attempts: 3}, "https://forms.example/book",
			unreachableText + " You can also book with our form: https://forms.example/book"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.err
			sender := &fakeSender{reply: func(context.Context, ChatRequest) (*ChatResponse, error) { return nil, err }}
			c := newTestController(t, sender, func(o *Options) { o.Studio.FormURL = tt.formURL })
			c.Open()

			require.True(t, c.Submit("hello"))
			snap := waitSettled(t, c)
			last := lastTurn(snap)
			assert.Equal(t, tt.want, last.Content)
			assert.True(t, last.Local)
			assert.Equal(t, StateIdle, snap.State)
			assert.Equal(t, 1, snap.TurnCount)
			assert.True(t, c.Submit("retry"), "a failure does not block the next message")
		})
	}
}

func TestNoSenderFailsAsNetworkError(t *testing.T) {
	c := newTestController(t, nil, nil)
	c.Open()
	require.True(t, c.Submit("hello"))
	snap := waitSettled(t, c)
	assert.Equal(t, unreachableText, lastTurn(snap).Content)
}

func TestCloseMidRevealThenReopenStartsFreshSession(t *testing.T) {
	var tickers chan *manualTicker
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "Let me look that up"})}
	c := newTestController(t, sender, func(o *Options) {
		tickers = manualTickers(o)
		o.Limits.SettleDelay = time.Hour
	})
	firstID := c.Open()

	require.True(t, c.Submit("hi"))
	nextTicker(t, tickers)
	require.Eventually(t, func() bool { return c.Snapshot().RevealingID != "" }, waitFor, tick)

	c.mu.Lock()
	oldGen := c.generation
	oldID := c.revealingID
	c.mu.Unlock()

	c.Close()
	snap := c.Snapshot()
	assert.Equal(t, StateClosing, snap.State)
	assert.Empty(t, snap.RevealingID)
	assert.False(t, c.Submit("more"), "closing surface rejects input")

	secondID := c.Open()
	assert.NotEqual(t, firstID, secondID)
	snap = c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 0, snap.TurnCount)
	require.Len(t, snap.Turns, 1)

	c.revealStep(oldGen, oldID, "Let me")
	c.revealDone(oldGen, oldID)
	after := c.Snapshot()
	assert.Len(t, after.Turns, 1, "late reveal callbacks are dropped")
	assert.Equal(t, snap.Version, after.Version)
}

func TestLateReplyAfterCloseIsDropped(t *testing.T) {
	release := make(chan struct{})
	var canceled atomic.Bool
	sender := &fakeSender{reply: func(ctx context.Context, _ ChatRequest) (*ChatResponse, error) {
		select {
		case <-release:
		case <-ctx.Done():
			canceled.Store(true)
		}
		return &ChatResponse{Response: "too late"}, nil
	}}
	c := newTestController(t, sender, nil)
	c.Open()

	require.True(t, c.Submit("hi"))
	c.Close()
	require.Eventually(t, canceled.Load, waitFor, tick, "close cancels the request")
	close(release)

	c.Open()
	assert.Never(t, func() bool { return len(c.Snapshot().Turns) != 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestCloseDiscardsAfterSettleDelay(t *testing.T) {
	metrics := &fakeSessionMetrics{}
	c := newTestController(t, &fakeSender{}, func(o *Options) { o.Metrics = metrics })
	c.Open()

	c.Close()
	c.Close()
	require.Eventually(t, func() bool { return c.State() == StateDiscarded }, waitFor, tick)
	snap := c.Snapshot()
	assert.Empty(t, snap.SessionID)
	assert.Empty(t, snap.Turns)
	assert.True(t, metrics.has("opened"))
	assert.True(t, metrics.has("discarded"))
}

func TestDemoModeAnnotatesAndTracksProgress(t *testing.T) {
	var n atomic.Int32
	archive := &fakeArchive{}
	sender := &fakeSender{}
	sender.reply = func(context.Context, ChatRequest) (*ChatResponse, error) {
		switch n.Add(1) {
		case 1:
			return &ChatResponse{Response: "Here are times", Action: ActionShowSlots,
				AvailableSlots: []Slot{{Date: "Tue", Time: "10:00"}}, IsDemoMode: true}, nil
		default:
			return &ChatResponse{Response: "Booked!", Action: ActionBookingComplete, ActionLabel: "All done", IsDemoMode: true}, nil
		}
	}
	var autoClosed atomic.Bool
	c := newTestController(t, sender, func(o *Options) {
		o.Archive = archive
		o.Limits.AutoCloseDelay = 5 * time.Millisecond
		o.OnAutoClose = func() { autoClosed.Store(true) }
	})
	c.Open()
	assert.False(t, c.Snapshot().Demo)

	require.True(t, c.Submit("show me times"))
	snap := waitSettled(t, c)
	assert.True(t, snap.Demo, "server-declared demo mode sticks")
	last := lastTurn(snap)
	assert.Equal(t, demoAnnotations[ActionShowSlots], last.Annotation)
	require.Len(t, snap.DemoSteps, 1)
	assert.Equal(t, DemoStep{Action: ActionShowSlots, Label: "Checked availability"}, snap.DemoSteps[0])
	assert.Equal(t, StageAvailability, snap.Progress)

	require.True(t, c.Submit("book it"))
	snap = waitSettled(t, c)
	assert.True(t, snap.Completed)
	assert.Equal(t, StageConfirmed, snap.Progress)
	require.Len(t, snap.DemoSteps, 2)
	assert.Equal(t, "All done", snap.DemoSteps[1].Label)

	assert.Never(t, autoClosed.Load, 50*time.Millisecond, 5*time.Millisecond, "demo sessions stay open")
	assert.Equal(t, StateCompleted, c.State())
	assert.Zero(t, archive.count(), "demo turns are never archived")
}

func TestDemoOptionSkipsUnknownActionsInSteps(t *testing.T) {
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "Hmm", Action: Action("dance")})}
	c := newTestController(t, sender, func(o *Options) { o.Demo = true })
	c.Open()
	assert.True(t, c.Snapshot().Demo)

	require.True(t, c.Submit("hi"))
	snap := waitSettled(t, c)
	assert.Empty(t, snap.DemoSteps)
	assert.Empty(t, lastTurn(snap).Annotation)
	assert.Equal(t, StageDescribe, snap.Progress)
}

func TestArchiveReceivesFinishedTurns(t *testing.T) {
	archive := &fakeArchive{}
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "Hello!"})}
	c := newTestController(t, sender, func(o *Options) { o.Archive = archive })
	c.Open()

	require.True(t, c.Submit("hi"))
	waitSettled(t, c)
	require.Eventually(t, func() bool { return archive.count() == 2 }, waitFor, tick)

	archive.mu.Lock()
	defer archive.mu.Unlock()
	roles := map[Role]bool{}
	for _, turn := range archive.turns {
		roles[turn.Role] = true
		assert.True(t, turn.RevealComplete)
	}
	assert.True(t, roles[RoleUser])
	assert.True(t, roles[RoleAssistant])
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	var mu sync.Mutex
	var versions []uint64
	sender := &fakeSender{reply: replyWith(ChatResponse{Response: "one two three four"})}
	c := newTestController(t, sender, func(o *Options) {
		o.Reveal.TokensPerStep = 1
		o.OnChange = func(s Snapshot) {
			mu.Lock()
			versions = append(versions, s.Version)
			mu.Unlock()
		}
	})
	c.Open()
	require.True(t, c.Submit("hi"))
	final := waitSettled(t, c)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, versions)
	seen := map[uint64]bool{}
	for _, v := range versions {
		assert.False(t, seen[v], "version %d published twice", v)
		seen[v] = true
		assert.LessOrEqual(t, v, final.Version)
	}
	assert.Greater(t, len(versions), 4, "each reveal frame publishes a snapshot")
}
