package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
)

// snapshotMsg carries the newest controller snapshot into the program.
type snapshotMsg assistant.Snapshot

// autoClosedMsg reports that a confirmed session closed itself.
type autoClosedMsg struct{}

// Feed bridges controller callbacks, which arrive on arbitrary goroutines, into
// bubbletea messages. Only the newest snapshot is kept; stale versions are dropped.
type Feed struct {
	mu         sync.Mutex
	pending    *assistant.Snapshot
	delivered  uint64
	autoClosed bool
	notify     chan struct{}
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{notify: make(chan struct{}, 1)}
}

// Publish is wired to assistant.Options.OnChange.
func (f *Feed) Publish(snap assistant.Snapshot) {
	f.mu.Lock()
	if snap.Version <= f.delivered || (f.pending != nil && snap.Version <= f.pending.Version) {
		f.mu.Unlock()
		return
	}
	f.pending = &snap
	f.mu.Unlock()
	f.wake()
}

// AutoClosed is wired to assistant.Options.OnAutoClose.
func (f *Feed) AutoClosed() {
	f.mu.Lock()
	f.autoClosed = true
	f.mu.Unlock()
	f.wake()
}

func (f *Feed) wake() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// pop returns the next message to deliver: pending snapshots go before the
// auto-close notice so the final state is always drawn.
func (f *Feed) pop() (tea.Msg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil {
		snap := *f.pending
		f.pending = nil
		f.delivered = snap.Version
		if f.autoClosed {
			f.wake()
		}
		return snapshotMsg(snap), true
	}
	if f.autoClosed {
		f.autoClosed = false
		return autoClosedMsg{}, true
	}
	return nil, false
}

// next waits for the feed to change and returns the pending message.
func (f *Feed) next() tea.Cmd {
	return func() tea.Msg {
		for {
			<-f.notify
			if msg, ok := f.pop(); ok {
				return msg
			}
		}
	}
}
