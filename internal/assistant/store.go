package assistant

import (
	"errors"
	"strings"
)

var (
	ErrUnknownTurn  = errors.New("assistant: unknown turn")
	ErrNotPrefix    = errors.New("assistant: display text is not a growing prefix of content")
	ErrTurnFinished = errors.New("assistant: turn already revealed")
)

// HistoryEntry is the (role, content) pair sent to the chat endpoint.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store is the ordered transcript of one Session. Turns are only ever appended;
// the sole in-place mutation is growing DisplayText during a reveal.
// Store is not safe for concurrent use; the Controller serializes access.
type Store struct {
	turns []Turn
	index map[string]int
}

// NewStore returns an empty transcript.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Append adds a turn to the end of the transcript.
func (s *Store) Append(t Turn) {
	s.index[t.ID] = len(s.turns)
	s.turns = append(s.turns, t)
}

// Reveal replaces the displayed prefix of a pending turn.
func (s *Store) Reveal(id, prefix string) error {
	i, ok := s.index[id]
	if !ok {
		return ErrUnknownTurn
	}
	t := &s.turns[i]
	if t.RevealComplete {
		return ErrTurnFinished
	}
	if !strings.HasPrefix(t.Content, prefix) || len(prefix) < len(t.DisplayText) {
		return ErrNotPrefix
	}
	t.DisplayText = prefix
	return nil
}

// Finish completes the reveal of a turn and returns the frozen copy.
func (s *Store) Finish(id string) (Turn, error) {
	i, ok := s.index[id]
	if !ok {
		return Turn{}, ErrUnknownTurn
	}
	t := &s.turns[i]
	if t.RevealComplete {
		return Turn{}, ErrTurnFinished
	}
	t.DisplayText = t.Content
	t.RevealComplete = true
	return *t, nil
}

// annotate sets the demo annotation on a just-finished turn.
func (s *Store) annotate(id, annotation string) {
	if i, ok := s.index[id]; ok {
		s.turns[i].Annotation = annotation
	}
}

// Get returns a copy of the turn with the given id.
func (s *Store) Get(id string) (Turn, bool) {
	i, ok := s.index[id]
	if !ok {
		return Turn{}, false
	}
	return s.turns[i], true
}

// All returns a copy of every turn in order.
func (s *Store) All() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len reports the number of turns.
func (s *Store) Len() int {
	return len(s.turns)
}

// History returns the last window non-system turns as (role, content) pairs.
func (s *Store) History(window int) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(s.turns))
	for _, t := range s.turns {
		if t.Role == RoleSystem {
			continue
		}
		entries = append(entries, HistoryEntry{Role: t.Role, Content: t.Content})
	}
	if window > 0 && len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	return entries
}
