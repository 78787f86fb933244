package assistant

import (
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	defaultFrameInterval = 16 * time.Millisecond
	defaultStepInterval  = 30 * time.Millisecond
	defaultTokensPerStep = 2
)

// Tokenize splits text into alternating word and whitespace runs. Joining the
// tokens reproduces text exactly.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if i == 0 {
			inSpace = space
			continue
		}
		if space != inSpace {
			tokens = append(tokens, text[start:i])
			start = i
			inSpace = space
		}
	}
	return append(tokens, text[start:])
}

// Ticker is the subset of *time.Ticker the revealer needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a frame ticker.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the default TickerFunc backed by time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// RevealConfig tunes the reveal schedule.
type RevealConfig struct {
	FrameInterval time.Duration
	StepInterval  time.Duration
	TokensPerStep int
	NewTicker     TickerFunc
}

func (c RevealConfig) withDefaults() RevealConfig {
	if c.FrameInterval <= 0 {
		c.FrameInterval = defaultFrameInterval
	}
	if c.StepInterval <= 0 {
		c.StepInterval = defaultStepInterval
	}
	if c.TokensPerStep <= 0 {
		c.TokensPerStep = defaultTokensPerStep
	}
	if c.NewTicker == nil {
		c.NewTicker = NewTimeTicker
	}
	return c
}

// Revealer progressively publishes prefixes of a text on a frame schedule.
// A Revealer runs at most one reveal; Start after Start or Cancel is a no-op.
type Revealer struct {
	cfg RevealConfig

	mu       sync.Mutex
	started  bool
	canceled bool
	stop     chan struct{}
	done     chan struct{}
}

// NewRevealer creates a Revealer with cfg, filling unset fields with defaults.
func NewRevealer(cfg RevealConfig) *Revealer {
	return &Revealer{
		cfg:  cfg.withDefaults(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins revealing text. onToken receives each new prefix; onDone runs
// once after the full text was published.
func (r *Revealer) Start(text string, onToken func(prefix string), onDone func()) {
	r.mu.Lock()
	if r.started || r.canceled {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	tokens := Tokenize(text)
	ticker := r.cfg.NewTicker(r.cfg.FrameInterval)
	go func() {
		defer close(r.done)
		defer ticker.Stop()

		cursor := 0
		var last time.Time
		var b strings.Builder
		for {
			select {
			case <-r.stop:
				return
			case now := <-ticker.C():
				if cursor < len(tokens) {
					if !last.IsZero() && now.Sub(last) < r.cfg.StepInterval {
						continue
					}
					last = now
					end := cursor + r.cfg.TokensPerStep
					if end > len(tokens) {
						end = len(tokens)
					}
					for _, tok := range tokens[cursor:end] {
						b.WriteString(tok)
					}
					cursor = end
					if !r.emit(func() { onToken(b.String()) }) {
						return
					}
					if cursor < len(tokens) {
						continue
					}
				}
				r.emit(onDone)
				return
			}
		}
	}()
}

// emit runs fn unless the reveal was canceled.
func (r *Revealer) emit(fn func()) bool {
	r.mu.Lock()
	canceled := r.canceled
	r.mu.Unlock()
	if canceled {
		return false
	}
	fn()
	return true
}

// Cancel stops the schedule without waiting for the reveal goroutine. A
// callback already running when Cancel is called may still finish, so
// callbacks must check that their target is still live.
func (r *Revealer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canceled {
		return
	}
	r.canceled = true
	close(r.stop)
	if !r.started {
		close(r.done)
	}
}

// Done is closed when the reveal goroutine exits, or on Cancel if the reveal
// never started.
func (r *Revealer) Done() <-chan struct{} {
	return r.done
}
