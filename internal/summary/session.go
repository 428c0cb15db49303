package summary

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/product-calculator/internal/currency"
	"github.com/atmx/product-calculator/internal/debounce"
	"github.com/atmx/product-calculator/internal/metrics"
	"github.com/atmx/product-calculator/internal/model"
)

var (
	// ErrSessionNotFound is returned for an unknown or closed session id.
	ErrSessionNotFound = errors.New("summary: session not found")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("summary: session closed")
)

// Source loads the products to aggregate.
type Source func(ctx context.Context) ([]model.Product, error)

// Update is published every time a session recomputes.
type Update struct {
	SessionID string  `json:"sessionId"`
	Trigger   string  `json:"trigger"`
	Summary   Summary `json:"summary"`
	Rates     Rates   `json:"rates"`
	// Rejected carries the error of a rate that was cleared because it
	// was out of range.
	Rejected string `json:"rejected,omitempty"`
}

// Listener receives session updates. It must not block.
type Listener func(Update)

// recomputeTimeout bounds product loads made from debounce timers, which
// have no request context.
const recomputeTimeout = 5 * time.Second

// Session is one open summary view: its entered rates and the last
// summary computed from them.
//
// Typing a rate goes through Input, which waits for the debounce delay
// before applying it; leaving the field goes through Commit, which applies
// at once and drops any pending input for that currency.
type Session struct {
	ID        string
	CreatedAt time.Time

	source    Source
	listener  Listener
	debouncer *debounce.Debouncer

	mu     sync.Mutex
	rates  Rates
	gen    map[string]uint64 // bumped by every Input and Commit per currency
	last   Summary
	closed bool
}

func newSession(source Source, delay time.Duration, listener Listener) *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		source:    source,
		listener:  listener,
		debouncer: debounce.New(delay),
		rates:     Rates{},
		gen:       map[string]uint64{},
	}
}

// Rates returns a copy of the entered rates.
func (s *Session) Rates() Rates {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rates.Clone()
}

// Last returns the most recently computed summary.
func (s *Session) Last() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Refresh recomputes the summary against the current products.
func (s *Session) Refresh(ctx context.Context, trigger string) (Summary, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Summary{}, ErrSessionClosed
	}
	return s.recompute(ctx, trigger, "")
}

// Input schedules rate for code after the debounce delay. Each new input
// for the same currency restarts the delay. The currency code is checked
// immediately.
func (s *Session) Input(code string, rate decimal.Decimal) error {
	code, err := currency.Parse(code)
	if err != nil {
		return err
	}
	if code == currency.Reference {
		return ErrReferenceRate
	}
	s.mu.Lock()
	s.gen[code]++
	gen := s.gen[code]
	s.mu.Unlock()

	if !s.debouncer.Trigger(code, func() { s.applyDebounced(code, rate, gen) }) {
		return ErrSessionClosed
	}
	return nil
}

// applyDebounced applies an input whose delay elapsed. A timer that fired
// while a later Input or Commit for the same currency was running is stale
// and does nothing.
func (s *Session) applyDebounced(code string, rate decimal.Decimal, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), recomputeTimeout)
	defer cancel()

	s.mu.Lock()
	if s.closed || s.gen[code] != gen {
		s.mu.Unlock()
		return
	}
	rejected := ""
	if err := s.rates.Set(code, rate); err != nil {
		rejected = err.Error()
	}
	s.mu.Unlock()

	if _, err := s.recompute(ctx, "input", rejected); err != nil {
		slog.Warn("debounced summary recompute failed", "session", s.ID, "error", err)
	}
}

// Commit applies rate for code now, cancelling any pending input for it.
// An out-of-range rate clears the currency's rate, recomputes, and
// returns ErrRateOutOfRange together with the recomputed summary.
func (s *Session) Commit(ctx context.Context, code string, rate decimal.Decimal) (Summary, error) {
	code, err := currency.Parse(code)
	if err != nil {
		return Summary{}, err
	}
	s.debouncer.Cancel(code)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Summary{}, ErrSessionClosed
	}
	s.gen[code]++
	setErr := s.rates.Set(code, rate)
	s.mu.Unlock()

	if errors.Is(setErr, ErrReferenceRate) {
		return Summary{}, setErr
	}
	rejected := ""
	if setErr != nil {
		rejected = setErr.Error()
	}
	sum, err := s.recompute(ctx, "commit", rejected)
	if err != nil {
		return Summary{}, err
	}
	return sum, setErr
}

// Pending reports whether an input for code is waiting on the debounce.
func (s *Session) Pending(code string) bool {
	return s.debouncer.Pending(code)
}

// Close cancels pending inputs. Later calls fail with ErrSessionClosed.
func (s *Session) Close() {
	s.debouncer.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) recompute(ctx context.Context, trigger, rejected string) (Summary, error) {
	products, err := s.source(ctx)
	if err != nil {
		return Summary{}, err
	}

	s.mu.Lock()
	rates := s.rates.Clone()
	sum := Aggregate(products, rates)
	s.last = sum
	s.mu.Unlock()

	metrics.SummaryRecomputes.WithLabelValues(trigger).Inc()
	if s.listener != nil {
		s.listener(Update{
			SessionID: s.ID,
			Trigger:   trigger,
			Summary:   sum,
			Rates:     rates,
			Rejected:  rejected,
		})
	}
	return sum, nil
}

// Sessions is the registry of open summary sessions.
type Sessions struct {
	source   Source
	delay    time.Duration
	listener Listener

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates a registry whose sessions load products from source
// and debounce rate input by delay. listener may be nil.
func NewSessions(source Source, delay time.Duration, listener Listener) *Sessions {
	return &Sessions{
		source:   source,
		delay:    delay,
		listener: listener,
		sessions: make(map[string]*Session),
	}
}

// Open starts a new session with no rates.
func (r *Sessions) Open() *Session {
	s := newSession(r.source, r.delay, r.listener)

	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SummarySessions.Set(float64(n))
	slog.Info("summary session opened", "session", s.ID)
	return s
}

// Get returns an open session.
func (r *Sessions) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close closes and forgets one session.
func (r *Sessions) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	metrics.SummarySessions.Set(float64(n))
	slog.Info("summary session closed", "session", id)
	return nil
}

// RefreshAll recomputes every open session, as after a product change.
func (r *Sessions) RefreshAll(ctx context.Context) {
	r.mu.Lock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.Unlock()

	for _, s := range open {
		if _, err := s.Refresh(ctx, "change"); err != nil && !errors.Is(err, ErrSessionClosed) {
			slog.Warn("summary refresh failed", "session", s.ID, "error", err)
		}
	}
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every session, cancelling their pending timers.
func (r *Sessions) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	metrics.SummarySessions.Set(0)
}
