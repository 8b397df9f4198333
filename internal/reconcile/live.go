package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Live guards a session shared by HTTP requests and the scanner. Every
// mutation runs under its lock, so totals are updated before the next
// mutation is accepted.
type Live struct {
	ID      uuid.UUID
	mu      sync.Mutex
	session *Session
	pending []Effect
}

// NewLive wraps a session.
func NewLive(s *Session) *Live {
	return &Live{ID: uuid.New(), session: s}
}

// OrderID is the order of the wrapped session.
func (l *Live) OrderID() int64 { return l.session.OrderID() }

// Do runs fn with exclusive access to the session.
func (l *Live) Do(fn func(*Session) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.session)
}

// Pending returns the scans waiting for an operator decision.
func (l *Live) Pending() []Effect {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Effect(nil), l.pending...)
}

// Resolve answers the oldest pending decision for code. When accepted the
// effect is applied to the session.
func (l *Live) Resolve(code string, accept bool) (Effect, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.pending {
		if e.Code != code {
			continue
		}
		l.pending = append(l.pending[:i], l.pending[i+1:]...)
		if !accept {
			return e, nil
		}
		return e, l.session.Apply(e)
	}
	return Effect{}, ErrNoPendingScan
}

// Scan handles one code: loads within the ordered weight are applied at
// once, decisions are queued and rejections reported.
func (l *Live) Scan(code string) (Effect, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.session.HandleScan(code)
	switch {
	case e.Kind == EffectLoad:
		return e, l.session.Apply(e)
	case e.NeedsConfirmation():
		l.pending = append(l.pending, e)
		return e, nil
	default:
		return e, l.session.Apply(e)
	}
}

// Registry keeps at most one live session per order.
type Registry struct {
	mu      sync.Mutex
	byOrder map[int64]*Live
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byOrder: make(map[int64]*Live)}
}

// Open returns the live session of the order, creating it with open when
// none exists. created tells which happened.
func (r *Registry) Open(ctx context.Context, orderID int64, open func(context.Context) (*Session, error)) (live *Live, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.byOrder[orderID]; ok {
		return l, false, nil
	}
	s, err := open(ctx)
	if err != nil {
		return nil, false, err
	}
	l := NewLive(s)
	r.byOrder[orderID] = l
	return l, true, nil
}

// Get returns the live session of an order.
func (r *Registry) Get(orderID int64) (*Live, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byOrder[orderID]
	return l, ok
}

// Remove forgets the live session of an order.
func (r *Registry) Remove(orderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byOrder, orderID)
}

// Observer is told about every scan handled by a Scanner.
type Observer func(Effect, error)

// Scanner feeds barcode events into a live session.
type Scanner struct {
	live    *Live
	observe Observer
	logger  *slog.Logger
}

// NewScanner builds a scanner. observe may be nil.
func NewScanner(live *Live, observe Observer, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{live: live, observe: observe, logger: logger}
}

// Run consumes codes until the channel closes or ctx is done. Scans applied
// before a stop stay in the session.
func (s *Scanner) Run(ctx context.Context, codes <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case code, ok := <-codes:
			if !ok {
				return nil
			}
			e, err := s.live.Scan(code)
			if err != nil {
				s.logger.Info("scan rejected", slog.String("code", code), slog.String("effect", string(e.Kind)), slog.Any("error", err))
			}
			if s.observe != nil {
				s.observe(e, err)
			}
		}
	}
}
