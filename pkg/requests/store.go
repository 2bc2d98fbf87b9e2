package requests

import (
	"context"
	"sort"
	"sync"

	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
)

// Ticket identifies one issued request. A response is applied only while its
// ticket is still the current one for the path.
type Ticket struct {
	Path       Path
	Generation uint64
}

type inflight struct {
	generation uint64
	cancel     context.CancelFunc
}

// Listener observes every dispatched action together with the state it
// produced. Listeners run after the store lock is released, so they may call
// back into the Store; deliveries from different goroutines are not ordered.
type Listener func(Action, State)

type notification struct {
	action Action
	state  State
}

// Store owns the request state. Actions are applied one at a time.
type Store struct {
	mu          sync.Mutex
	state       State
	generations map[string]uint64
	inflight    map[string]inflight
	listeners   []Listener
	outbox      []notification
}

func NewStore(listeners ...Listener) *Store {
	return &Store{
		state:       State{},
		generations: make(map[string]uint64),
		inflight:    make(map[string]inflight),
		listeners:   listeners,
	}
}

// Dispatch applies a raw action. A CANCEL for a path with a live request
// triggers exactly one CLEANUP; a CANCEL with no live request does nothing.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	s.dispatchLocked(action)
	s.unlockAndNotify()
}

// unlockAndNotify releases the lock, then hands queued actions to listeners.
func (s *Store) unlockAndNotify() {
	pending := s.outbox
	s.outbox = nil
	s.mu.Unlock()
	for _, n := range pending {
		for _, l := range s.listeners {
			l(n.action, n.state)
		}
	}
}

func (s *Store) dispatchLocked(action Action) {
	switch action.Type {
	case StartRequest:
		s.subscribeLocked(action.Path)
	case CleanupRequest:
		s.unsubscribeLocked(action.Path)
	}
	s.state = Reduce(s.state, action)
	if len(s.listeners) > 0 {
		s.outbox = append(s.outbox, notification{action: action, state: s.state})
	}
	if action.Type == CancelRequest {
		s.observeCancelLocked(action.Path)
	}
}

// subscribeLocked registers the cancellation observer for a newly started
// path. Starting a path that is already live keeps the existing observer.
func (s *Store) subscribeLocked(p Path) {
	key := p.Key()
	if _, live := s.inflight[key]; live {
		return
	}
	s.generations[key]++
	s.inflight[key] = inflight{generation: s.generations[key]}
}

func (s *Store) unsubscribeLocked(p Path) {
	key := p.Key()
	if req, ok := s.inflight[key]; ok {
		delete(s.inflight, key)
		if req.cancel != nil {
			req.cancel()
		}
	}
}

// observeCancelLocked is the single cancellation observer for the path's
// current generation. Removing the inflight entry unsubscribes it.
func (s *Store) observeCancelLocked(p Path) {
	key := p.Key()
	req, ok := s.inflight[key]
	if !ok {
		return
	}
	delete(s.inflight, key)
	if req.cancel != nil {
		req.cancel()
	}
	logger.WithPath(key).Debug("request canceled")
	s.dispatchLocked(Action{Type: CleanupRequest, Path: p})
}

// Start begins a request for p. A request already live at p is canceled
// first so that only one is ever live. The returned context is canceled when
// the request is.
func (s *Store) Start(ctx context.Context, p Path) (Ticket, context.Context) {
	s.mu.Lock()
	defer s.unlockAndNotify()

	key := p.Key()
	if _, live := s.inflight[key]; live {
		s.dispatchLocked(Action{Type: CancelRequest, Path: p})
	}

	s.dispatchLocked(Action{Type: StartRequest, Path: p})
	reqCtx, cancel := context.WithCancel(ctx)
	entry := s.inflight[key]
	entry.cancel = cancel
	s.inflight[key] = entry
	return Ticket{Path: append(Path(nil), p...), Generation: entry.generation}, reqCtx
}

// Cancel abandons the live request at p. It reports whether there was one.
func (s *Store) Cancel(p Path) bool {
	s.mu.Lock()
	defer s.unlockAndNotify()
	_, live := s.inflight[p.Key()]
	s.dispatchLocked(Action{Type: CancelRequest, Path: p})
	return live
}

// Complete finishes a request naturally. It returns false when the ticket was
// superseded or canceled, in which case the caller must discard the response.
func (s *Store) Complete(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.Path.Key()
	req, ok := s.inflight[key]
	if !ok || req.generation != t.Generation {
		return false
	}
	delete(s.inflight, key)
	if req.cancel != nil {
		req.cancel()
	}
	s.state = Reduce(s.state, Action{Type: CleanupRequest, Path: t.Path})
	return true
}

// Current reports whether t is still the live request for its path.
func (s *Store) Current(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.inflight[t.Path.Key()]
	return ok && req.generation == t.Generation
}

func (s *Store) IsRequesting(p Path) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Has(p)
}

// Active returns the keys of every live request, sorted.
func (s *Store) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.state))
	for k := range s.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CancelPrefix cancels every live request at or below p.
func (s *Store) CancelPrefix(p Path) int {
	s.mu.Lock()
	defer s.unlockAndNotify()
	prefix := p.Key()
	var targets []Path
	for key := range s.inflight {
		if key == prefix || len(key) > len(prefix) && key[:len(prefix)+1] == prefix+"/" {
			targets = append(targets, ParsePath(key))
		}
	}
	for _, t := range targets {
		s.dispatchLocked(Action{Type: CancelRequest, Path: t})
	}
	return len(targets)
}
