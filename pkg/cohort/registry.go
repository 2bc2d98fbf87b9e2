package cohort

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"github.com/synaptica-ai/cohort-builder/pkg/funnel"
)

var ErrNoSession = errors.New("session id is required")

type session struct {
	runner   *CountRunner
	cancel   context.CancelFunc
	done     chan struct{}
	lastUsed time.Time
}

// Registry holds one CountRunner per editing session. Each session owns its
// own request store, so paths of different researchers never collide.
type Registry struct {
	ctx       context.Context
	counter   funnel.GroupCounter
	agg       *funnel.Aggregator
	window    time.Duration
	publisher Publisher
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry(ctx context.Context, counter funnel.GroupCounter, agg *funnel.Aggregator, window time.Duration, publisher Publisher) *Registry {
	return &Registry{
		ctx:       ctx,
		counter:   counter,
		agg:       agg,
		window:    window,
		publisher: publisher,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

// Session returns the runner for id, starting one on first use.
func (r *Registry) Session(id string) (*CountRunner, error) {
	if id == "" {
		return nil, ErrNoSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.lastUsed = r.now()
		return s.runner, nil
	}

	runner := NewCountRunner(r.counter, r.agg, r.window, WithPublisher(r.publisher), WithSource(id))
	ctx, cancel := context.WithCancel(r.ctx)
	s := &session{runner: runner, cancel: cancel, done: make(chan struct{}), lastUsed: r.now()}
	go func() {
		defer close(s.done)
		runner.Run(ctx)
	}()
	r.sessions[id] = s
	logger.Log.WithField("session", id).Debug("cohort builder session started")
	return runner, nil
}

// Close stops a session and cancels its outstanding counts.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.cancel()
	<-s.done
	return true
}

// Expire closes sessions idle for longer than ttl and returns how many.
func (r *Registry) Expire(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	var idle []string
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.Close(id)
	}
	return len(idle)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown closes every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Close(id)
	}
}
