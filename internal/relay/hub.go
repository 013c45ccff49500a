package relay

import (
	"sync"

	"github.com/chronologos/ttyrelay/internal/protocol"
)

const subscriptionBuffer = 64

// hub fans decoded device packets out to every shell session in decode
// order. publish and close are only called from the connection's reader,
// so a subscription channel is never sent on after it is closed.
type hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch   chan protocol.Inbound
	done chan struct{}
	hub  *hub
	once sync.Once
}

// subscribe registers a consumer. On a closed hub the subscription's
// channel is already closed.
func (h *hub) subscribe() *subscription {
	s := &subscription{
		ch:   make(chan protocol.Inbound, subscriptionBuffer),
		done: make(chan struct{}),
		hub:  h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	if h.subs == nil {
		h.subs = make(map[*subscription]struct{})
	}
	h.subs[s] = struct{}{}
	return s
}

// publish blocks until every live subscriber has queued p. A subscriber
// that cancels meanwhile is skipped.
func (h *hub) publish(p protocol.Inbound) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- p:
		case <-s.done:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
	}
	h.subs = nil
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		close(s.done)
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
	})
}
