package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// MemoryBus is an in-process MessageBus. Delivery is asynchronous with a
// bounded per-subscriber buffer; a slow subscriber drops messages rather
// than stalling publishers.
type MemoryBus struct {
	mu         sync.RWMutex
	subs       map[string][]*memorySubscription
	closed     atomic.Bool
	subCounter atomic.Uint64
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}

	msg := &Message{Subject: subject, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, subs := range b.subs {
		if !matchSubject(pattern, subject) {
			continue
		}
		for _, sub := range subs {
			if sub.closed.Load() {
				continue
			}
			select {
			case sub.messages <- msg:
			default:
				// Subscriber buffer full; drop rather than block.
			}
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		id:       fmt.Sprintf("sub-%d", b.subCounter.Add(1)),
		subject:  subject,
		messages: make(chan *Message, 256),
		handler:  handler,
		bus:      b,
	}

	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], sub)
	b.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for _, sub := range subs {
			if !sub.closed.Swap(true) {
				close(sub.messages)
			}
		}
	}
	b.subs = make(map[string][]*memorySubscription)
	return nil
}

type memorySubscription struct {
	id       string
	subject  string
	messages chan *Message
	handler  MessageHandler
	bus      *MemoryBus
	closed   atomic.Bool
}

func (s *memorySubscription) Unsubscribe() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.subs[s.subject]
	for i, sub := range subs {
		if sub.id == s.id {
			s.bus.subs[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memorySubscription) Subject() string { return s.subject }

func (s *memorySubscription) run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-s.messages:
			if !ok {
				return
			}
			s.handler(msg)
		case <-ctx.Done():
			return
		}
	}
}

// matchSubject checks a subject against a pattern with NATS-style
// wildcards: "*" matches one token, ">" matches the rest.
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	pp := strings.Split(pattern, ".")
	sp := strings.Split(subject, ".")

	pi, si := 0, 0
	for pi < len(pp) && si < len(sp) {
		switch pp[pi] {
		case "*":
			pi++
			si++
		case ">":
			return true
		default:
			if pp[pi] != sp[si] {
				return false
			}
			pi++
			si++
		}
	}
	return pi == len(pp) && si == len(sp)
}
