// Package events is an in-process publish/subscribe bus for out-of-band
// signals such as "storage-imported".
//
// Publish runs every handler synchronously on the caller's goroutine, so when
// Publish returns all subscribers have finished reacting to the signal.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// StorageImported is raised by a backup collaborator after it overwrote the
// transactions slot underneath the ledger.
const StorageImported = "storage-imported"

// Handler reacts to a signal.
type Handler func(ctx context.Context) error

// Subscriber registers handlers; the returned func removes the subscription.
type Subscriber interface {
	Subscribe(topic string, h Handler) (unsubscribe func())
}

// Publisher raises a signal.
type Publisher interface {
	Publish(ctx context.Context, topic string) error
}

// Bus implements Subscriber and Publisher.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]Handler)}
}

func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
		})
	}
}

// Publish calls the topic's handlers in subscription order and joins their
// errors. A failing handler does not stop the others.
func (b *Bus) Publish(ctx context.Context, topic string) error {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs[topic]))
	for id := range b.subs[topic] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[topic][id])
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish %s: %w", topic, errors.Join(errs...))
	}
	return nil
}

// Subscribers returns how many handlers listen on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
