// Package ledger owns the canonical, ordered list of transactions and keeps it
// in step with a single key-value slot.
//
// Every mutation serialises the whole list and writes it to the slot before the
// in-memory list changes. If the write fails the mutation is dropped and both
// sides stay on the previous state.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"wallet/internal/core"
	"wallet/internal/events"
	"wallet/internal/kv"
	"wallet/internal/log"
)

// ChangeKind says what produced a new revision.
type ChangeKind string

const (
	ChangeAppend ChangeKind = "append"
	ChangeDelete ChangeKind = "delete"
	ChangeLoad   ChangeKind = "load"
	ChangeReset  ChangeKind = "reset"
)

// Change is handed to listeners after a revision was committed.
type Change struct {
	Kind     ChangeKind
	Revision uint64
	Count    int
}

// ChangeFunc is called synchronously after every committed mutation or reload.
type ChangeFunc func(ctx context.Context, c Change)

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the slot key (default kv.DefaultKey).
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for mutations.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentLedger)
		}
	}
}

// WithIDGenerator replaces uuid.NewString, mostly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

type Store struct {
	kv  kv.Store
	key string

	mu    sync.RWMutex
	items []core.Transaction
	rev   uint64

	lmu       sync.Mutex
	listeners map[int]ChangeFunc
	nextL     int

	newID  func() string
	logger *log.Logger
}

// NewStore creates an empty store. Call Load to read the slot.
func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:        store,
		key:       kv.DefaultKey,
		listeners: make(map[int]ChangeFunc),
		newID:     uuid.NewString,
		logger:    log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the slot key the store persists to.
func (s *Store) Key() string { return s.key }

// Load replaces the in-memory list with the slot contents. A missing slot is
// an empty list. On error the in-memory list is left untouched.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	value, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load %q: %w", s.key, err)
	}
	var list []core.Transaction
	if ok {
		list, err = Decode(value)
		if err != nil {
			s.mu.Unlock()
			s.logger.WarnContext(ctx, "Stored transactions are malformed",
				log.FieldKey, s.key, log.FieldOperation, log.OpLoad, log.FieldError, err)
			return fmt.Errorf("load %q: %w", s.key, err)
		}
	}
	for i := range list {
		list[i].ID = s.newID()
	}
	c := s.commitLocked(ChangeLoad, list)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transactions loaded",
		log.NewFields().WithSlot(s.key, c.Count).WithOperation(log.OpLoad).ToSlice()...)
	s.notify(ctx, c)
	return nil
}

// Add appends t and persists the list. No validation happens here. The
// returned transaction carries its assigned ID.
func (s *Store) Add(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	t.ID = s.newID()
	next := make([]core.Transaction, len(s.items), len(s.items)+1)
	copy(next, s.items)
	next = append(next, t)
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return core.Transaction{}, err
	}
	c := s.commitLocked(ChangeAppend, next)
	s.mu.Unlock()

	log.NewStructuredLogger(s.logger).LogTransactionAdded(ctx,
		t.ID, t.Type.String(), t.Description, t.Amount.String(), c.Count)
	s.notify(ctx, c)
	return t, nil
}

// RemoveAt deletes the element at a canonical index.
func (s *Store) RemoveAt(ctx context.Context, index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.items) {
		n := len(s.items)
		s.mu.Unlock()
		return fmt.Errorf("remove index %d of %d: %w", index, n, core.ErrIndexOutOfRange)
	}
	return s.removeLocked(ctx, index)
}

// Remove deletes the transaction with the given ID.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	index := s.indexLocked(id)
	if index < 0 {
		s.mu.Unlock()
		return fmt.Errorf("remove %q: %w", id, core.ErrNotFound)
	}
	return s.removeLocked(ctx, index)
}

// removeLocked expects s.mu held and releases it.
func (s *Store) removeLocked(ctx context.Context, index int) error {
	removed := s.items[index]
	next := make([]core.Transaction, 0, len(s.items)-1)
	next = append(next, s.items[:index]...)
	next = append(next, s.items[index+1:]...)
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	c := s.commitLocked(ChangeDelete, next)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldIndex, index,
		log.FieldTransactionID, removed.ID,
		log.FieldCount, c.Count)
	s.notify(ctx, c)
	return nil
}

// Reset persists an empty list. It is the recovery path for a malformed slot.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	if err := s.persistLocked(ctx, nil); err != nil {
		s.mu.Unlock()
		return err
	}
	c := s.commitLocked(ChangeReset, nil)
	s.mu.Unlock()

	s.logger.WarnContext(ctx, "Transactions reset", log.FieldKey, s.key, log.FieldOperation, log.OpReset)
	s.notify(ctx, c)
	return nil
}

// OnExternalReplace reloads the list whenever sub raises storage-imported.
// The reload runs inside the publisher's call.
func (s *Store) OnExternalReplace(sub events.Subscriber) (unsubscribe func()) {
	return sub.Subscribe(events.StorageImported, func(ctx context.Context) error {
		s.logger.InfoContext(ctx, "Storage replaced externally, reloading", log.FieldKey, s.key)
		return s.Load(ctx)
	})
}

// OnChange registers fn for every committed revision.
func (s *Store) OnChange(fn ChangeFunc) (remove func()) {
	s.lmu.Lock()
	id := s.nextL
	s.nextL++
	s.listeners[id] = fn
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

// List returns a snapshot of the canonical list.
func (s *Store) List() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, len(s.items))
	copy(out, s.items)
	return out
}

// Snapshot returns the list together with the revision it belongs to.
func (s *Store) Snapshot() ([]core.Transaction, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, len(s.items))
	copy(out, s.items)
	return out, s.rev
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Revision increases by one with every committed mutation or reload.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// IndexOf returns the canonical index of id.
func (s *Store) IndexOf(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	return i, i >= 0
}

func (s *Store) indexLocked(id string) int {
	for i, t := range s.items {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persistLocked(ctx context.Context, next []core.Transaction) error {
	value, err := Encode(next)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, value); err != nil {
		log.NewStructuredLogger(s.logger).LogError(ctx, "Failed to persist transactions", err,
			log.ComponentLedger, log.OpPersist, log.NewFields().WithSlot(s.key, len(next)))
		return fmt.Errorf("persist %q: %w", s.key, err)
	}
	return nil
}

func (s *Store) commitLocked(kind ChangeKind, next []core.Transaction) Change {
	if next == nil {
		next = []core.Transaction{}
	}
	s.items = next
	s.rev++
	return Change{Kind: kind, Revision: s.rev, Count: len(next)}
}

func (s *Store) notify(ctx context.Context, c Change) {
	s.lmu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]ChangeFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(ctx, c)
	}
}
