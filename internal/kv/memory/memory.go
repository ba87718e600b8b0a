package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wallet/internal/kv"
)

// SeedFile is read by NewFromFiles to pre-populate the transactions slot.
const SeedFile = "transactions.json"

type Store struct {
	mu    sync.Mutex
	slots map[string]string
}

func New() *Store {
	return &Store{slots: make(map[string]string)}
}

// NewFromFiles returns a store whose slot key (kv.DefaultKey when empty) is
// seeded from base/transactions.json when that file exists and is not blank.
func NewFromFiles(base, key string) *Store {
	if key == "" {
		key = kv.DefaultKey
	}
	s := New()
	if seed := readFile(filepath.Join(base, SeedFile)); seed != "" {
		s.slots[key] = seed
	}
	return s
}

// Get returns the slot value and whether it was ever set.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, kv.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.slots[key]
	return v, ok, nil
}

// Set overwrites the slot.
func (s *Store) Set(_ context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return kv.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = value
	return nil
}

// Keys lists the slots currently held.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.slots))
	for k := range s.slots {
		out = append(out, k)
	}
	return out
}

func readFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
