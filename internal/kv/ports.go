package kv

import (
	"context"
	"errors"
)

// DefaultKey is the slot holding the serialized transaction list.
const DefaultKey = "transactions"

// ErrEmptyKey is returned by adapters when asked for a blank key.
var ErrEmptyKey = errors.New("empty key")

// Ports for outbound storage adapters.
type (
	// Getter reads a single slot. ok is false when nothing was ever stored.
	Getter interface {
		Get(ctx context.Context, key string) (value string, ok bool, err error)
	}

	// Setter overwrites a single slot atomically.
	Setter interface {
		Set(ctx context.Context, key, value string) error
	}

	// Store is the durable key-value slot the ledger persists into.
	Store interface {
		Getter
		Setter
	}
)
