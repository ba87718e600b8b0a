package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet/internal/kv"
)

type fakeCollection struct {
	docs    map[string]SlotDocument
	findErr error
	setErr  error
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: map[string]SlotDocument{}}
}

func (f *fakeCollection) FindSlot(_ context.Context, key string) (SlotDocument, bool, error) {
	if f.findErr != nil {
		return SlotDocument{}, false, f.findErr
	}
	doc, ok := f.docs[key]
	return doc, ok, nil
}

func (f *fakeCollection) UpsertSlot(_ context.Context, doc SlotDocument) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.docs[doc.Key] = doc
	return nil
}

func TestStoreGetSet(t *testing.T) {
	coll := newFakeCollection()
	s := New(coll)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, ok, err := s.Get(ctx, kv.DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, kv.DefaultKey, "[]"))
	v, ok, err := s.Get(ctx, kv.DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)
	assert.Equal(t, fixed, coll.docs[kv.DefaultKey].UpdatedAt)
}

func TestStorePropagatesErrors(t *testing.T) {
	coll := newFakeCollection()
	coll.findErr = errors.New("boom")
	coll.setErr = errors.New("quota")
	s := New(coll)
	ctx := context.Background()

	_, _, err := s.Get(ctx, kv.DefaultKey)
	assert.ErrorIs(t, err, coll.findErr)
	assert.ErrorIs(t, s.Set(ctx, kv.DefaultKey, "[]"), coll.setErr)
	assert.ErrorIs(t, s.Set(ctx, "", "[]"), kv.ErrEmptyKey)
}
