package session

import (
	"errors"
	"testing"

	"medinsight/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestBootstrap_GeneratesWhenMissing(t *testing.T) {
	kv := store.NewMemoryKV()

	id, err := Bootstrap(kv, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	stored, err := kv.Get(store.KeySessionID)
	require.NoError(t, err)
	assert.Equal(t, id, stored)
}

func TestBootstrap_ReusesIncoming(t *testing.T) {
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(store.KeySessionID, "older-session"))

	id, err := Bootstrap(kv, "incoming-session")
	require.NoError(t, err)
	assert.Equal(t, "incoming-session", id)

	cur, ok := Current(kv)
	assert.True(t, ok)
	assert.Equal(t, "incoming-session", cur)
}

func TestBootstrap_NewVisitReplacesOldID(t *testing.T) {
	kv := store.NewMemoryKV()
	first, err := Bootstrap(kv, "")
	require.NoError(t, err)
	second, err := Bootstrap(kv, "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	cur, _ := Current(kv)
	assert.Equal(t, second, cur)
}

type failingKV struct{ store.KV }

func (failingKV) Set(string, string) error { return errors.New("disk full") }

func TestBootstrap_StorageFailure(t *testing.T) {
	_, err := Bootstrap(failingKV{store.NewMemoryKV()}, "")
	assert.ErrorContains(t, err, "disk full")
}

func TestCurrent_Empty(t *testing.T) {
	_, ok := Current(store.NewMemoryKV())
	assert.False(t, ok)
}
