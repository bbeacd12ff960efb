package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	sqliteKV, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteKV.Close() })
	return map[string]KV{
		"memory": NewMemoryKV(),
		"sqlite": sqliteKV,
	}
}

func TestKV_Contract(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(KeyToken)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Set(KeyToken, "tok-1"))
			v, err := kv.Get(KeyToken)
			require.NoError(t, err)
			assert.Equal(t, "tok-1", v)

			require.NoError(t, kv.Set(KeyToken, "tok-2"))
			v, _ = kv.Get(KeyToken)
			assert.Equal(t, "tok-2", v, "Set overwrites")

			require.NoError(t, kv.Set(KeyUser, `{"id":"u1"}`))
			require.NoError(t, kv.Remove(KeyUser, KeyToken, "never-set"))

			_, err = kv.Get(KeyUser)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = kv.Get(KeyToken)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLookup(t *testing.T) {
	kv := NewMemoryKV()

	v, ok, err := Lookup(kv, KeySessionID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)

	require.NoError(t, kv.Set(KeySessionID, "abc"))
	v, ok, err = Lookup(kv, KeySessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, kv.Set(KeySessionID, ""))
	_, ok, err = Lookup(kv, KeySessionID)
	require.NoError(t, err)
	assert.False(t, ok, "empty value is a tombstone")
}

// stuckKV cannot delete anything; writes fail for readOnly keys.
type stuckKV struct {
	KV
	readOnly map[string]bool
}

func (s stuckKV) Remove(...string) error { return errors.New("database is locked") }

func (s stuckKV) Set(key, value string) error {
	if s.readOnly[key] {
		return errors.New("attempt to write a readonly database")
	}
	return s.KV.Set(key, value)
}

func TestForget(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(KeyUser, "{}"))
	require.NoError(t, kv.Set(KeyToken, "tok"))

	require.NoError(t, Forget(kv, KeyUser, KeyToken))
	_, err := kv.Get(KeyUser)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForget_TombstonesWhenRemoveFails(t *testing.T) {
	inner := NewMemoryKV()
	require.NoError(t, inner.Set(KeyUser, "{}"))
	require.NoError(t, inner.Set(KeyToken, "tok"))
	require.NoError(t, inner.Set(KeySessionID, "sid"))

	require.NoError(t, Forget(stuckKV{KV: inner}, KeyUser, KeyToken))
	for _, key := range []string{KeyUser, KeyToken} {
		_, ok, err := Lookup(inner, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
	sid, ok, _ := Lookup(inner, KeySessionID)
	assert.True(t, ok)
	assert.Equal(t, "sid", sid)
}

func TestForget_ReportsKeysStillPresent(t *testing.T) {
	inner := NewMemoryKV()
	require.NoError(t, inner.Set(KeyUser, "{}"))
	require.NoError(t, inner.Set(KeyToken, "tok"))

	err := Forget(stuckKV{KV: inner, readOnly: map[string]bool{KeyToken: true}}, KeyUser, KeyToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `forget "token"`)
	assert.NotContains(t, err.Error(), `forget "user"`)
}

func TestSQLiteKV_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storage.db")

	kv, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(KeySessionID, "persisted-session"))
	require.NoError(t, kv.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(KeySessionID)
	require.NoError(t, err)
	assert.Equal(t, "persisted-session", v)
	assert.Equal(t, path, reopened.Path())
}
