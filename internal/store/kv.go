// Package store provides durable client storage: a small string key/value
// space shared by every component (the user record, bearer token and
// session identifier live here).
package store

import (
	"errors"
	"fmt"
)

// Well-known keys.
const (
	KeyUser      = "user"
	KeyToken     = "token"
	KeySessionID = "sessionId"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: key not found")

// KV is durable string storage.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(keys ...string) error
	Close() error
}

// Lookup returns the value for key, or "" when it is absent. An empty
// value counts as absent: it is the tombstone Forget leaves behind.
// Storage failures are reported as absence together with the error.
func Lookup(kv KV, key string) (string, bool, error) {
	v, err := kv.Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

// Forget makes keys absent. A failed batch remove is retried one key at a
// time, and a key that still cannot be deleted is overwritten with an empty
// tombstone. The returned error names the keys that are still present.
func Forget(kv KV, keys ...string) error {
	if err := kv.Remove(keys...); err == nil {
		return nil
	}
	var errs []error
	for _, key := range keys {
		if err := kv.Remove(key); err == nil {
			continue
		}
		if err := kv.Set(key, ""); err != nil {
			errs = append(errs, fmt.Errorf("forget %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
