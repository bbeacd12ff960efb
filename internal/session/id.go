// Package session owns the opaque session identifier that correlates a
// disease-form visit with its chat turns on the backend.
package session

import (
	"fmt"

	"medinsight/internal/logging"
	"medinsight/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewID returns a fresh random session identifier.
func NewID() string {
	return uuid.NewString()
}

// Bootstrap decides the session identifier for a form visit and persists it.
// An empty incoming id generates exactly one new identifier; a non-empty one
// is stored and returned unchanged. Identifiers never expire client-side.
func Bootstrap(kv store.KV, incoming string) (string, error) {
	id := incoming
	generated := false
	if id == "" {
		id = NewID()
		generated = true
	}
	if err := kv.Set(store.KeySessionID, id); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	logging.Session("session bootstrapped", zap.String("session_id", id), zap.Bool("generated", generated))
	return id, nil
}

// Current returns the persisted session identifier, if any.
func Current(kv store.KV) (string, bool) {
	id, ok, err := store.Lookup(kv, store.KeySessionID)
	if err != nil || !ok || id == "" {
		return "", false
	}
	return id, true
}
