// Package store implements C1, the Event Log & Object Store: an
// append-only mapping from model.ArtifactId to model.GenericKvLogEvent.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/metasecret/metasecret/internal/model"
)

// ErrNotFound is returned by FindOne when no event exists at the given id.
var ErrNotFound = errors.New("store: event not found")

// ErrChainCollision is returned by Save when an event already exists at
// the given id and its bytes differ from the new event — a violation of
// chain linearity (Invariant 1) that the caller must not paper over.
var ErrChainCollision = errors.New("store: chain collision — existing event differs from new event")

// Store is the persistence interface every layer above C1 depends on.
// Implementations: BoltStore (the recommended embedded-KV backend,
// §6), MemoryStore (test-only).
type Store interface {
	// Save writes event at its own ArtifactId. If an event already
	// exists at that id with byte-identical content, Save is a no-op
	// (idempotent). If it exists with different content, Save returns
	// ErrChainCollision.
	Save(event model.GenericKvLogEvent) (model.ArtifactId, error)
	// FindOne returns the event at id, or ErrNotFound.
	FindOne(id model.ArtifactId) (*model.GenericKvLogEvent, error)
	// Delete removes the event at id. Deleting a missing id is a no-op.
	Delete(id model.ArtifactId) error
	// DBCleanUp wipes all data — test-only.
	DBCleanUp() error
}

// encodeEvent serializes an event deterministically enough to compare
// for the idempotent-save check.
func encodeEvent(event model.GenericKvLogEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (model.GenericKvLogEvent, error) {
	var event model.GenericKvLogEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return model.GenericKvLogEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}

func keyString(id model.ArtifactId) string {
	return id.String()
}
