// Package objects implements C2, the Persistent Object Layer: typed,
// chain-aware accessors built on top of internal/store's flat
// ArtifactId -> event mapping.
package objects

import (
	"errors"
	"fmt"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/store"
)

// maxChainScan bounds how far a chain walk will look before giving up,
// per §4.2: "no object chain is expected to exceed 10^6 entries in
// practice."
const maxChainScan = 1_000_000

// PersistentObject wraps a store.Store with the chain-walk helpers every
// typed accessor in this package builds on.
type PersistentObject struct {
	Store store.Store
}

// NewPersistentObject wraps the given store.
func NewPersistentObject(s store.Store) *PersistentObject {
	return &PersistentObject{Store: s}
}

// FindTailId walks the chain identified by unitId's FQDN forward from
// counter 0, returning the last present counter. Returns nil if the
// chain has no events at all. Because Invariant 1 forbids gaps (counter
// k+1 is only ever written once k exists), the first miss is the tail —
// the walk still enforces maxChainScan as a backstop against a
// corrupted or adversarial store.
func (p *PersistentObject) FindTailId(unitId model.ArtifactId) (*model.ArtifactId, error) {
	cur := model.ArtifactId{Fqdn: unitId.Fqdn, Counter: 0}
	var tail *model.ArtifactId

	for cur.Counter < maxChainScan {
		_, err := p.Store.FindOne(cur)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chain walk failed at %s: %w", cur, err)
		}
		found := cur
		tail = &found
		cur = cur.Next()
	}
	return tail, nil
}

// FindFreeId returns the next unused counter on the chain: FindTailId()+1,
// or counter 0 if the chain is empty.
func (p *PersistentObject) FindFreeId(objType model.ObjectType, instance string) (model.ArtifactId, error) {
	unitId := model.UnitId(objType, instance)
	tail, err := p.FindTailId(unitId)
	if err != nil {
		return model.ArtifactId{}, err
	}
	if tail == nil {
		return unitId, nil
	}
	return tail.Next(), nil
}

// FindObjectEvents returns every event from fromId forward, in counter
// order, stopping at the first gap.
func (p *PersistentObject) FindObjectEvents(fromId model.ArtifactId) ([]model.GenericKvLogEvent, error) {
	var events []model.GenericKvLogEvent
	cur := fromId
	for cur.Counter < fromId.Counter+maxChainScan {
		event, err := p.Store.FindOne(cur)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chain read failed at %s: %w", cur, err)
		}
		events = append(events, *event)
		cur = cur.Next()
	}
	return events, nil
}

// FindObjectEventsFrom returns every event on (objType, instance)'s chain
// starting at fromCounter, in counter order — the shape the sync gateway
// needs to answer "everything newer than the peer's tail" (§4.4).
func (p *PersistentObject) FindObjectEventsFrom(objType model.ObjectType, instance string, fromCounter uint64) ([]model.GenericKvLogEvent, error) {
	from := model.ArtifactId{Fqdn: model.FQDN{ObjType: objType, ObjInstance: instance}, Counter: fromCounter}
	return p.FindObjectEvents(from)
}

// FindTailEvent returns the latest event on the chain, or (nil, false)
// if the chain is empty.
func (p *PersistentObject) FindTailEvent(objType model.ObjectType, instance string) (*model.GenericKvLogEvent, bool, error) {
	unitId := model.UnitId(objType, instance)
	tail, err := p.FindTailId(unitId)
	if err != nil {
		return nil, false, err
	}
	if tail == nil {
		return nil, false, nil
	}
	event, err := p.Store.FindOne(*tail)
	if err != nil {
		return nil, false, err
	}
	return event, true, nil
}

// Append saves event at the chain's next free counter, returning the id
// it was written at. Callers that need a specific counter (e.g. replay)
// should call Store.Save directly instead.
func (p *PersistentObject) Append(objType model.ObjectType, instance string, build func(id model.ArtifactId) model.GenericKvLogEvent) (model.ArtifactId, error) {
	id, err := p.FindFreeId(objType, instance)
	if err != nil {
		return model.ArtifactId{}, err
	}
	event := build(id)
	return p.Store.Save(event)
}
