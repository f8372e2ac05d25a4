package objects

import (
	"fmt"

	"github.com/metasecret/metasecret/internal/model"
)

const globalIndexInstance = "index"

// PersistentGlobalIndex tracks the set of vault names the server knows
// about (§3.2's GlobalIndex row).
type PersistentGlobalIndex struct {
	obj *PersistentObject
}

// NewPersistentGlobalIndex builds a global-index accessor.
func NewPersistentGlobalIndex(obj *PersistentObject) *PersistentGlobalIndex {
	return &PersistentGlobalIndex{obj: obj}
}

// List returns every known vault name — the supplemented show-events
// style introspection described in SPEC_FULL.md §5.
func (p *PersistentGlobalIndex) List() ([]model.VaultName, error) {
	event, ok, err := p.obj.FindTailEvent(model.ObjGlobalIndex, globalIndexInstance)
	if err != nil || !ok {
		return nil, err
	}
	if event.GlobalIndex == nil {
		return nil, fmt.Errorf("global index event missing payload")
	}
	return event.GlobalIndex.VaultNames, nil
}

// Contains reports whether name is already registered.
func (p *PersistentGlobalIndex) Contains(name model.VaultName) (bool, error) {
	names, err := p.List()
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Add registers name in the global index if not already present
// (idempotent — mirrors Init::CreateVault's idempotence, §4.3).
func (p *PersistentGlobalIndex) Add(name model.VaultName) error {
	names, err := p.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	names = append(names, name)

	_, err = p.obj.Append(model.ObjGlobalIndex, globalIndexInstance, func(id model.ArtifactId) model.GenericKvLogEvent {
		return model.GenericKvLogEvent{
			Key:         model.KvKey{ObjId: id, ObjDesc: model.ObjGlobalIndex},
			Kind:        model.EventGlobalIndex,
			GlobalIndex: &model.GlobalIndexPayload{VaultNames: names},
		}
	})
	return err
}
