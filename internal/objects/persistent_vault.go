package objects

import (
	"fmt"

	"github.com/metasecret/metasecret/internal/model"
)

// PersistentVault wraps the server-authoritative Vault/VaultLog/
// VaultStatus chains and the device-owned DeviceLog chain.
type PersistentVault struct {
	obj *PersistentObject
}

// NewPersistentVault builds a vault-chain accessor.
func NewPersistentVault(obj *PersistentObject) *PersistentVault {
	return &PersistentVault{obj: obj}
}

// FindVault returns the latest VaultData snapshot for a vault, or
// (nil, false) if the vault doesn't exist yet (pre-Genesis).
func (p *PersistentVault) FindVault(name model.VaultName) (*model.VaultData, bool, error) {
	event, ok, err := p.obj.FindTailEvent(model.ObjVault, string(name))
	if err != nil || !ok {
		return nil, false, err
	}
	if event.Vault == nil {
		return nil, false, fmt.Errorf("vault event missing payload")
	}
	data := event.Vault.Data
	return &data, true, nil
}

// SaveVault appends a new Vault snapshot at the chain's next counter.
func (p *PersistentVault) SaveVault(data model.VaultData) (model.ArtifactId, error) {
	return p.obj.Append(model.ObjVault, string(data.VaultName), func(id model.ArtifactId) model.GenericKvLogEvent {
		return model.GenericKvLogEvent{
			Key:   model.KvKey{ObjId: id, ObjDesc: model.ObjVault},
			Kind:  model.EventVault,
			Vault: &model.VaultPayload{Data: data},
		}
	})
}

// VaultExists reports whether the vault has at least reached Genesis.
func (p *PersistentVault) VaultExists(name model.VaultName) (bool, error) {
	tail, err := p.obj.FindTailId(model.UnitId(model.ObjVault, string(name)))
	if err != nil {
		return false, err
	}
	return tail != nil, nil
}

// AppendVaultLog appends one pending-action record to a vault's VaultLog.
func (p *PersistentVault) AppendVaultLog(vaultName model.VaultName, action model.VaultActionRecord) (model.ArtifactId, error) {
	return p.obj.Append(model.ObjVaultLog, string(vaultName), func(id model.ArtifactId) model.GenericKvLogEvent {
		return model.GenericKvLogEvent{
			Key:      model.KvKey{ObjId: id, ObjDesc: model.ObjVaultLog},
			Kind:     model.EventVaultLog,
			VaultLog: &model.VaultLogPayload{Action: action},
		}
	})
}

// MarkVaultLogCompleted appends a terminal ActionCompleted marker for
// the vault log, per the Open Question decision to keep VaultLog
// append-only rather than pruning it (SPEC_FULL.md §9/Open Questions).
func (p *PersistentVault) MarkVaultLogCompleted(vaultName model.VaultName, action model.VaultActionRecord) (model.ArtifactId, error) {
	return p.obj.Append(model.ObjVaultLog, string(vaultName), func(id model.ArtifactId) model.GenericKvLogEvent {
		return model.GenericKvLogEvent{
			Key:      model.KvKey{ObjId: id, ObjDesc: model.ObjVaultLog},
			Kind:     model.EventVaultLog,
			VaultLog: &model.VaultLogPayload{Action: action, Completed: true},
		}
	})
}

// FindVaultLogEvents returns every VaultLog event from the chain's
// start, in order — used by the engine to replay pending actions.
func (p *PersistentVault) FindVaultLogEvents(vaultName model.VaultName) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEvents(model.UnitId(model.ObjVaultLog, string(vaultName)))
}

// FindVaultLogEventsFrom returns VaultLog events from the given counter
// forward — the sync gateway's "what's newer than my tail" query (§4.4
// step 4).
func (p *PersistentVault) FindVaultLogEventsFrom(vaultName model.VaultName, from uint64) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEventsFrom(model.ObjVaultLog, string(vaultName), from)
}

// FindVaultEventsFrom returns Vault snapshot events from the given
// counter forward.
func (p *PersistentVault) FindVaultEventsFrom(vaultName model.VaultName, from uint64) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEventsFrom(model.ObjVault, string(vaultName), from)
}

// FindVaultStatusEventsFrom returns VaultStatus events for one user from
// the given counter forward.
func (p *PersistentVault) FindVaultStatusEventsFrom(user model.UserId, from uint64) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEventsFrom(model.ObjVaultStatus, user.String(), from)
}

// FindDeviceLogEventsFrom returns DeviceLog events for one user from the
// given counter forward — what the server hasn't yet ingested (§4.4 step
// 5).
func (p *PersistentVault) FindDeviceLogEventsFrom(user model.UserId, from uint64) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEventsFrom(model.ObjDeviceLog, user.String(), from)
}

// SaveRemoteEvent writes an event pulled from a peer at its own
// ArtifactId, rather than appending at the chain's free counter —
// the sync gateway's client side replays the server's exact chain
// position (§4.4 steps 4/6/7), and the store's byte-identical-or-reject
// rule (Invariant 1) makes this safe to call repeatedly.
func (p *PersistentVault) SaveRemoteEvent(event model.GenericKvLogEvent) (model.ArtifactId, error) {
	return p.obj.Store.Save(event)
}

// SaveVaultStatus appends a VaultStatus snapshot for one user.
func (p *PersistentVault) SaveVaultStatus(status model.VaultStatus) (model.ArtifactId, error) {
	instance := status.UserId.String()
	return p.obj.Append(model.ObjVaultStatus, instance, func(id model.ArtifactId) model.GenericKvLogEvent {
		return model.GenericKvLogEvent{
			Key:         model.KvKey{ObjId: id, ObjDesc: model.ObjVaultStatus},
			Kind:        model.EventVaultStatus,
			VaultStatus: &model.VaultStatusPayload{Status: status},
		}
	})
}

// FindVaultStatus returns the latest VaultStatus recorded for a user.
func (p *PersistentVault) FindVaultStatus(user model.UserId) (*model.VaultStatus, bool, error) {
	event, ok, err := p.obj.FindTailEvent(model.ObjVaultStatus, user.String())
	if err != nil || !ok {
		return nil, false, err
	}
	if event.VaultStatus == nil {
		return nil, false, fmt.Errorf("vault status event missing payload")
	}
	status := event.VaultStatus.Status
	return &status, true, nil
}

// AppendDeviceLog appends one outgoing intent to a user's DeviceLog.
func (p *PersistentVault) AppendDeviceLog(user model.UserId, payload model.DeviceLogPayload) (model.ArtifactId, error) {
	return p.obj.Append(model.ObjDeviceLog, user.String(), func(id model.ArtifactId) model.GenericKvLogEvent {
		return model.GenericKvLogEvent{
			Key:       model.KvKey{ObjId: id, ObjDesc: model.ObjDeviceLog},
			Kind:      model.EventDeviceLog,
			DeviceLog: &payload,
		}
	})
}

// FindDeviceLogEvents returns every DeviceLog event from counter 0
// forward for the given user.
func (p *PersistentVault) FindDeviceLogEvents(user model.UserId) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEvents(model.UnitId(model.ObjDeviceLog, user.String()))
}

// DeviceLogFreeId returns the next unused counter in a user's DeviceLog
// — the "tail" the server reports back in a ServerTailResponse (§4.4).
func (p *PersistentVault) DeviceLogFreeId(user model.UserId) (model.ArtifactId, error) {
	return p.obj.FindFreeId(model.ObjDeviceLog, user.String())
}
