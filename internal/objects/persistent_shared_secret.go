package objects

import (
	"errors"
	"fmt"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/store"
)

// PersistentSharedSecret wraps the cluster-wide SsLog, the per-device
// SsDeviceLog, and the single-event-per-transfer SsWorkflow chains (C5's
// storage surface).
type PersistentSharedSecret struct {
	obj *PersistentObject
}

// NewPersistentSharedSecret builds a shared-secret chain accessor.
func NewPersistentSharedSecret(obj *PersistentObject) *PersistentSharedSecret {
	return &PersistentSharedSecret{obj: obj}
}

// FindSsLog returns the latest SsLogData ledger snapshot for a vault.
func (p *PersistentSharedSecret) FindSsLog(vaultName model.VaultName) (model.SsLogData, bool, error) {
	event, ok, err := p.obj.FindTailEvent(model.ObjSsLog, string(vaultName))
	if err != nil || !ok {
		return model.SsLogData{}, false, err
	}
	if event.SsLog == nil {
		return model.SsLogData{}, false, fmt.Errorf("ss_log event missing payload")
	}
	return event.SsLog.Log, true, nil
}

// FindSsLogEvents returns every SsLog snapshot event for a vault, in
// counter order, so a caller can count its current local tail.
func (p *PersistentSharedSecret) FindSsLogEvents(vaultName model.VaultName) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEvents(model.UnitId(model.ObjSsLog, string(vaultName)))
}

// FindSsLogEventsFrom returns a vault's SsLog snapshot events from the
// given counter forward, for relaying the ledger's tail to a syncing peer.
func (p *PersistentSharedSecret) FindSsLogEventsFrom(vaultName model.VaultName, from uint64) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEventsFrom(model.ObjSsLog, string(vaultName), from)
}

// SaveSsLog appends a new SsLogData snapshot.
func (p *PersistentSharedSecret) SaveSsLog(log model.SsLogData) (model.ArtifactId, error) {
	return p.obj.Append(model.ObjSsLog, string(log.VaultName), func(id model.ArtifactId) model.GenericKvLogEvent {
		return model.GenericKvLogEvent{
			Key:   model.KvKey{ObjId: id, ObjDesc: model.ObjSsLog},
			Kind:  model.EventSsLog,
			SsLog: &model.SsLogPayload{Log: log},
		}
	})
}

// AppendSsDeviceLogClaim appends a device's local claim intent.
func (p *PersistentSharedSecret) AppendSsDeviceLogClaim(device model.DeviceId, claim model.SsClaim) (model.ArtifactId, error) {
	return p.obj.Append(model.ObjSsDeviceLog, string(device), func(id model.ArtifactId) model.GenericKvLogEvent {
		return model.GenericKvLogEvent{
			Key:         model.KvKey{ObjId: id, ObjDesc: model.ObjSsDeviceLog},
			Kind:        model.EventSsDeviceLog,
			SsDeviceLog: &model.SsDeviceLogPayload{Claim: claim},
		}
	})
}

// FindSsDeviceLogEvents returns every claim-intent event for a device.
func (p *PersistentSharedSecret) FindSsDeviceLogEvents(device model.DeviceId) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEvents(model.UnitId(model.ObjSsDeviceLog, string(device)))
}

// FindSsDeviceLogEventsFrom returns a device's claim-intent events from
// the given counter forward.
func (p *PersistentSharedSecret) FindSsDeviceLogEventsFrom(device model.DeviceId, from uint64) ([]model.GenericKvLogEvent, error) {
	return p.obj.FindObjectEventsFrom(model.ObjSsDeviceLog, string(device), from)
}

// FindSsDeviceLogClaim locates one of a device's own claim intents by
// id — used by the recovery-completion path, which only has the claim
// id a user typed on the command line and needs the full claim (its
// PassId and Receivers) back.
func (p *PersistentSharedSecret) FindSsDeviceLogClaim(device model.DeviceId, claimId model.ClaimId) (model.SsClaim, bool, error) {
	events, err := p.FindSsDeviceLogEvents(device)
	if err != nil {
		return model.SsClaim{}, false, err
	}
	for _, event := range events {
		if event.SsDeviceLog != nil && event.SsDeviceLog.Claim.Id == claimId {
			return event.SsDeviceLog.Claim, true, nil
		}
	}
	return model.SsClaim{}, false, nil
}

// SsDeviceLogFreeId is the device's SsDeviceLog tail+1, reported back in
// ServerTailResponse alongside the DeviceLog tail (§4.4 step 3).
func (p *PersistentSharedSecret) SsDeviceLogFreeId(device model.DeviceId) (model.ArtifactId, error) {
	return p.obj.FindFreeId(model.ObjSsDeviceLog, string(device))
}

// workflowObjType picks Distribution vs Recovery's object category.
func workflowObjType(kind model.WorkflowKind) model.ObjectType {
	if kind == model.WorkflowRecovery {
		return model.ObjSsWorkflowRecovery
	}
	return model.ObjSsWorkflowDistrib
}

// SaveWorkflow persists a single share-transfer event, keyed by its
// SsDistributionId (Invariant: one event per transfer, §3.2).
func (p *PersistentSharedSecret) SaveWorkflow(kind model.WorkflowKind, distId model.SsDistributionId, share model.CipherShare) (model.ArtifactId, error) {
	objType := workflowObjType(kind)
	instance := distId.String()
	id := model.UnitId(objType, instance)
	event := model.GenericKvLogEvent{
		Key:  model.KvKey{ObjId: id, ObjDesc: objType},
		Kind: model.EventSsWorkflow,
		SsWorkflow: &model.SsWorkflowPayload{
			WorkflowKind: kind,
			Distribution: distId,
			Share:        share,
		},
	}
	return p.obj.Store.Save(event)
}

// FindWorkflow returns the single workflow event for a transfer, if any.
func (p *PersistentSharedSecret) FindWorkflow(kind model.WorkflowKind, distId model.SsDistributionId) (*model.SsWorkflowPayload, bool, error) {
	objType := workflowObjType(kind)
	id := model.UnitId(objType, distId.String())
	event, err := p.obj.Store.FindOne(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return event.SsWorkflow, true, nil
}

// DeleteWorkflow removes the server's (or the originating device's) copy
// of a workflow event, implementing the at-most-once relay invariant
// (Invariant 6): once relayed, the source deletes its copy.
func (p *PersistentSharedSecret) DeleteWorkflow(kind model.WorkflowKind, distId model.SsDistributionId) error {
	objType := workflowObjType(kind)
	return p.obj.Store.Delete(model.UnitId(objType, distId.String()))
}

