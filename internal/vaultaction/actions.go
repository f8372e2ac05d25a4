// Package vaultaction implements C3, the Vault Action Engine: the pure
// aggregate that folds VaultActionEvents into a VaultData, and the
// stateful engine that drives chain writes around it.
package vaultaction

import "github.com/metasecret/metasecret/internal/model"

// ActionKind enumerates the taxonomy in spec §4.3.
type ActionKind string

const (
	InitCreateVault     ActionKind = "Init::CreateVault"
	RequestJoinCluster  ActionKind = "Request::JoinCluster"
	RequestAddMetaPass  ActionKind = "Request::AddMetaPass"
	UpdateMembership    ActionKind = "Update::UpdateMembership"
	UpdateAddMetaPass   ActionKind = "Update::AddMetaPass"
	UpdateAddToPending  ActionKind = "Update::AddToPending"
)

// VaultActionEvent is the in-memory form of one pending vault action.
// Exactly the fields relevant to Kind are populated.
type VaultActionEvent struct {
	Kind ActionKind

	// Init::CreateVault
	Owner model.UserData

	// Request::JoinCluster, Update::AddToPending — the device asking
	// to join, or being forced back to Pending.
	Candidate model.UserData

	// Request::AddMetaPass, Update::AddMetaPass
	Sender     model.DeviceId
	MetaPassId model.MetaPasswordId

	// Update::UpdateMembership
	Target model.DeviceId
	Update model.UserMembership
}

// VaultName reports which vault this action targets.
func (e VaultActionEvent) VaultName() model.VaultName {
	switch e.Kind {
	case InitCreateVault:
		return e.Owner.VaultName
	case RequestJoinCluster, UpdateAddToPending:
		return e.Candidate.VaultName
	default:
		return "" // filled by caller context; Sender/Target carry no vault name
	}
}

// isMutation reports whether this action kind mutates membership and
// therefore must be gated on "sender is a current Member" (§4.3 step 1).
func (e VaultActionEvent) isMutation() bool {
	switch e.Kind {
	case UpdateMembership, UpdateAddMetaPass, RequestAddMetaPass:
		return true
	default:
		return false
	}
}

// toRecord converts the in-memory action into the durable
// model.VaultActionRecord stored on the VaultLog chain.
func (e VaultActionEvent) toRecord() model.VaultActionRecord {
	rec := model.VaultActionRecord{Kind: string(e.Kind), Sender: e.Sender}
	switch e.Kind {
	case InitCreateVault:
		owner := e.Owner
		rec.Owner = &owner
	case RequestJoinCluster, UpdateAddToPending:
		candidate := e.Candidate
		rec.Candidate = &candidate
	case RequestAddMetaPass, UpdateAddMetaPass:
		mp := e.MetaPassId
		rec.MetaPassId = &mp
	case UpdateMembership:
		rec.Target = e.Target
		update := e.Update
		rec.Update = &update
	}
	return rec
}

// FromRecord reconstructs a VaultActionEvent from its durable form —
// used by callers that read VaultActionRecords back off the VaultLog
// chain instead of constructing the event fresh (the sync gateway's
// auto-accept scan).
func FromRecord(rec model.VaultActionRecord) VaultActionEvent {
	e := VaultActionEvent{Kind: ActionKind(rec.Kind), Sender: rec.Sender}
	if rec.Owner != nil {
		e.Owner = *rec.Owner
	}
	if rec.Candidate != nil {
		e.Candidate = *rec.Candidate
	}
	if rec.MetaPassId != nil {
		e.MetaPassId = *rec.MetaPassId
	}
	if rec.Update != nil {
		e.Target = rec.Target
		e.Update = *rec.Update
	}
	return e
}
