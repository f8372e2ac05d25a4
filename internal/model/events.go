package model

import "fmt"

// EventKind discriminates GenericKvLogEvent's variants, §9 "Polymorphic
// event dispatch": one sum type instead of scattered type switches.
type EventKind string

const (
	EventDeviceCreds  EventKind = "DeviceCreds"
	EventUserCreds    EventKind = "UserCreds"
	EventDeviceLog    EventKind = "DeviceLog"
	EventVaultLog     EventKind = "VaultLog"
	EventVault        EventKind = "Vault"
	EventVaultStatus  EventKind = "VaultStatus"
	EventSsDeviceLog  EventKind = "SsDeviceLog"
	EventSsLog        EventKind = "SsLog"
	EventSsWorkflow   EventKind = "SsWorkflow"
	EventGlobalIndex  EventKind = "GlobalIndex"
	EventDbError      EventKind = "DbError"
)

// KvKey is the self-describing header every event carries: where it
// lives (ObjId) and what category of object it belongs to (ObjDesc).
type KvKey struct {
	ObjId   ArtifactId `json:"obj_id"`
	ObjDesc ObjectType `json:"obj_desc"`
}

// GenericKvLogEvent is the single sum type every chain stores. Exactly
// one of the typed payload fields is populated, selected by Kind — callers
// use the As* accessors rather than inspecting the struct directly, so
// that adding a variant only touches this file and its constructors.
type GenericKvLogEvent struct {
	Key  KvKey     `json:"key"`
	Kind EventKind `json:"kind"`

	DeviceCreds *DeviceCredsPayload `json:"device_creds,omitempty"`
	UserCreds   *UserCredsPayload   `json:"user_creds,omitempty"`
	DeviceLog   *DeviceLogPayload   `json:"device_log,omitempty"`
	VaultLog    *VaultLogPayload    `json:"vault_log,omitempty"`
	Vault       *VaultPayload       `json:"vault,omitempty"`
	VaultStatus *VaultStatusPayload `json:"vault_status,omitempty"`
	SsDeviceLog *SsDeviceLogPayload `json:"ss_device_log,omitempty"`
	SsLog       *SsLogPayload       `json:"ss_log,omitempty"`
	SsWorkflow  *SsWorkflowPayload  `json:"ss_workflow,omitempty"`
	GlobalIndex *GlobalIndexPayload `json:"global_index,omitempty"`
	DbError     *DbErrorPayload     `json:"db_error,omitempty"`
}

// ArtifactId is a convenience accessor over the event's key.
func (e GenericKvLogEvent) ArtifactId() ArtifactId { return e.Key.ObjId }

// --- Local, single-event chains -------------------------------------------------

// DeviceCredsPayload is the one-event local-only DeviceCreds chain.
type DeviceCredsPayload struct {
	Creds DeviceCreds `json:"creds"`
}

// UserCredsPayload is the one-event local-only UserCreds chain.
type UserCredsPayload struct {
	Creds UserCreds `json:"creds"`
}

// --- DeviceLog: a device's outgoing queue of intents -----------------------

// DeviceLogOp discriminates what a DeviceLog event asks the server to do.
type DeviceLogOp string

const (
	DeviceLogSignUp       DeviceLogOp = "SignUp"
	DeviceLogJoinCluster  DeviceLogOp = "JoinCluster"
	DeviceLogAddMetaPass  DeviceLogOp = "AddMetaPass"
	DeviceLogUpdateMember DeviceLogOp = "UpdateMembership"
)

// DeviceLogPayload carries one outgoing intent.
type DeviceLogPayload struct {
	Op         DeviceLogOp     `json:"op"`
	Sender     DeviceId        `json:"sender"`
	Candidate  *UserData       `json:"candidate,omitempty"`    // JoinCluster
	MetaPassId *MetaPasswordId `json:"meta_pass_id,omitempty"` // AddMetaPass
	Target     DeviceId        `json:"target,omitempty"`       // UpdateMembership
	Update     *UserMembership `json:"update,omitempty"`       // UpdateMembership
}

// --- VaultLog: the server's pending-actions queue ---------------------------

// VaultLogPayload mirrors DeviceLogPayload once the server has accepted
// it onto the vault's own chain, plus a completion marker variant.
type VaultLogPayload struct {
	Action    VaultActionRecord `json:"action"`
	Completed bool              `json:"completed"`
}

// VaultActionRecord is the durable form of a VaultActionEvent (see
// internal/vaultaction), kept here so model has no dependency on that
// package.
type VaultActionRecord struct {
	Kind       string          `json:"kind"` // mirrors vaultaction.ActionKind
	Sender     DeviceId        `json:"sender"`
	Candidate  *UserData       `json:"candidate,omitempty"`
	Update     *UserMembership `json:"update,omitempty"`
	Target     DeviceId        `json:"target,omitempty"`
	MetaPassId *MetaPasswordId `json:"meta_pass_id,omitempty"`
	Owner      *UserData       `json:"owner,omitempty"`
}

// --- Vault / VaultStatus -----------------------------------------------------

// VaultPayload carries a full VaultData snapshot at this point in the chain.
type VaultPayload struct {
	Data VaultData `json:"data"`
}

// VaultStatusPayload carries one user's derived status.
type VaultStatusPayload struct {
	Status VaultStatus `json:"status"`
}

// --- SsDeviceLog / SsLog ------------------------------------------------------

// SsDeviceLogPayload is a device's local claim intent.
type SsDeviceLogPayload struct {
	Claim SsClaim `json:"claim"`
}

// SsLogPayload is the cluster-wide ledger snapshot at this chain position.
type SsLogPayload struct {
	Log SsLogData `json:"log"`
}

// --- SsWorkflow: one share transfer -----------------------------------------

// WorkflowKind discriminates Distribution vs Recovery within SsWorkflow.
type WorkflowKind string

const (
	WorkflowDistribution WorkflowKind = "Distribution"
	WorkflowRecovery     WorkflowKind = "Recovery"
)

// SsWorkflowPayload is a single event per share transfer.
type SsWorkflowPayload struct {
	WorkflowKind WorkflowKind     `json:"workflow_kind"`
	Distribution SsDistributionId `json:"distribution_id"`
	Share        CipherShare      `json:"share"`
}

// --- GlobalIndex --------------------------------------------------------------

// GlobalIndexPayload lists known vault names.
type GlobalIndexPayload struct {
	VaultNames []VaultName `json:"vault_names"`
}

// --- DbError -------------------------------------------------------------------

// DbErrorPayload carries a diagnostic for a corrupt or undecodable event
// encountered on read (§7: log, skip, don't advance tail).
type DbErrorPayload struct {
	Message string `json:"message"`
}

// NewDeviceCredsEvent builds the Unit event for a DeviceCreds chain.
func NewDeviceCredsEvent(creds DeviceCreds) GenericKvLogEvent {
	return GenericKvLogEvent{
		Key:         KvKey{ObjId: UnitId(ObjDeviceCreds, "index"), ObjDesc: ObjDeviceCreds},
		Kind:        EventDeviceCreds,
		DeviceCreds: &DeviceCredsPayload{Creds: creds},
	}
}

// NewUserCredsEvent builds the Unit event for a UserCreds chain.
func NewUserCredsEvent(creds UserCreds) GenericKvLogEvent {
	return GenericKvLogEvent{
		Key:       KvKey{ObjId: UnitId(ObjUserCreds, "index"), ObjDesc: ObjUserCreds},
		Kind:      EventUserCreds,
		UserCreds: &UserCredsPayload{Creds: creds},
	}
}

func (e GenericKvLogEvent) String() string {
	return fmt.Sprintf("%s@%s", e.Kind, e.Key.ObjId)
}
