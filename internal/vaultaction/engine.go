package vaultaction

import (
	"fmt"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
)

// Engine is the server-side, stateful driver around ApplyVaultAggregate:
// it turns incoming DeviceLog intents into VaultLog entries, runs the
// pure aggregate, and writes the resulting Vault/VaultStatus/VaultLog
// chain events (§4.3's "after each non-request action" paragraph).
type Engine struct {
	vault       *objects.PersistentVault
	globalIndex *objects.PersistentGlobalIndex
}

// NewEngine builds a vault action engine over the given chain accessors.
func NewEngine(vault *objects.PersistentVault, globalIndex *objects.PersistentGlobalIndex) *Engine {
	return &Engine{vault: vault, globalIndex: globalIndex}
}

// CreateVault implements Init::CreateVault: idempotent vault creation.
// If the vault already exists, its current VaultData is returned
// unchanged — an "already exists" condition is idempotent success from
// the caller's view (§7).
func (e *Engine) CreateVault(owner model.UserData) (model.VaultData, error) {
	name := owner.VaultName

	if existing, ok, err := e.vault.FindVault(name); err != nil {
		return model.VaultData{}, err
	} else if ok {
		return *existing, nil
	}

	unit := model.NewVaultData(name)
	if _, err := e.vault.SaveVault(unit); err != nil { // counter 0: Unit
		return model.VaultData{}, fmt.Errorf("failed to write vault unit event: %w", err)
	}
	if _, err := e.vault.SaveVault(unit); err != nil { // counter 1: Genesis
		return model.VaultData{}, fmt.Errorf("failed to write vault genesis event: %w", err)
	}

	action := VaultActionEvent{Kind: InitCreateVault, Owner: owner}
	artifact := ApplyVaultAggregate(unit, []VaultActionEvent{action})
	if _, err := e.vault.SaveVault(artifact); err != nil { // counter 2: Artifact
		return model.VaultData{}, fmt.Errorf("failed to write vault artifact event: %w", err)
	}

	if _, err := e.vault.AppendVaultLog(name, model.VaultActionRecord{Kind: "Unit"}); err != nil {
		return model.VaultData{}, err
	}
	if _, err := e.vault.AppendVaultLog(name, model.VaultActionRecord{Kind: "Genesis"}); err != nil {
		return model.VaultData{}, err
	}

	ownerUser := model.UserId{VaultName: name, DeviceId: owner.Device.DeviceId}
	status := model.DeriveVaultStatus(&artifact, ownerUser)
	if _, err := e.vault.SaveVaultStatus(status); err != nil {
		return model.VaultData{}, err
	}

	if err := e.globalIndex.Add(name); err != nil {
		return model.VaultData{}, err
	}

	return artifact, nil
}

// SignUp implements the client's "sign-up" intent (§6 CLI surface,
// scenario S1): if the named vault does not yet exist, candidate
// becomes its owner via CreateVault; otherwise the request is treated
// as an ordinary Request::JoinCluster. This is what gives S1's fresh
// vault its exact 6-event shape — CreateVault's own writes, with no
// extra VaultLog entry queued on top — while still letting a later
// device's sign-up against an existing vault fall into the normal
// pending-then-accepted flow (S2).
func (e *Engine) SignUp(vaultName model.VaultName, candidate model.UserData) error {
	_, ok, err := e.vault.FindVault(vaultName)
	if err != nil {
		return err
	}
	if !ok {
		_, err := e.CreateVault(candidate)
		return err
	}
	return e.HandleDeviceLogEvent(vaultName, model.DeviceLogPayload{
		Op:        model.DeviceLogJoinCluster,
		Sender:    candidate.Device.DeviceId,
		Candidate: &candidate,
	})
}

// HandleDeviceLogEvent is the server's entry point for a DeviceLog
// intent pulled off a client's sync push (§4.4 "Write::Event(DeviceLog)").
// It translates the intent into a VaultActionEvent, appends it to
// VaultLog, applies the aggregate, and — only if the action actually
// changed vault state — writes the follow-on Vault/VaultStatus events
// and marks the VaultLog entry complete. An action dropped for an
// invalid sender (§7) stays in VaultLog unresolved.
func (e *Engine) HandleDeviceLogEvent(vaultName model.VaultName, payload model.DeviceLogPayload) error {
	action, err := actionFromDeviceLog(vaultName, payload)
	if err != nil {
		return err
	}

	record := action.toRecord()
	if _, err := e.vault.AppendVaultLog(vaultName, record); err != nil {
		return fmt.Errorf("failed to queue vault action: %w", err)
	}

	current, ok, err := e.vault.FindVault(vaultName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("vault %q does not exist", vaultName)
	}

	updated := ApplyVaultAggregate(*current, []VaultActionEvent{action})
	if vaultDataEqual(*current, updated) {
		// Silent drop (e.g. non-member sender): leave VaultLog entry
		// unresolved, write nothing else.
		return nil
	}

	if _, err := e.vault.SaveVault(updated); err != nil {
		return fmt.Errorf("failed to write vault update: %w", err)
	}

	affected := affectedUser(vaultName, action)
	status := model.DeriveVaultStatus(&updated, affected)
	if _, err := e.vault.SaveVaultStatus(status); err != nil {
		return fmt.Errorf("failed to write vault status update: %w", err)
	}

	if _, err := e.vault.MarkVaultLogCompleted(vaultName, record); err != nil {
		return fmt.Errorf("failed to mark vault action complete: %w", err)
	}
	return nil
}

func actionFromDeviceLog(vaultName model.VaultName, p model.DeviceLogPayload) (VaultActionEvent, error) {
	switch p.Op {
	case model.DeviceLogJoinCluster:
		if p.Candidate == nil {
			return VaultActionEvent{}, fmt.Errorf("join_cluster event missing candidate")
		}
		return VaultActionEvent{Kind: RequestJoinCluster, Candidate: *p.Candidate}, nil
	case model.DeviceLogAddMetaPass:
		if p.MetaPassId == nil {
			return VaultActionEvent{}, fmt.Errorf("add_meta_pass event missing meta_pass_id")
		}
		return VaultActionEvent{Kind: RequestAddMetaPass, Sender: p.Sender, MetaPassId: *p.MetaPassId}, nil
	case model.DeviceLogUpdateMember:
		if p.Update == nil {
			return VaultActionEvent{}, fmt.Errorf("update_membership event missing update")
		}
		_ = vaultName
		return VaultActionEvent{Kind: UpdateMembership, Sender: p.Sender, Target: p.Target, Update: *p.Update}, nil
	default:
		return VaultActionEvent{}, fmt.Errorf("unknown device log op: %s", p.Op)
	}
}

func affectedUser(vaultName model.VaultName, a VaultActionEvent) model.UserId {
	switch a.Kind {
	case RequestJoinCluster, UpdateAddToPending:
		return model.UserId{VaultName: vaultName, DeviceId: a.Candidate.Device.DeviceId}
	case UpdateMembership:
		return model.UserId{VaultName: vaultName, DeviceId: a.Target}
	default:
		return model.UserId{VaultName: vaultName, DeviceId: a.Sender}
	}
}

func vaultDataEqual(a, b model.VaultData) bool {
	if len(a.Users) != len(b.Users) || len(a.Secrets) != len(b.Secrets) {
		return false
	}
	for k, v := range a.Users {
		if bv, ok := b.Users[k]; !ok || bv != v {
			return false
		}
	}
	for k := range b.Users {
		if _, ok := a.Users[k]; !ok {
			return false
		}
	}
	for k := range a.Secrets {
		if _, ok := b.Secrets[k]; !ok {
			return false
		}
	}
	for k := range b.Secrets {
		if _, ok := a.Secrets[k]; !ok {
			return false
		}
	}
	return true
}
