package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
	"github.com/metasecret/metasecret/internal/secret"
	"github.com/metasecret/metasecret/internal/vaultaction"
)

// Transport is whatever carries a SyncRequest to the server and back —
// satisfied by HTTPClient, or an in-process stub in tests.
type Transport interface {
	Do(req SyncRequest) (DataSyncResponse, error)
}

// Gateway is the client-side half of C4: it runs on every device and
// ships events bidirectionally to the server (§4.4).
type Gateway struct {
	transport Transport
	vault     *objects.PersistentVault
	shared    *objects.PersistentSharedSecret
	creds     *objects.PersistentCredentials

	// workflow drives the orchestration the original source's
	// app_state_manager performs automatically on every tick (SPEC_FULL.md
	// §5 supplemented feature): responding to a Recover claim addressed
	// to this device. nil on a device that never needs to respond (e.g.
	// a harness exercising only push/pull wire behavior).
	workflow *secret.Workflow

	tick time.Duration
}

// NewGateway builds a sync gateway. tick is the outer loop's period;
// pass 0 to use the spec's ~1s default. workflow may be nil if this
// device never needs to auto-respond to recovery claims.
func NewGateway(transport Transport, vault *objects.PersistentVault, shared *objects.PersistentSharedSecret, creds *objects.PersistentCredentials, workflow *secret.Workflow, tick time.Duration) *Gateway {
	if tick <= 0 {
		tick = time.Second
	}
	return &Gateway{transport: transport, vault: vault, shared: shared, creds: creds, workflow: workflow, tick: tick}
}

// Run executes the outer loop: every tick, run one sync round; on
// error, log and continue. It returns when ctx is cancelled (§5
// "the sync loop checks for a shutdown signal between rounds").
func (g *Gateway) Run(ctx context.Context) {
	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.SyncOnce(); err != nil {
				fmt.Printf("sync round failed: %v\n", err)
			}
		}
	}
}

// SyncOnce runs a single sync() round, §4.4 steps 1-7.
func (g *Gateway) SyncOnce() error {
	// Step 1: load credentials; abort if no device creds.
	deviceCreds, ok, err := g.creds.FindDeviceCreds()
	if err != nil {
		return fmt.Errorf("failed to load device creds: %w", err)
	}
	if !ok {
		return nil
	}

	// Step 2: if only device creds (no user creds yet), nothing to sync.
	userCreds, ok, err := g.creds.FindUserCreds()
	if err != nil {
		return fmt.Errorf("failed to load user creds: %w", err)
	}
	if !ok {
		return nil
	}

	user := model.UserId{VaultName: userCreds.VaultName, DeviceId: deviceCreds.Device.DeviceId}

	// Step 3: ServerTailRequest.
	tailResp, err := g.transport.Do(NewReadRequest(ReadSyncRequest{
		Kind:       ReadServerTail,
		ServerTail: &ServerTailRequest{User: user},
	}))
	if err != nil {
		return fmt.Errorf("server_tail request failed: %w", err)
	}
	if tailResp.Kind != ResponseServerTail || tailResp.ServerTail == nil {
		return fmt.Errorf("unexpected server_tail response kind: %s", tailResp.Kind)
	}

	vaultTail, err := g.localVaultTail(userCreds.VaultName)
	if err != nil {
		return err
	}

	// Orchestration (supplemented feature, not a numbered §4.4 step): a
	// Member device auto-accepts any candidate it sees sitting in
	// Outsider{Pending}, the behavior scenario S2 calls "C's orchestrator
	// accepts." Queued here so the pending_device_log push below (step 5)
	// carries it out in the same round.
	if status, ok, err := g.vault.FindVaultStatus(user); err == nil && ok && status.Kind == model.VaultStatusMember {
		if err := g.autoAcceptPending(user); err != nil {
			return err
		}
	}

	// Step 4 + 6: pull vault-side events until a fixpoint (no new events
	// in either direction), rather than hardcoding "twice" (§5's
	// coroutine-control-flow note).
	for round := 0; round < maxSyncRounds; round++ {
		progressed, err := g.pullVault(user, &vaultTail)
		if err != nil {
			return err
		}

		pushedAny := false
		if round == 0 {
			pushedAny, err = g.pushDeviceLog(user, tailResp.ServerTail.DeviceLogTail.Counter)
			if err != nil {
				return err
			}
		}

		if !progressed && !pushedAny {
			break
		}
	}

	// Step 7: if the user is a Member, relay SsDeviceLog/SsWorkflow.
	status, ok, err := g.vault.FindVaultStatus(user)
	if err != nil {
		return fmt.Errorf("failed to read local vault status: %w", err)
	}
	if ok && status.Kind == model.VaultStatusMember {
		if _, err := g.pushSsDeviceLog(user, tailResp.ServerTail.SsDeviceLogTail.Counter); err != nil {
			return err
		}
		if err := g.pullSsRequest(user); err != nil {
			return err
		}
		if err := g.processSharedSecretInbox(user, deviceCreds); err != nil {
			return err
		}
	}

	return nil
}

// autoAcceptPending scans the vault's VaultLog for unresolved
// Request::JoinCluster actions and, for every candidate still sitting in
// Outsider{Pending} in the current VaultData, appends a local
// DeviceLog::UpdateMembership intent accepting it. VaultData itself only
// keeps a bare Pending marker per device (§4.3's aggregate drops the
// candidate's UserData on RequestJoinCluster) so the candidate's full
// DeviceData — needed to build the Member membership value — is
// recovered from the VaultLog record that queued the original request.
func (g *Gateway) autoAcceptPending(user model.UserId) error {
	vault, ok, err := g.vault.FindVault(user.VaultName)
	if err != nil || !ok {
		return err
	}

	logEvents, err := g.vault.FindVaultLogEvents(user.VaultName)
	if err != nil {
		return fmt.Errorf("failed to read vault log for auto-accept: %w", err)
	}

	handled := make(map[model.DeviceId]bool)
	for _, ev := range logEvents {
		if ev.VaultLog == nil {
			continue
		}
		action := vaultaction.FromRecord(ev.VaultLog.Action)
		if action.Kind != vaultaction.RequestJoinCluster {
			continue
		}
		candidateId := action.Candidate.Device.DeviceId
		if handled[candidateId] || candidateId == user.DeviceId {
			continue
		}
		membership, ok := vault.Users[candidateId]
		if !ok || membership.Kind != model.MembershipOutsider || membership.OutsiderStatus != model.StatusPending {
			continue
		}
		handled[candidateId] = true

		update := model.Member(action.Candidate)
		if _, err := g.vault.AppendDeviceLog(user, model.DeviceLogPayload{
			Op:     model.DeviceLogUpdateMember,
			Sender: user.DeviceId,
			Target: candidateId,
			Update: &update,
		}); err != nil {
			return fmt.Errorf("failed to queue auto-accept for %q: %w", candidateId, err)
		}
	}
	return nil
}

// processSharedSecretInbox implements the push half of the SsWorkflow
// relay semantics (§4.4 "SsWorkflow relay semantics") for events this
// device is responsible for producing: a Split distribution it
// originated, or a Recovery response it owes a requester. It runs after
// pullSsRequest has refreshed the local SsLog cache, so claim.Receivers
// reflects the cluster's current view.
func (g *Gateway) processSharedSecretInbox(user model.UserId, deviceCreds model.DeviceCreds) error {
	log, ok, err := g.shared.FindSsLog(user.VaultName)
	if err != nil || !ok {
		return err
	}
	vault, ok, err := g.vault.FindVault(user.VaultName)
	if err != nil || !ok {
		return err
	}

	for _, claim := range log.Claims {
		switch claim.DistributionType {
		case model.DistributionSplit:
			if claim.Sender != user.DeviceId {
				continue
			}
			for _, receiver := range claim.Receivers {
				distId := model.SsDistributionId{PassId: claim.PassId, Receiver: receiver}
				if err := g.pushWorkflowIfLocal(model.WorkflowDistribution, distId); err != nil {
					return err
				}
			}

		case model.DistributionRecover:
			if claim.Sender == user.DeviceId || !containsDevice(claim.Receivers, user.DeviceId) {
				continue
			}
			distId := model.SsDistributionId{PassId: claim.PassId, Sender: user.DeviceId, Receiver: claim.Sender}
			_, found, err := g.shared.FindWorkflow(model.WorkflowRecovery, distId)
			if err != nil {
				return err
			}
			if !found {
				if g.workflow == nil {
					continue
				}
				requester, ok := vault.Users[claim.Sender]
				if !ok || !requester.IsMember() {
					continue
				}
				if err := g.workflow.RespondToRecovery(deviceCreds, claim.PassId, claim.Sender, requester.Member.Device.Keys.TransportPk); err != nil {
					return fmt.Errorf("failed to auto-respond to recovery claim: %w", err)
				}
			}
			if err := g.pushWorkflowIfLocal(model.WorkflowRecovery, distId); err != nil {
				return err
			}
		}
	}
	return nil
}

// pushWorkflowIfLocal sends a locally-staged share-transfer event to the
// server and, once accepted, deletes the local copy — the at-most-once
// source invariant (Invariant 6).
func (g *Gateway) pushWorkflowIfLocal(kind model.WorkflowKind, distId model.SsDistributionId) error {
	payload, found, err := g.shared.FindWorkflow(kind, distId)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	objType := model.ObjSsWorkflowDistrib
	if kind == model.WorkflowRecovery {
		objType = model.ObjSsWorkflowRecovery
	}
	event := model.GenericKvLogEvent{
		Key:        model.KvKey{ObjId: model.UnitId(objType, distId.String()), ObjDesc: objType},
		Kind:       model.EventSsWorkflow,
		SsWorkflow: payload,
	}

	resp, err := g.transport.Do(NewWriteRequest(event))
	if err != nil {
		return fmt.Errorf("ss_workflow push failed: %w", err)
	}
	if resp.Kind == ResponseError {
		return fmt.Errorf("server rejected ss_workflow event: %s", resp.Error)
	}
	return g.shared.DeleteWorkflow(kind, distId)
}

// maxSyncRounds bounds the fixpoint search so a misbehaving server
// cannot spin the gateway forever.
const maxSyncRounds = 8

func (g *Gateway) localVaultTail(vaultName model.VaultName) (uint64, error) {
	events, err := g.vault.FindVaultLogEvents(vaultName)
	if err != nil {
		return 0, fmt.Errorf("failed to read local vault log: %w", err)
	}
	return uint64(len(events)), nil
}

// pullVault implements step 4: VaultRequest(user, vaultTail), saving
// whatever the server returns. It reports whether any new event arrived
// so the caller can detect a fixpoint.
func (g *Gateway) pullVault(user model.UserId, vaultTail *uint64) (bool, error) {
	resp, err := g.transport.Do(NewReadRequest(ReadSyncRequest{
		Kind:  ReadVault,
		Vault: &VaultRequest{User: user, VaultTail: *vaultTail},
	}))
	if err != nil {
		return false, fmt.Errorf("vault request failed: %w", err)
	}
	if resp.Kind == ResponseError {
		return false, fmt.Errorf("server error: %s", resp.Error)
	}
	if resp.Kind != ResponseData || len(resp.Data) == 0 {
		return false, nil
	}

	for _, event := range resp.Data {
		if _, err := g.vault.SaveRemoteEvent(event); err != nil {
			return false, fmt.Errorf("failed to save synced event: %w", err)
		}
		if event.Kind == model.EventVaultLog {
			*vaultTail++
		}
	}
	return true, nil
}

// pushDeviceLog implements step 5: push locally-generated DeviceLog
// events the server hasn't seen, from serverTail forward.
func (g *Gateway) pushDeviceLog(user model.UserId, serverTail uint64) (bool, error) {
	events, err := g.vault.FindDeviceLogEventsFrom(user, serverTail)
	if err != nil {
		return false, fmt.Errorf("failed to read local device log: %w", err)
	}
	for _, event := range events {
		resp, err := g.transport.Do(NewWriteRequest(event))
		if err != nil {
			return false, fmt.Errorf("device_log push failed: %w", err)
		}
		if resp.Kind == ResponseError {
			return false, fmt.Errorf("server rejected device_log event: %s", resp.Error)
		}
	}
	return len(events) > 0, nil
}

// pushSsDeviceLog is step 7's push-analog of step 5, for claim intents.
func (g *Gateway) pushSsDeviceLog(user model.UserId, serverTail uint64) (bool, error) {
	events, err := g.shared.FindSsDeviceLogEventsFrom(user.DeviceId, serverTail)
	if err != nil {
		return false, fmt.Errorf("failed to read local ss_device_log: %w", err)
	}
	for _, event := range events {
		resp, err := g.transport.Do(NewWriteRequest(event))
		if err != nil {
			return false, fmt.Errorf("ss_device_log push failed: %w", err)
		}
		if resp.Kind == ResponseError {
			return false, fmt.Errorf("server rejected ss_device_log event: %s", resp.Error)
		}
	}
	return len(events) > 0, nil
}

// pullSsRequest issues SsRequest and relays any SsWorkflow events back;
// per the relay semantics, a workflow event this device is the source of
// is deleted locally once the server has it (handled by the caller that
// owns that share, via secret.Workflow), while a delivered workflow
// event addressed to this device is simply saved.
func (g *Gateway) pullSsRequest(user model.UserId) error {
	tail, err := g.localSsLogTail(user.VaultName)
	if err != nil {
		return err
	}

	resp, err := g.transport.Do(NewReadRequest(ReadSyncRequest{
		Kind:      ReadSsRequest,
		SsRequest: &SsRequestPayload{User: user, SsLogTail: tail},
	}))
	if err != nil {
		return fmt.Errorf("ss_request failed: %w", err)
	}
	if resp.Kind == ResponseError {
		return fmt.Errorf("server error: %s", resp.Error)
	}
	if resp.Kind != ResponseData {
		return nil
	}

	for _, event := range resp.Data {
		if _, err := g.vault.SaveRemoteEvent(event); err != nil {
			return fmt.Errorf("failed to save synced ss event: %w", err)
		}
		if event.Kind == model.EventSsWorkflow && event.SsWorkflow != nil {
			if _, err := g.shared.SaveWorkflow(event.SsWorkflow.WorkflowKind, event.SsWorkflow.Distribution, event.SsWorkflow.Share); err != nil {
				return fmt.Errorf("failed to persist relayed workflow event: %w", err)
			}
		}
	}
	return nil
}

func (g *Gateway) localSsLogTail(vaultName model.VaultName) (uint64, error) {
	events, err := g.shared.FindSsLogEvents(vaultName)
	if err != nil {
		return 0, err
	}
	return uint64(len(events)), nil
}
