package sync

import (
	"fmt"
	"strings"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
	"github.com/metasecret/metasecret/internal/secret"
	"github.com/metasecret/metasecret/internal/vaultaction"
)

// Router is the server-side half of C4: it dispatches an incoming
// SyncRequest to the store accessors and engines that answer it, per
// §4.4's "Server request routing" rules.
type Router struct {
	vault      *objects.PersistentVault
	shared     *objects.PersistentSharedSecret
	engine     *vaultaction.Engine
	completion *secret.CompletionClient
}

// NewRouter builds a server-side router over the given component
// accessors.
func NewRouter(vault *objects.PersistentVault, shared *objects.PersistentSharedSecret, engine *vaultaction.Engine, completion *secret.CompletionClient) *Router {
	return &Router{vault: vault, shared: shared, engine: engine, completion: completion}
}

// Handle dispatches one SyncRequest and returns the response to send
// back. It never returns a transport-level error for a well-formed
// domain failure — those are carried as DataSyncResponse{Kind: Error}
// per §6 — only for a malformed envelope.
func (r *Router) Handle(req SyncRequest) (DataSyncResponse, error) {
	switch req.Kind {
	case RequestRead:
		if req.Read == nil {
			return DataSyncResponse{}, fmt.Errorf("read request missing payload")
		}
		return r.handleRead(*req.Read), nil
	case RequestWrite:
		if req.Write == nil {
			return DataSyncResponse{}, fmt.Errorf("write request missing payload")
		}
		return r.handleWrite(req.Write.Event), nil
	default:
		return DataSyncResponse{}, fmt.Errorf("unknown sync request kind: %s", req.Kind)
	}
}

func (r *Router) handleRead(req ReadSyncRequest) DataSyncResponse {
	switch req.Kind {
	case ReadVault:
		if req.Vault == nil {
			return ErrorResponse("vault request missing payload")
		}
		return r.handleVaultRequest(*req.Vault)
	case ReadSsRequest:
		if req.SsRequest == nil {
			return ErrorResponse("ss_request missing payload")
		}
		return r.handleSsRequest(*req.SsRequest)
	case ReadServerTail:
		if req.ServerTail == nil {
			return ErrorResponse("server_tail request missing payload")
		}
		return r.handleServerTailRequest(*req.ServerTail)
	case ReadSsRecoveryCompletion:
		if req.SsRecoveryCompletion == nil {
			return ErrorResponse("ss_recovery_completion request missing payload")
		}
		return r.handleCompletion(*req.SsRecoveryCompletion)
	default:
		return ErrorResponse(fmt.Sprintf("unknown read request kind: %s", req.Kind))
	}
}

// handleVaultRequest implements: "Read::Vault: query VaultStatus of
// sender; if Outsider or NotExists, return VaultStatus only (public).
// If Member, return VaultLog + Vault + VaultStatus tail events."
func (r *Router) handleVaultRequest(req VaultRequest) DataSyncResponse {
	status, ok, err := r.vault.FindVaultStatus(req.User)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	if !ok {
		return EmptyResponse()
	}

	if status.Kind != model.VaultStatusMember {
		statusEvents, err := r.vault.FindVaultStatusEventsFrom(req.User, 0)
		if err != nil {
			return ErrorResponse(err.Error())
		}
		return DataResponse(statusEvents)
	}

	var events []model.GenericKvLogEvent
	logEvents, err := r.vault.FindVaultLogEventsFrom(req.User.VaultName, req.VaultTail)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	vaultEvents, err := r.vault.FindVaultEventsFrom(req.User.VaultName, req.VaultTail)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	statusEvents, err := r.vault.FindVaultStatusEventsFrom(req.User, req.VaultTail)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	events = append(events, logEvents...)
	events = append(events, vaultEvents...)
	events = append(events, statusEvents...)
	if len(events) == 0 {
		return EmptyResponse()
	}
	return DataResponse(events)
}

// handleSsRequest implements: "Read::SsRequest: return SsLog tail
// events; for each claim whose sender or receiver equals the requesting
// device, stream the corresponding SsWorkflow event and then delete it
// server-side." Split and Recover relay differently: a Split claim's
// receivers each pull their own loopback/P2P share once; a Recover
// claim's receivers are the devices asked to respond, so only the
// claim's sender (the original requester) ever has something to pull,
// and it may need to pull one event per responder.
func (r *Router) handleSsRequest(req SsRequestPayload) DataSyncResponse {
	var events []model.GenericKvLogEvent

	logEvents, err := r.shared.FindSsLogEventsFrom(req.User.VaultName, req.SsLogTail)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	events = append(events, logEvents...)

	log, ok, err := r.shared.FindSsLog(req.User.VaultName)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	if ok {
		for _, claim := range log.Claims {
			var claimEvents []model.GenericKvLogEvent
			switch claim.DistributionType {
			case model.DistributionSplit:
				claimEvents, err = r.relaySplitShare(req.User, claim)
			case model.DistributionRecover:
				claimEvents, err = r.relayRecoveryShares(req.User, claim)
			}
			if err != nil {
				return ErrorResponse(err.Error())
			}
			events = append(events, claimEvents...)
		}
	}

	if len(events) == 0 {
		return EmptyResponse()
	}
	return DataResponse(events)
}

// relaySplitShare hands a Split claim's own share to one of its
// receivers (including the splitting device's loopback copy), once.
func (r *Router) relaySplitShare(user model.UserId, claim model.SsClaim) ([]model.GenericKvLogEvent, error) {
	if !containsDevice(claim.Receivers, user.DeviceId) {
		return nil, nil
	}

	distId := model.SsDistributionId{PassId: claim.PassId, Receiver: user.DeviceId}
	payload, found, err := r.shared.FindWorkflow(model.WorkflowDistribution, distId)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	event := model.GenericKvLogEvent{
		Key:        model.KvKey{ObjId: model.UnitId(model.ObjSsWorkflowDistrib, distId.String()), ObjDesc: model.ObjSsWorkflowDistrib},
		Kind:       model.EventSsWorkflow,
		SsWorkflow: payload,
	}

	if err := r.shared.DeleteWorkflow(model.WorkflowDistribution, distId); err != nil {
		return nil, err
	}
	if err := r.completion.AdvanceClaimSent(user.VaultName, claim.Id, user.DeviceId); err != nil {
		return nil, err
	}
	return []model.GenericKvLogEvent{event}, nil
}

// relayRecoveryShares hands the original requester every Recovery
// response staged so far — one per responding device, since each
// responder addresses the same requester independently.
func (r *Router) relayRecoveryShares(user model.UserId, claim model.SsClaim) ([]model.GenericKvLogEvent, error) {
	if user.DeviceId != claim.Sender {
		return nil, nil
	}

	var events []model.GenericKvLogEvent
	for _, responder := range claim.Receivers {
		distId := model.SsDistributionId{PassId: claim.PassId, Sender: responder, Receiver: user.DeviceId}
		payload, found, err := r.shared.FindWorkflow(model.WorkflowRecovery, distId)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		events = append(events, model.GenericKvLogEvent{
			Key:        model.KvKey{ObjId: model.UnitId(model.ObjSsWorkflowRecovery, distId.String()), ObjDesc: model.ObjSsWorkflowRecovery},
			Kind:       model.EventSsWorkflow,
			SsWorkflow: payload,
		})

		if err := r.shared.DeleteWorkflow(model.WorkflowRecovery, distId); err != nil {
			return nil, err
		}
		if err := r.completion.AdvanceClaimSent(user.VaultName, claim.Id, responder); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func containsDevice(list []model.DeviceId, id model.DeviceId) bool {
	for _, d := range list {
		if d == id {
			return true
		}
	}
	return false
}

// handleServerTailRequest implements: "Read::ServerTail: return
// DeviceLog and SsDeviceLog free-counters for the requesting user."
func (r *Router) handleServerTailRequest(req ServerTailRequest) DataSyncResponse {
	deviceLogTail, err := r.vault.DeviceLogFreeId(req.User)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	ssDeviceLogTail, err := r.shared.SsDeviceLogFreeId(req.User.DeviceId)
	if err != nil {
		return ErrorResponse(err.Error())
	}
	return DataSyncResponse{
		Kind: ResponseServerTail,
		ServerTail: &ServerTailResponse{
			DeviceLogTail:   deviceLogTail,
			SsDeviceLogTail: ssDeviceLogTail,
		},
	}
}

func (r *Router) handleCompletion(req SsRecoveryCompletionRequest) DataSyncResponse {
	if err := r.completion.SsRecoveryCompletion(req.VaultName, req.ClaimId, req.Sender); err != nil {
		return ErrorResponse(err.Error())
	}
	return EmptyResponse()
}

// handleWrite implements the three Write::Event(...) rules: persist and
// feed the event to whichever component owns its category.
func (r *Router) handleWrite(event model.GenericKvLogEvent) DataSyncResponse {
	switch event.Kind {
	case model.EventDeviceLog:
		if event.DeviceLog == nil {
			return ErrorResponse("device_log event missing payload")
		}
		vaultName := vaultNameFromKey(event.Key)
		user := model.UserId{VaultName: vaultName, DeviceId: event.DeviceLog.Sender}
		if _, err := r.vault.AppendDeviceLog(user, *event.DeviceLog); err != nil {
			return ErrorResponse(err.Error())
		}
		if event.DeviceLog.Op == model.DeviceLogSignUp {
			if event.DeviceLog.Candidate == nil {
				return ErrorResponse("sign_up event missing candidate")
			}
			if err := r.engine.SignUp(vaultName, *event.DeviceLog.Candidate); err != nil {
				return ErrorResponse(err.Error())
			}
			return EmptyResponse()
		}
		if err := r.engine.HandleDeviceLogEvent(vaultName, *event.DeviceLog); err != nil {
			return ErrorResponse(err.Error())
		}
		return EmptyResponse()

	case model.EventSsDeviceLog:
		if event.SsDeviceLog == nil {
			return ErrorResponse("ss_device_log event missing payload")
		}
		claim := event.SsDeviceLog.Claim
		if _, err := r.shared.AppendSsDeviceLogClaim(claim.Sender, claim); err != nil {
			return ErrorResponse(err.Error())
		}
		if err := r.completion.InsertClaim(claim.VaultName, claim); err != nil {
			return ErrorResponse(err.Error())
		}
		return EmptyResponse()

	case model.EventSsWorkflow:
		if event.SsWorkflow == nil {
			return ErrorResponse("ss_workflow event missing payload")
		}
		if _, err := r.shared.SaveWorkflow(event.SsWorkflow.WorkflowKind, event.SsWorkflow.Distribution, event.SsWorkflow.Share); err != nil {
			return ErrorResponse(err.Error())
		}
		return EmptyResponse()

	default:
		return ErrorResponse(fmt.Sprintf("server does not accept writes of kind %s", event.Kind))
	}
}

// vaultNameFromKey recovers the vault name from a DeviceLog event's
// instance string, which AppendDeviceLog writes as UserId.String() =
// "<vaultName>/<deviceId>". DeviceId is URL-safe base64 and never
// contains '/', so splitting at the last one is unambiguous.
func vaultNameFromKey(key model.KvKey) model.VaultName {
	instance := key.ObjId.Fqdn.ObjInstance
	idx := strings.LastIndex(instance, "/")
	if idx < 0 {
		return model.VaultName(instance)
	}
	return model.VaultName(instance[:idx])
}
