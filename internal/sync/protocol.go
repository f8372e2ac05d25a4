// Package sync implements C4, the Sync Gateway & Protocol: the
// bidirectional client<->server replication round and the server-side
// request router it talks to.
package sync

import "github.com/metasecret/metasecret/internal/model"

// ReadKind discriminates ReadSyncRequest's four variants.
type ReadKind string

const (
	ReadVault                ReadKind = "Vault"
	ReadSsRequest            ReadKind = "SsRequest"
	ReadServerTail           ReadKind = "ServerTail"
	ReadSsRecoveryCompletion ReadKind = "SsRecoveryCompletion"
)

// VaultRequest asks for everything newer than vaultTail on the named
// user's Vault/VaultLog/VaultStatus chains (§4.4 step 4).
type VaultRequest struct {
	User      model.UserId `json:"user"`
	VaultTail uint64       `json:"vault_tail"`
}

// SsRequestPayload asks for everything newer than ssLogTail on the
// vault's SsLog, plus any SsWorkflow events addressed to the requester
// (§4.4 step 7).
type SsRequestPayload struct {
	User      model.UserId `json:"user"`
	SsLogTail uint64       `json:"ss_log_tail"`
}

// ServerTailRequest asks the server what counters it expects next on the
// requester's DeviceLog/SsDeviceLog chains (§4.4 step 3).
type ServerTailRequest struct {
	User model.UserId `json:"user"`
}

// SsRecoveryCompletionRequest reports that the requester has collected
// enough recovery shares for claimId (§4.5 Completion).
type SsRecoveryCompletionRequest struct {
	VaultName model.VaultName `json:"vault_name"`
	ClaimId   model.ClaimId   `json:"claim_id"`
	Sender    model.DeviceId  `json:"sender"`
}

// ReadSyncRequest is the sum type Read(ReadSyncRequest) from §6. Exactly
// one of the payload fields is populated, selected by Kind.
type ReadSyncRequest struct {
	Kind ReadKind `json:"kind"`

	Vault                *VaultRequest                `json:"vault,omitempty"`
	SsRequest            *SsRequestPayload            `json:"ss_request,omitempty"`
	ServerTail           *ServerTailRequest           `json:"server_tail,omitempty"`
	SsRecoveryCompletion *SsRecoveryCompletionRequest `json:"ss_recovery_completion,omitempty"`
}

// WriteSyncRequest is Write(WriteSyncRequest): one event pushed by the
// client onto the server's store.
type WriteSyncRequest struct {
	Event model.GenericKvLogEvent `json:"event"`
}

// RequestKind discriminates SyncRequest's two top-level variants.
type RequestKind string

const (
	RequestRead  RequestKind = "Read"
	RequestWrite RequestKind = "Write"
)

// SyncRequest is the single RPC envelope every client<->server exchange
// uses: SyncRequest = Read(ReadSyncRequest) | Write(WriteSyncRequest).
type SyncRequest struct {
	Kind  RequestKind       `json:"kind"`
	Read  *ReadSyncRequest  `json:"read,omitempty"`
	Write *WriteSyncRequest `json:"write,omitempty"`
}

// NewReadRequest wraps a ReadSyncRequest in its envelope.
func NewReadRequest(r ReadSyncRequest) SyncRequest {
	return SyncRequest{Kind: RequestRead, Read: &r}
}

// NewWriteRequest wraps one event as a Write envelope.
func NewWriteRequest(event model.GenericKvLogEvent) SyncRequest {
	return SyncRequest{Kind: RequestWrite, Write: &WriteSyncRequest{Event: event}}
}

// ResponseKind discriminates DataSyncResponse's four variants.
type ResponseKind string

const (
	ResponseEmpty      ResponseKind = "Empty"
	ResponseData       ResponseKind = "Data"
	ResponseServerTail ResponseKind = "ServerTail"
	ResponseError      ResponseKind = "Error"
)

// ServerTailResponse answers ReadServerTail: the next free counter on
// each of the requester's server-side chains.
type ServerTailResponse struct {
	DeviceLogTail   model.ArtifactId `json:"device_log_tail"`
	SsDeviceLogTail model.ArtifactId `json:"ss_device_log_tail"`
}

// DataSyncResponse is the single response envelope:
// DataSyncResponse = Empty | Data([Event]) | ServerTailResponse{...} | Error{msg}.
type DataSyncResponse struct {
	Kind       ResponseKind         `json:"kind"`
	Data       []model.GenericKvLogEvent `json:"data,omitempty"`
	ServerTail *ServerTailResponse  `json:"server_tail,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// EmptyResponse is the canned "nothing to report" response.
func EmptyResponse() DataSyncResponse { return DataSyncResponse{Kind: ResponseEmpty} }

// DataResponse wraps a batch of events.
func DataResponse(events []model.GenericKvLogEvent) DataSyncResponse {
	return DataSyncResponse{Kind: ResponseData, Data: events}
}

// ErrorResponse wraps a diagnostic message.
func ErrorResponse(msg string) DataSyncResponse {
	return DataSyncResponse{Kind: ResponseError, Error: msg}
}
