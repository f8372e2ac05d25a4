package app

import (
	"fmt"
	"time"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
	"github.com/metasecret/metasecret/internal/secret"
	"github.com/metasecret/metasecret/internal/store"
	"github.com/metasecret/metasecret/internal/sync"
)

// MetaClient is the single façade cmd/metasecret drives: every CLI
// command (§6) maps onto one of its methods. It owns one local store and
// wires the five components (C1-C5) the way forgor/main.go wires
// storage, crypto, and the sync client behind its TUI, generalized to a
// scriptable command surface instead of an interactive app.
type MetaClient struct {
	Store    store.Store
	Obj      *objects.PersistentObject
	Creds    *objects.PersistentCredentials
	Vault    *objects.PersistentVault
	Shared   *objects.PersistentSharedSecret
	Workflow *secret.Workflow
	Gateway  *sync.Gateway

	transport sync.Transport
}

// NewMetaClient wires a façade around a store, a transport to the sync
// server, and the master key that unwraps this device's credentials at
// rest.
func NewMetaClient(s store.Store, masterKey []byte, transport sync.Transport, tick time.Duration) *MetaClient {
	obj := objects.NewPersistentObject(s)
	creds := objects.NewPersistentCredentials(obj, masterKey)
	vault := objects.NewPersistentVault(obj)
	shared := objects.NewPersistentSharedSecret(obj)
	workflow := secret.NewWorkflow(vault, shared, creds)
	gateway := sync.NewGateway(transport, vault, shared, creds, workflow, tick)

	return &MetaClient{
		Store:     s,
		Obj:       obj,
		Creds:     creds,
		Vault:     vault,
		Shared:    shared,
		Workflow:  workflow,
		Gateway:   gateway,
		transport: transport,
	}
}

// InitDevice implements `init-device`: idempotent device bootstrap.
func (c *MetaClient) InitDevice(deviceName string) (model.DeviceCreds, error) {
	return c.Creds.GetOrGenerateDeviceCreds(deviceName)
}

// InitUser implements `init-user --vault-name X`: binds this device's
// existing credentials to a vault name, idempotently.
func (c *MetaClient) InitUser(vaultName model.VaultName) (model.UserCreds, error) {
	deviceCreds, ok, err := c.Creds.FindDeviceCreds()
	if err != nil {
		return model.UserCreds{}, err
	}
	if !ok {
		return model.UserCreds{}, fmt.Errorf("no device credentials: run init-device first")
	}
	return c.Creds.GetOrGenerateUserCreds(vaultName, deviceCreds)
}

// State implements `info`'s bootstrap-lifecycle lookup.
func (c *MetaClient) State() (DeviceState, error) {
	return Determine(c.Creds, c.Vault)
}

// CurrentUser reports the (vault, device) this client currently speaks
// for, once both device and user creds exist.
func (c *MetaClient) CurrentUser() (model.UserId, model.DeviceCreds, error) {
	deviceCreds, ok, err := c.Creds.FindDeviceCreds()
	if err != nil {
		return model.UserId{}, model.DeviceCreds{}, err
	}
	if !ok {
		return model.UserId{}, model.DeviceCreds{}, fmt.Errorf("no device credentials: run init-device first")
	}
	userCreds, ok, err := c.Creds.FindUserCreds()
	if err != nil {
		return model.UserId{}, model.DeviceCreds{}, err
	}
	if !ok {
		return model.UserId{}, model.DeviceCreds{}, fmt.Errorf("no user credentials: run init-user first")
	}
	return model.UserId{VaultName: userCreds.VaultName, DeviceId: deviceCreds.Device.DeviceId}, deviceCreds, nil
}

// SignUp implements `sign-up`: appends a SignUp intent to this device's
// own DeviceLog, to be picked up by the next sync round (§6, scenario
// S1/S2/S6). Repeating it is safe — the server's Engine.SignUp and the
// aggregate's RequestJoinCluster branch are both idempotent.
func (c *MetaClient) SignUp() error {
	user, deviceCreds, err := c.CurrentUser()
	if err != nil {
		return err
	}
	candidate := model.UserData{VaultName: user.VaultName, Device: deviceCreds.Device}
	_, err = c.Vault.AppendDeviceLog(user, model.DeviceLogPayload{
		Op:        model.DeviceLogSignUp,
		Sender:    user.DeviceId,
		Candidate: &candidate,
	})
	return err
}

// Sync runs the sync gateway's round `rounds` times — a scriptable CLI
// invocation has no long-lived background loop, so every command that
// needs fresh server state drives a handful of rounds itself rather than
// relying on Gateway.Run's ticker (§9's fixpoint note: several short
// rounds converge the same way one long-running loop would).
func (c *MetaClient) Sync(rounds int) error {
	if rounds <= 0 {
		rounds = 2
	}
	for i := 0; i < rounds; i++ {
		if err := c.Gateway.SyncOnce(); err != nil {
			return err
		}
	}
	return nil
}

// Split implements `split <name> <pass>`.
func (c *MetaClient) Split(passwordName, plaintext string) (model.SsClaim, error) {
	user, deviceCreds, err := c.CurrentUser()
	if err != nil {
		return model.SsClaim{}, err
	}
	userCreds, ok, err := c.Creds.FindUserCreds()
	if err != nil {
		return model.SsClaim{}, err
	}
	if !ok {
		return model.SsClaim{}, fmt.Errorf("no user credentials: run init-user first")
	}
	_ = user
	return c.Workflow.Split(deviceCreds, userCreds, passwordName, plaintext)
}

// Recover implements `recover <name>`: looks the vault's registered
// secret up by its human-chosen name (the only thing an operator is
// expected to remember) and issues the recovery claim for it.
func (c *MetaClient) Recover(passwordName string) (model.SsClaim, error) {
	user, deviceCreds, err := c.CurrentUser()
	if err != nil {
		return model.SsClaim{}, err
	}
	passId, err := c.lookupMetaPasswordId(user.VaultName, passwordName)
	if err != nil {
		return model.SsClaim{}, err
	}
	return c.Workflow.Recover(deviceCreds, user.VaultName, passId)
}

// AcceptRecover implements `accept-recover <claim-id>`: combines
// whatever recovery shares have arrived for a Recover claim this device
// originated, then tells the server each responder's row is complete
// (§4.5 Completion).
func (c *MetaClient) AcceptRecover(claimId model.ClaimId) (string, error) {
	user, deviceCreds, err := c.CurrentUser()
	if err != nil {
		return "", err
	}
	claim, ok, err := c.Shared.FindSsDeviceLogClaim(user.DeviceId, claimId)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no local recovery claim %q", claimId)
	}
	if claim.DistributionType != model.DistributionRecover || claim.Sender != user.DeviceId {
		return "", fmt.Errorf("claim %q is not a recovery claim this device originated", claimId)
	}

	plaintext, err := c.Workflow.Combine(deviceCreds, claim.PassId, claim.Receivers)
	if err != nil {
		return "", err
	}

	for _, responder := range claim.Receivers {
		resp, err := c.transport.Do(sync.NewReadRequest(sync.ReadSyncRequest{
			Kind: sync.ReadSsRecoveryCompletion,
			SsRecoveryCompletion: &sync.SsRecoveryCompletionRequest{
				VaultName: user.VaultName,
				ClaimId:   claimId,
				Sender:    responder,
			},
		}))
		if err != nil {
			return "", fmt.Errorf("completion request failed for %q: %w", responder, err)
		}
		if resp.Kind == sync.ResponseError {
			return "", fmt.Errorf("server rejected completion for %q: %s", responder, resp.Error)
		}
	}

	return plaintext, nil
}

// ShowSecrets implements `show-secrets`: the vault's registered
// MetaPasswordIds (never the plaintext — §3.3, only the id is ever
// recorded).
func (c *MetaClient) ShowSecrets() ([]model.MetaPasswordId, error) {
	user, _, err := c.CurrentUser()
	if err != nil {
		return nil, err
	}
	vault, ok, err := c.Vault.FindVault(user.VaultName)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]model.MetaPasswordId, 0, len(vault.Secrets))
	for _, id := range vault.Secrets {
		out = append(out, id)
	}
	return out, nil
}

// ShowClaims implements `show-claims`: every active share-transfer
// workflow this vault's local SsLog cache currently knows about.
func (c *MetaClient) ShowClaims() ([]model.SsClaim, error) {
	user, _, err := c.CurrentUser()
	if err != nil {
		return nil, err
	}
	log, ok, err := c.Shared.FindSsLog(user.VaultName)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]model.SsClaim, 0, len(log.Claims))
	for _, claim := range log.Claims {
		out = append(out, claim)
	}
	return out, nil
}

// ShowEvents implements `show-events`: the raw event history of this
// device's own outgoing DeviceLog — the introspection an operator reaches
// for when a sync round isn't behaving the way they expect.
func (c *MetaClient) ShowEvents() ([]model.GenericKvLogEvent, error) {
	user, _, err := c.CurrentUser()
	if err != nil {
		return nil, err
	}
	return c.Vault.FindDeviceLogEvents(user)
}

func (c *MetaClient) lookupMetaPasswordId(vaultName model.VaultName, passwordName string) (model.MetaPasswordId, error) {
	vault, ok, err := c.Vault.FindVault(vaultName)
	if err != nil {
		return model.MetaPasswordId{}, err
	}
	if !ok {
		return model.MetaPasswordId{}, fmt.Errorf("vault %q does not exist", vaultName)
	}
	for _, id := range vault.Secrets {
		if id.Name == passwordName {
			return id, nil
		}
	}
	return model.MetaPasswordId{}, fmt.Errorf("no registered secret named %q", passwordName)
}
