package sync

import (
	"testing"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
	"github.com/metasecret/metasecret/internal/secret"
	"github.com/metasecret/metasecret/internal/store"
	"github.com/metasecret/metasecret/internal/vaultaction"
	"github.com/stretchr/testify/require"
)

// routerTransport dispatches straight into a server-side Router, the
// in-process stand-in the Transport doc comment calls out for tests —
// no HTTP round trip needed to exercise the wire protocol's semantics.
type routerTransport struct {
	router *Router
}

func (t *routerTransport) Do(req SyncRequest) (DataSyncResponse, error) {
	return t.router.Handle(req)
}

type testDevice struct {
	creds   *objects.PersistentCredentials
	vault   *objects.PersistentVault
	shared  *objects.PersistentSharedSecret
	gateway *Gateway
}

func newTestDevice(t *testing.T, transport Transport) *testDevice {
	t.Helper()
	obj := objects.NewPersistentObject(store.NewMemoryStore())
	vault := objects.NewPersistentVault(obj)
	shared := objects.NewPersistentSharedSecret(obj)
	masterKey := make([]byte, 32)
	creds := objects.NewPersistentCredentials(obj, masterKey)
	wf := secret.NewWorkflow(vault, shared, creds)
	return &testDevice{
		creds:   creds,
		vault:   vault,
		shared:  shared,
		gateway: NewGateway(transport, vault, shared, creds, wf, 0),
	}
}

func newTestServer(t *testing.T) *routerTransport {
	t.Helper()
	obj := objects.NewPersistentObject(store.NewMemoryStore())
	vault := objects.NewPersistentVault(obj)
	shared := objects.NewPersistentSharedSecret(obj)
	idx := objects.NewPersistentGlobalIndex(obj)
	engine := vaultaction.NewEngine(vault, idx)
	completion := secret.NewCompletionClient(shared)
	router := NewRouter(vault, shared, engine, completion)
	return &routerTransport{router: router}
}

func (d *testDevice) signUp(t *testing.T, vaultName model.VaultName, deviceName string) model.UserId {
	t.Helper()
	deviceCreds, err := d.creds.GetOrGenerateDeviceCreds(deviceName)
	require.NoError(t, err)
	userCreds, err := d.creds.GetOrGenerateUserCreds(vaultName, deviceCreds)
	require.NoError(t, err)

	user := model.UserId{VaultName: userCreds.VaultName, DeviceId: deviceCreds.Device.DeviceId}
	candidate := model.UserData{VaultName: vaultName, Device: deviceCreds.Device}
	_, err = d.vault.AppendDeviceLog(user, model.DeviceLogPayload{
		Op:        model.DeviceLogSignUp,
		Sender:    user.DeviceId,
		Candidate: &candidate,
	})
	require.NoError(t, err)
	return user
}

// TestGatewaySignUpAndAutoAccept mirrors S1/S2: a fresh vault is created
// by its first sign-up, a second device's join request lands as an
// Outsider{Pending}, and the owner's own next sync round auto-accepts it
// without any manual "approve" step.
func TestGatewaySignUpAndAutoAccept(t *testing.T) {
	server := newTestServer(t)

	owner := newTestDevice(t, server)
	ownerUser := owner.signUp(t, "acme", "owner")
	require.NoError(t, owner.gateway.SyncOnce())

	status, ok, err := owner.vault.FindVaultStatus(ownerUser)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.VaultStatusMember, status.Kind)

	second := newTestDevice(t, server)
	secondUser := second.signUp(t, "acme", "second")
	require.NoError(t, second.gateway.SyncOnce())

	// second's own status should still read Outsider/Pending immediately
	// after requesting to join.
	secondStatus, ok, err := second.vault.FindVaultStatus(secondUser)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, model.VaultStatusMember, secondStatus.Kind)

	// The owner's next round notices the pending candidate and queues an
	// accept; a couple more rounds converge both sides to Member.
	require.NoError(t, owner.gateway.SyncOnce())
	require.NoError(t, second.gateway.SyncOnce())
	require.NoError(t, owner.gateway.SyncOnce())
	require.NoError(t, second.gateway.SyncOnce())

	finalStatus, ok, err := second.vault.FindVaultStatus(secondUser)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.VaultStatusMember, finalStatus.Kind)

	vault, ok, err := second.vault.FindVault("acme")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, vault.IsMember(ownerUser.DeviceId))
	require.True(t, vault.IsMember(secondUser.DeviceId))
}

// TestGatewaySplitAndRecoverRelay mirrors S3/S4: once two devices are
// both Members, a secret split by one relays a loopback share to itself
// and a peer share to the other purely through sync rounds, and a
// recovery claim gets auto-answered by the peer's own gateway without
// any explicit "respond" call from the test.
func TestGatewaySplitAndRecoverRelay(t *testing.T) {
	server := newTestServer(t)

	owner := newTestDevice(t, server)
	ownerUser := owner.signUp(t, "acme", "owner")
	require.NoError(t, owner.gateway.SyncOnce())

	second := newTestDevice(t, server)
	secondUser := second.signUp(t, "acme", "second")
	require.NoError(t, second.gateway.SyncOnce())
	require.NoError(t, owner.gateway.SyncOnce())
	require.NoError(t, second.gateway.SyncOnce())
	require.NoError(t, owner.gateway.SyncOnce())
	require.NoError(t, second.gateway.SyncOnce())

	ownerDeviceCreds, ok, err := owner.creds.FindDeviceCreds()
	require.NoError(t, err)
	require.True(t, ok)
	ownerUserCreds, ok, err := owner.creds.FindUserCreds()
	require.NoError(t, err)
	require.True(t, ok)

	ownerWorkflow := secret.NewWorkflow(owner.vault, owner.shared, owner.creds)
	claim, err := ownerWorkflow.Split(ownerDeviceCreds, ownerUserCreds, "db-password", "hunter2")
	require.NoError(t, err)
	require.ElementsMatch(t, []model.DeviceId{ownerUser.DeviceId, secondUser.DeviceId}, claim.Receivers)

	// A few rounds relay both the loopback share and the peer's share.
	for i := 0; i < 3; i++ {
		require.NoError(t, owner.gateway.SyncOnce())
		require.NoError(t, second.gateway.SyncOnce())
	}

	_, found, err := second.shared.FindWorkflow(model.WorkflowDistribution, model.SsDistributionId{PassId: claim.PassId, Receiver: secondUser.DeviceId})
	require.NoError(t, err)
	require.True(t, found, "second device should have received its distribution share")

	// Now the owner asks the vault to recover the same secret; second's
	// gateway should notice the Recover claim addressed to it and answer
	// automatically.
	recoverClaim, err := ownerWorkflow.Recover(ownerDeviceCreds, "acme", claim.PassId)
	require.NoError(t, err)
	require.Equal(t, []model.DeviceId{secondUser.DeviceId}, recoverClaim.Receivers)

	for i := 0; i < 4; i++ {
		require.NoError(t, owner.gateway.SyncOnce())
		require.NoError(t, second.gateway.SyncOnce())
	}

	plaintext, err := ownerWorkflow.Combine(ownerDeviceCreds, claim.PassId, recoverClaim.Receivers)
	require.NoError(t, err)
	require.Equal(t, "hunter2", plaintext)
}
