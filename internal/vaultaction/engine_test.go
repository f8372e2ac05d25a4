package vaultaction

import (
	"crypto/ed25519"
	"testing"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
	"github.com/metasecret/metasecret/internal/store"
	"github.com/stretchr/testify/require"
)

func testUser(t *testing.T, vaultName model.VaultName, name string, seed byte) model.UserData {
	t.Helper()
	s := make([]byte, ed25519.SeedSize)
	s[0] = seed
	pub := ed25519.NewKeyFromSeed(s).Public().(ed25519.PublicKey)
	return model.UserData{
		VaultName: vaultName,
		Device: model.DeviceData{
			DeviceId:   model.DeriveDeviceId(pub),
			DeviceName: name,
			Keys:       model.DeviceKeys{DsaPk: pub},
		},
	}
}

func newEngine(t *testing.T) (*Engine, *objects.PersistentVault) {
	t.Helper()
	obj := objects.NewPersistentObject(store.NewMemoryStore())
	vault := objects.NewPersistentVault(obj)
	idx := objects.NewPersistentGlobalIndex(obj)
	return NewEngine(vault, idx), vault
}

// TestCreateVaultProducesExactEventCount mirrors spec scenario S1: signing
// up produces exactly 6 total events (3 Vault + 2 VaultLog + 1 VaultStatus).
func TestCreateVaultProducesExactEventCount(t *testing.T) {
	engine, vault := newEngine(t)

	owner := testUser(t, "q", "owner-device", 1)

	data, err := engine.CreateVault(owner)
	require.NoError(t, err)
	require.True(t, data.IsMember(owner.Device.DeviceId))

	vaultEvents, err := vault.FindVaultLogEvents("q")
	require.NoError(t, err)
	require.Len(t, vaultEvents, 2)

	status, ok, err := vault.FindVaultStatus(model.UserId{VaultName: "q", DeviceId: owner.Device.DeviceId})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.VaultStatusMember, status.Kind)
}

func TestCreateVaultIsIdempotent(t *testing.T) {
	engine, _ := newEngine(t)
	owner := testUser(t, "q", "owner-device", 1)

	first, err := engine.CreateVault(owner)
	require.NoError(t, err)
	second, err := engine.CreateVault(owner)
	require.NoError(t, err)

	require.Equal(t, first.Users, second.Users)
}

// TestHandleDeviceLogEventJoinClusterThenAccept mirrors S2: a second
// device requests to join, then an existing member accepts it.
func TestHandleDeviceLogEventJoinClusterThenAccept(t *testing.T) {
	engine, vault := newEngine(t)
	owner := testUser(t, "q", "owner-device", 1)
	candidate := testUser(t, "q", "second-device", 2)

	_, err := engine.CreateVault(owner)
	require.NoError(t, err)

	err = engine.HandleDeviceLogEvent("q", model.DeviceLogPayload{
		Op:        model.DeviceLogJoinCluster,
		Sender:    candidate.Device.DeviceId,
		Candidate: &candidate,
	})
	require.NoError(t, err)

	data, ok, err := vault.FindVault("q")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusPending, data.Users[candidate.Device.DeviceId].OutsiderStatus)

	update := model.Member(candidate)
	err = engine.HandleDeviceLogEvent("q", model.DeviceLogPayload{
		Op:     model.DeviceLogUpdateMember,
		Sender: owner.Device.DeviceId,
		Target: candidate.Device.DeviceId,
		Update: &update,
	})
	require.NoError(t, err)

	data, ok, err = vault.FindVault("q")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, data.Members(), 2)
	require.True(t, data.IsMember(candidate.Device.DeviceId))
}

// TestHandleDeviceLogEventRejectsNonMemberSender mirrors §7's silent-drop
// disposition: an UpdateMembership from a non-member leaves the vault
// state unchanged and the VaultLog entry unresolved.
func TestHandleDeviceLogEventRejectsNonMemberSender(t *testing.T) {
	engine, vault := newEngine(t)
	owner := testUser(t, "q", "owner-device", 1)
	outsider := testUser(t, "q", "outsider-device", 3)

	_, err := engine.CreateVault(owner)
	require.NoError(t, err)

	update := model.Member(outsider)
	err = engine.HandleDeviceLogEvent("q", model.DeviceLogPayload{
		Op:     model.DeviceLogUpdateMember,
		Sender: outsider.Device.DeviceId, // not a member
		Target: outsider.Device.DeviceId,
		Update: &update,
	})
	require.NoError(t, err)

	data, ok, err := vault.FindVault("q")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, data.IsMember(outsider.Device.DeviceId))

	events, err := vault.FindVaultLogEvents("q")
	require.NoError(t, err)
	last := events[len(events)-1]
	require.False(t, last.VaultLog.Completed, "rejected action must stay unresolved in VaultLog")
}
