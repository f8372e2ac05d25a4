package secret

import (
	"testing"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
	"github.com/metasecret/metasecret/internal/store"
	"github.com/metasecret/metasecret/internal/vaultaction"
	"github.com/stretchr/testify/require"
)

type harness struct {
	vault  *objects.PersistentVault
	shared *objects.PersistentSharedSecret
	creds  *objects.PersistentCredentials
	engine *vaultaction.Engine
	wf     *Workflow
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	obj := objects.NewPersistentObject(store.NewMemoryStore())
	vault := objects.NewPersistentVault(obj)
	shared := objects.NewPersistentSharedSecret(obj)
	idx := objects.NewPersistentGlobalIndex(obj)
	masterKey := make([]byte, 32)
	creds := objects.NewPersistentCredentials(obj, masterKey)
	engine := vaultaction.NewEngine(vault, idx)
	return &harness{
		vault:  vault,
		shared: shared,
		creds:  creds,
		engine: engine,
		wf:     NewWorkflow(vault, shared, creds),
	}
}

// joinAndAccept drives the device through join_cluster + an owner accept,
// returning the joined device's creds.
func (h *harness) joinAndAccept(t *testing.T, vaultName model.VaultName, owner model.UserData, name string) model.DeviceCreds {
	t.Helper()
	creds, err := h.creds.GetOrGenerateDeviceCreds(name)
	require.NoError(t, err)

	candidate := model.UserData{VaultName: vaultName, Device: creds.Device}
	err = h.engine.HandleDeviceLogEvent(vaultName, model.DeviceLogPayload{
		Op:        model.DeviceLogJoinCluster,
		Sender:    creds.Device.DeviceId,
		Candidate: &candidate,
	})
	require.NoError(t, err)

	update := model.Member(candidate)
	err = h.engine.HandleDeviceLogEvent(vaultName, model.DeviceLogPayload{
		Op:     model.DeviceLogUpdateMember,
		Sender: owner.Device.DeviceId,
		Target: creds.Device.DeviceId,
		Update: &update,
	})
	require.NoError(t, err)
	return creds
}

// TestSplitAndCombineRoundTrip mirrors the core of S3/S4: a two-member
// vault splits a secret, and the non-splitting member's re-encrypted
// share combines back to the original plaintext.
func TestSplitAndCombineRoundTrip(t *testing.T) {
	h := newHarness(t)

	ownerCreds, err := h.creds.GetOrGenerateDeviceCreds("owner")
	require.NoError(t, err)
	owner := model.UserData{VaultName: "q", Device: ownerCreds.Device}

	_, err = h.engine.CreateVault(owner)
	require.NoError(t, err)

	secondCreds := h.joinAndAccept(t, "q", owner, "second")

	ownerUserCreds := model.UserCreds{VaultName: "q", DeviceCreds: ownerCreds}
	claim, err := h.wf.Split(ownerCreds, ownerUserCreds, "db-password", "hunter2-secret")
	require.NoError(t, err)
	require.Equal(t, model.DistributionSplit, claim.DistributionType)
	require.Len(t, claim.Receivers, 2)

	// The "second" device responds to a recovery request from the owner
	// using its own loopback share.
	recoverClaim, err := h.wf.Recover(ownerCreds, "q", claim.PassId)
	require.NoError(t, err)
	require.Equal(t, model.DistributionRecover, recoverClaim.DistributionType)

	err = h.wf.RespondToRecovery(secondCreds, claim.PassId, ownerCreds.Device.DeviceId, ownerCreds.Device.Keys.TransportPk)
	require.NoError(t, err)

	recovered, err := h.wf.Combine(ownerCreds, claim.PassId, []model.DeviceId{secondCreds.Device.DeviceId})
	require.NoError(t, err)
	require.Equal(t, "hunter2-secret", recovered)
}

func TestSplitRejectsNonMember(t *testing.T) {
	h := newHarness(t)

	ownerCreds, err := h.creds.GetOrGenerateDeviceCreds("owner")
	require.NoError(t, err)
	owner := model.UserData{VaultName: "q", Device: ownerCreds.Device}
	_, err = h.engine.CreateVault(owner)
	require.NoError(t, err)

	outsiderCreds, err := h.creds.GetOrGenerateDeviceCreds("outsider")
	require.NoError(t, err)
	outsiderUserCreds := model.UserCreds{VaultName: "q", DeviceCreds: outsiderCreds}

	_, err = h.wf.Split(outsiderCreds, outsiderUserCreds, "x", "y")
	require.Error(t, err)
}

func TestSharedSecretConfigMajorityThreshold(t *testing.T) {
	cases := []struct {
		members   int
		threshold int
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
	}
	for _, c := range cases {
		cfg := NewSharedSecretConfig(c.members)
		require.Equal(t, c.members, cfg.NumberOfShares)
		require.Equal(t, c.threshold, cfg.Threshold)
	}
}
