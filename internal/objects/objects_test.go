package objects

import (
	"testing"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestObj(t *testing.T) *PersistentObject {
	t.Helper()
	return NewPersistentObject(store.NewMemoryStore())
}

func TestFindTailIdEmptyChain(t *testing.T) {
	obj := newTestObj(t)
	tail, err := obj.FindTailId(model.UnitId(model.ObjVault, "q"))
	require.NoError(t, err)
	require.Nil(t, tail)
}

func TestFindFreeIdStartsAtZero(t *testing.T) {
	obj := newTestObj(t)
	id, err := obj.FindFreeId(model.ObjVault, "q")
	require.NoError(t, err)
	require.Equal(t, uint64(0), id.Counter)
}

func TestAppendAdvancesChain(t *testing.T) {
	obj := newTestObj(t)
	vault := NewPersistentVault(obj)

	data := model.NewVaultData("q")
	id, err := vault.SaveVault(data)
	require.NoError(t, err)
	require.Equal(t, uint64(0), id.Counter)

	id2, err := vault.SaveVault(data)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id2.Counter)

	events, err := obj.FindObjectEvents(model.UnitId(model.ObjVault, "q"))
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestGetOrGenerateDeviceCredsIdempotent(t *testing.T) {
	obj := newTestObj(t)
	creds := NewPersistentCredentials(obj, make([]byte, 32))

	c1, err := creds.GetOrGenerateDeviceCreds("client")
	require.NoError(t, err)
	c2, err := creds.GetOrGenerateDeviceCreds("client")
	require.NoError(t, err)

	require.Equal(t, c1.Device.DeviceId, c2.Device.DeviceId)

	events, err := obj.FindObjectEvents(model.UnitId(model.ObjDeviceCreds, credsInstance))
	require.NoError(t, err)
	require.Len(t, events, 1, "get_or_generate_device_creds must produce exactly one credential event across calls")
}

func TestUnsealDeviceKeysRoundTrip(t *testing.T) {
	obj := newTestObj(t)
	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	creds := NewPersistentCredentials(obj, masterKey)

	c, err := creds.GetOrGenerateDeviceCreds("client")
	require.NoError(t, err)

	dsaPriv, transportPriv, err := creds.UnsealDeviceKeys(c)
	require.NoError(t, err)
	require.Len(t, dsaPriv, 64)
	require.NotEqual(t, [32]byte{}, transportPriv)
}

func TestGlobalIndexAddIsIdempotent(t *testing.T) {
	obj := newTestObj(t)
	idx := NewPersistentGlobalIndex(obj)

	require.NoError(t, idx.Add("q"))
	require.NoError(t, idx.Add("q"))

	names, err := idx.List()
	require.NoError(t, err)
	require.Equal(t, []model.VaultName{"q"}, names)
}

func TestVaultLogAppendOnly(t *testing.T) {
	obj := newTestObj(t)
	vault := NewPersistentVault(obj)

	_, err := vault.AppendVaultLog("q", model.VaultActionRecord{Kind: "RequestJoinCluster"})
	require.NoError(t, err)
	_, err = vault.MarkVaultLogCompleted("q", model.VaultActionRecord{Kind: "RequestJoinCluster"})
	require.NoError(t, err)

	events, err := vault.FindVaultLogEvents("q")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.False(t, events[0].VaultLog.Completed)
	require.True(t, events[1].VaultLog.Completed)
}
