package app

import (
	"testing"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
	"github.com/metasecret/metasecret/internal/secret"
	"github.com/metasecret/metasecret/internal/store"
	"github.com/metasecret/metasecret/internal/sync"
	"github.com/metasecret/metasecret/internal/vaultaction"
	"github.com/stretchr/testify/require"
)

// routerTransport dispatches straight into a server-side Router — the
// in-process Transport the gateway's own tests use, reused here to drive
// the façade end to end without an HTTP server.
type routerTransport struct {
	router *sync.Router
}

func (t *routerTransport) Do(req sync.SyncRequest) (sync.DataSyncResponse, error) {
	return t.router.Handle(req)
}

func newTestServer(t *testing.T) *routerTransport {
	t.Helper()
	obj := objects.NewPersistentObject(store.NewMemoryStore())
	vault := objects.NewPersistentVault(obj)
	shared := objects.NewPersistentSharedSecret(obj)
	idx := objects.NewPersistentGlobalIndex(obj)
	engine := vaultaction.NewEngine(vault, idx)
	completion := secret.NewCompletionClient(shared)
	return &routerTransport{router: sync.NewRouter(vault, shared, engine, completion)}
}

func newTestClient(t *testing.T, transport sync.Transport) *MetaClient {
	t.Helper()
	return NewMetaClient(store.NewMemoryStore(), make([]byte, 32), transport, 0)
}

// TestMetaClientBootstrapLifecycle walks a single device through the
// device/user/sign-up progression State() reports (the supplemented
// app_state_manager lifecycle).
func TestMetaClientBootstrapLifecycle(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	state, err := client.State()
	require.NoError(t, err)
	require.Equal(t, StateNoCreds, state)

	_, err = client.InitDevice("laptop")
	require.NoError(t, err)
	state, err = client.State()
	require.NoError(t, err)
	require.Equal(t, StateDeviceCreated, state)

	_, err = client.InitUser("acme")
	require.NoError(t, err)
	state, err = client.State()
	require.NoError(t, err)
	require.Equal(t, StateUserCreated, state)

	require.NoError(t, client.SignUp())
	require.NoError(t, client.Sync(2))

	state, err = client.State()
	require.NoError(t, err)
	require.Equal(t, StateMember, state)
}

// TestMetaClientSplitShowsSecret exercises split end to end through the
// façade on a single-member vault (threshold 1: the degenerate Shamir
// case), then confirms show-secrets reports it by name.
func TestMetaClientSplitShowsSecret(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	_, err := client.InitDevice("laptop")
	require.NoError(t, err)
	_, err = client.InitUser("acme")
	require.NoError(t, err)
	require.NoError(t, client.SignUp())
	require.NoError(t, client.Sync(2))

	claim, err := client.Split("api-key", "s3cr3t")
	require.NoError(t, err)
	require.Equal(t, model.DistributionSplit, claim.DistributionType)
	require.NoError(t, client.Sync(2))

	secrets, err := client.ShowSecrets()
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	require.Equal(t, "api-key", secrets[0].Name)

	claims, err := client.ShowClaims()
	require.NoError(t, err)
	require.Len(t, claims, 1)
}

// TestMetaClientTwoDeviceRecover mirrors S2-S4 through the façade: two
// devices join the same vault, one splits a secret, the other answers a
// recovery request automatically via its own sync rounds, and
// AcceptRecover reconstructs the plaintext.
func TestMetaClientTwoDeviceRecover(t *testing.T) {
	server := newTestServer(t)
	owner := newTestClient(t, server)
	second := newTestClient(t, server)

	_, err := owner.InitDevice("owner")
	require.NoError(t, err)
	_, err = owner.InitUser("acme")
	require.NoError(t, err)
	require.NoError(t, owner.SignUp())
	require.NoError(t, owner.Sync(2))

	_, err = second.InitDevice("second")
	require.NoError(t, err)
	_, err = second.InitUser("acme")
	require.NoError(t, err)
	require.NoError(t, second.SignUp())
	require.NoError(t, second.Sync(2))

	for i := 0; i < 3; i++ {
		require.NoError(t, owner.Sync(1))
		require.NoError(t, second.Sync(1))
	}

	ownerState, err := owner.State()
	require.NoError(t, err)
	require.Equal(t, StateMember, ownerState)
	secondState, err := second.State()
	require.NoError(t, err)
	require.Equal(t, StateMember, secondState)

	_, err = owner.Split("vault-pin", "1234")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, owner.Sync(1))
		require.NoError(t, second.Sync(1))
	}

	recoverClaim, err := owner.Recover("vault-pin")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, owner.Sync(1))
		require.NoError(t, second.Sync(1))
	}

	plaintext, err := owner.AcceptRecover(recoverClaim.Id)
	require.NoError(t, err)
	require.Equal(t, "1234", plaintext)
}
