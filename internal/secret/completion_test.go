package secret

import (
	"testing"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
	"github.com/metasecret/metasecret/internal/store"
	"github.com/stretchr/testify/require"
)

func TestCompletionClaimRemovedWhenAllDelivered(t *testing.T) {
	obj := objects.NewPersistentObject(store.NewMemoryStore())
	shared := objects.NewPersistentSharedSecret(obj)
	cc := NewCompletionClient(shared)

	claim := model.NewSsClaim("claim-1", "q", model.MetaPasswordId{Id: "p1"}, "owner", model.DistributionRecover, []model.DeviceId{"peer-a", "peer-b"})
	require.NoError(t, cc.InsertClaim("q", claim))

	require.NoError(t, cc.SsRecoveryCompletion("q", "claim-1", "peer-a"))

	log, ok, err := shared.FindSsLog("q")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, log.Claims, model.ClaimId("claim-1"))
	require.Equal(t, model.ClaimDelivered, log.Claims["claim-1"].Status["peer-a"])

	require.NoError(t, cc.SsRecoveryCompletion("q", "claim-1", "peer-b"))

	log, ok, err = shared.FindSsLog("q")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, log.Claims, model.ClaimId("claim-1"), "claim must be dropped once every receiver is delivered")
}

func TestAdvanceClaimSentThenDelivered(t *testing.T) {
	obj := objects.NewPersistentObject(store.NewMemoryStore())
	shared := objects.NewPersistentSharedSecret(obj)
	cc := NewCompletionClient(shared)

	claim := model.NewSsClaim("claim-2", "q", model.MetaPasswordId{Id: "p1"}, "owner", model.DistributionSplit, []model.DeviceId{"peer-a"})
	require.NoError(t, cc.InsertClaim("q", claim))

	require.NoError(t, cc.AdvanceClaimSent("q", "claim-2", "peer-a"))
	log, _, err := shared.FindSsLog("q")
	require.NoError(t, err)
	require.Equal(t, model.ClaimSent, log.Claims["claim-2"].Status["peer-a"])

	require.NoError(t, cc.SsRecoveryCompletion("q", "claim-2", "peer-a"))
	log, ok, err := shared.FindSsLog("q")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, log.Claims, model.ClaimId("claim-2"))
}
