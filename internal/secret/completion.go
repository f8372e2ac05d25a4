package secret

import (
	"fmt"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
)

// CompletionClient is the server-side handler for
// Read::SsRecoveryCompletion (§4.5 Completion): once a device has
// collected enough recovery shares, it tells the server so, and the
// server advances that claim row's status to Delivered, dropping the
// claim entirely once every receiver has delivered.
type CompletionClient struct {
	shared *objects.PersistentSharedSecret
}

// NewCompletionClient builds a completion handler over the shared-secret
// chain accessor.
func NewCompletionClient(shared *objects.PersistentSharedSecret) *CompletionClient {
	return &CompletionClient{shared: shared}
}

// SsRecoveryCompletion marks sender Delivered for the named claim within
// vaultName's SsLog and, if every receiver has now reached Delivered,
// removes the claim from the ledger (§4.5's per-claim state machine).
func (c *CompletionClient) SsRecoveryCompletion(vaultName model.VaultName, claimId model.ClaimId, sender model.DeviceId) error {
	log, ok, err := c.shared.FindSsLog(vaultName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no ss_log for vault %q", vaultName)
	}

	claim, ok := log.Claims[claimId]
	if !ok {
		return fmt.Errorf("claim %q not found in vault %q", claimId, vaultName)
	}

	if status, ok := claim.Status[sender]; ok && status.Advance(model.ClaimDelivered) {
		claim.Status[sender] = model.ClaimDelivered
	}

	if claim.AllDelivered() {
		delete(log.Claims, claimId)
	} else {
		log.Claims[claimId] = claim
	}

	_, err = c.shared.SaveSsLog(log)
	return err
}

// AdvanceClaimSent marks receiver Sent for a claim — invoked by the
// server's sync router when it has handed that receiver its workflow
// event (§4.4 server request routing, Write::Event(SsWorkflow)).
func (c *CompletionClient) AdvanceClaimSent(vaultName model.VaultName, claimId model.ClaimId, receiver model.DeviceId) error {
	log, ok, err := c.shared.FindSsLog(vaultName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no ss_log for vault %q", vaultName)
	}

	claim, ok := log.Claims[claimId]
	if !ok {
		return fmt.Errorf("claim %q not found in vault %q", claimId, vaultName)
	}

	if status, ok := claim.Status[receiver]; ok && status.Advance(model.ClaimSent) {
		claim.Status[receiver] = model.ClaimSent
	}
	log.Claims[claimId] = claim

	_, err = c.shared.SaveSsLog(log)
	return err
}

// InsertClaim registers a freshly-seen SsDeviceLog claim into the
// vault's SsLog ledger (§4.4's Write::Event(SsDeviceLog) handling).
func (c *CompletionClient) InsertClaim(vaultName model.VaultName, claim model.SsClaim) error {
	log, ok, err := c.shared.FindSsLog(vaultName)
	if err != nil {
		return err
	}
	if !ok {
		log = model.NewSsLogData(vaultName)
	}
	log.Claims[claim.Id] = claim
	_, err = c.shared.SaveSsLog(log)
	return err
}
